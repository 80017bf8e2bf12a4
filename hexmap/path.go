package hexmap

import "sort"

// TileType classifies a tile in an empire's hex map.
type TileType string

const (
	TileSpawn     TileType = "spawnpoint"
	TilePath      TileType = "path"
	TileCastle    TileType = "castle"
	TileBuildable TileType = "buildable"
	TileBlocked   TileType = "blocked"
)

// walkable tiles for critter pathing. Buildable ground is tower territory,
// not critter territory.
func walkable(t TileType) bool {
	return t == TileSpawn || t == TilePath || t == TileCastle
}

// FindPath runs a multi-source BFS from every spawnpoint to the castle,
// traversing only spawnpoint/path/castle tiles via 6-connectivity. It returns
// the shortest spawn→castle sequence, or ok=false when there is no castle, no
// spawnpoint, or no connection. Spawnpoints are seeded in sorted key order and
// neighbours expand in the fixed offset order, so the result is reproducible.
func FindPath(tiles map[string]TileType) ([]Hex, bool) {
	var castle Hex
	haveCastle := false
	var spawns []Hex
	for key, t := range tiles {
		h, err := ParseKey(key)
		if err != nil {
			continue
		}
		switch t {
		case TileCastle:
			castle = h
			haveCastle = true
		case TileSpawn:
			spawns = append(spawns, h)
		}
	}
	if !haveCastle || len(spawns) == 0 {
		return nil, false
	}

	sort.Slice(spawns, func(i, j int) bool {
		if spawns[i].Q != spawns[j].Q {
			return spawns[i].Q < spawns[j].Q
		}
		return spawns[i].R < spawns[j].R
	})

	prev := make(map[Hex]Hex, len(tiles))
	seen := make(map[Hex]bool, len(tiles))
	queue := make([]Hex, 0, len(spawns))
	for _, s := range spawns {
		seen[s] = true
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == castle {
			return rebuild(prev, seen, spawns, castle), true
		}
		for _, n := range cur.Neighbors() {
			if seen[n] {
				continue
			}
			t, ok := tiles[n.Key()]
			if !ok || !walkable(t) {
				continue
			}
			seen[n] = true
			prev[n] = cur
			queue = append(queue, n)
		}
	}
	return nil, false
}

func rebuild(prev map[Hex]Hex, seen map[Hex]bool, spawns []Hex, castle Hex) []Hex {
	isSpawn := make(map[Hex]bool, len(spawns))
	for _, s := range spawns {
		isSpawn[s] = true
	}
	var rev []Hex
	cur := castle
	for {
		rev = append(rev, cur)
		if isSpawn[cur] {
			break
		}
		cur = prev[cur]
	}
	out := make([]Hex, len(rev))
	for i, h := range rev {
		out[len(rev)-1-i] = h
	}
	return out
}
