package hexmap

import "testing"

func straightMap(length int) map[string]TileType {
	tiles := make(map[string]TileType)
	tiles[Hex{0, 0}.Key()] = TileSpawn
	for q := 1; q < length-1; q++ {
		tiles[Hex{q, 0}.Key()] = TilePath
	}
	tiles[Hex{length - 1, 0}.Key()] = TileCastle
	return tiles
}

func TestFindPathStraight(t *testing.T) {
	path, ok := FindPath(straightMap(5))
	if !ok {
		t.Fatal("expected a path")
	}
	if len(path) != 5 {
		t.Fatalf("path length %d, want 5", len(path))
	}
	if path[0] != (Hex{0, 0}) || path[len(path)-1] != (Hex{4, 0}) {
		t.Errorf("path endpoints wrong: %v", path)
	}
	for i := 1; i < len(path); i++ {
		if path[i-1].DistanceTo(path[i]) != 1 {
			t.Errorf("non-adjacent step %v -> %v", path[i-1], path[i])
		}
	}
}

func TestFindPathPicksShortest(t *testing.T) {
	// Two spawnpoints; one is a single step away from the castle.
	tiles := map[string]TileType{
		Hex{0, 0}.Key():  TileSpawn,
		Hex{1, 0}.Key():  TilePath,
		Hex{2, 0}.Key():  TilePath,
		Hex{3, 0}.Key():  TileCastle,
		Hex{3, -1}.Key(): TileSpawn,
	}
	path, ok := FindPath(tiles)
	if !ok {
		t.Fatal("expected a path")
	}
	if len(path) != 2 {
		t.Errorf("path length %d, want 2 (near spawn should win)", len(path))
	}
}

func TestFindPathIgnoresBuildable(t *testing.T) {
	// The only route through buildable ground must not be taken.
	tiles := map[string]TileType{
		Hex{0, 0}.Key(): TileSpawn,
		Hex{1, 0}.Key(): TileBuildable,
		Hex{2, 0}.Key(): TileCastle,
	}
	if _, ok := FindPath(tiles); ok {
		t.Error("path through buildable tiles should not exist")
	}
}

func TestFindPathFailures(t *testing.T) {
	cases := map[string]map[string]TileType{
		"no castle": {
			Hex{0, 0}.Key(): TileSpawn,
			Hex{1, 0}.Key(): TilePath,
		},
		"no spawn": {
			Hex{0, 0}.Key(): TilePath,
			Hex{1, 0}.Key(): TileCastle,
		},
		"disconnected": {
			Hex{0, 0}.Key(): TileSpawn,
			Hex{5, 5}.Key(): TileCastle,
		},
	}
	for name, tiles := range cases {
		if _, ok := FindPath(tiles); ok {
			t.Errorf("%s: expected no path", name)
		}
	}
}

func TestFindPathDeterministic(t *testing.T) {
	tiles := straightMap(6)
	// Add a parallel equal-length route; repeated runs must agree.
	for q := 1; q < 5; q++ {
		tiles[Hex{q, -1}.Key()] = TilePath
	}
	tiles[Hex{0, -1}.Key()] = TilePath
	tiles[Hex{5, -1}.Key()] = TilePath

	first, ok := FindPath(tiles)
	if !ok {
		t.Fatal("expected a path")
	}
	for i := 0; i < 20; i++ {
		again, _ := FindPath(tiles)
		if len(again) != len(first) {
			t.Fatalf("run %d: length %d vs %d", i, len(again), len(first))
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("run %d: step %d differs: %v vs %v", i, j, again[j], first[j])
			}
		}
	}
}
