package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jpenner/bastion/bastion-core/hexmap"
)

type mapTile struct {
	Q    int    `yaml:"q"`
	R    int    `yaml:"r"`
	Type string `yaml:"type"`
}

type mapFile struct {
	Tiles []mapTile `yaml:"tiles"`
}

// ParseMap decodes a tile list into the hex map handed to new empires.
func ParseMap(raw []byte) (map[string]hexmap.TileType, error) {
	var mf mapFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("parse map: %w", err)
	}
	tiles := make(map[string]hexmap.TileType, len(mf.Tiles))
	for _, t := range mf.Tiles {
		switch tt := hexmap.TileType(t.Type); tt {
		case hexmap.TileSpawn, hexmap.TilePath, hexmap.TileCastle, hexmap.TileBuildable, hexmap.TileBlocked:
			tiles[hexmap.Hex{Q: t.Q, R: t.R}.Key()] = tt
		default:
			return nil, fmt.Errorf("map tile (%d,%d): unknown type %q", t.Q, t.R, t.Type)
		}
	}
	if _, ok := hexmap.FindPath(tiles); !ok {
		return nil, fmt.Errorf("map has no walkable spawn-to-castle path")
	}
	return tiles, nil
}

// LoadMap reads and validates the map file at path.
func LoadMap(path string) (map[string]hexmap.TileType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read map: %w", err)
	}
	return ParseMap(raw)
}
