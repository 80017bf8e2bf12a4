package item

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type catalogueFile struct {
	Items []Item `yaml:"items"`
}

// Parse builds a registry from YAML catalogue bytes.
func Parse(data []byte) (*Registry, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse item catalogue: %w", err)
	}
	return NewRegistry(f.Items)
}

// LoadFile reads and parses a YAML catalogue from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read item catalogue: %w", err)
	}
	return Parse(data)
}
