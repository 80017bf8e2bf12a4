// Package config loads the server configuration from YAML. Every tunable has
// a zero-value-safe default applied by the consuming package, so a minimal
// config file (or none at all) still boots a working server.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jpenner/bastion/bastion-core/ai"
	"github.com/jpenner/bastion/bastion-core/attack"
	"github.com/jpenner/bastion/bastion-core/empire"
	"github.com/jpenner/bastion/bastion-core/world"
)

// Session tunables for the websocket surface.
type Session struct {
	ReadTimeoutSeconds float64 `yaml:"read_timeout_seconds"`
	SendBuffer         int     `yaml:"send_buffer"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `yaml:"rate_limit_burst"`
}

// Config is the full server configuration.
type Config struct {
	Listen string `yaml:"listen"`
	DBPath string `yaml:"db_path"`

	ItemsPath string `yaml:"items_path"`
	MapPath   string `yaml:"map_path"`

	SnapshotIntervalSeconds float64 `yaml:"snapshot_interval_seconds"`

	Empire  empire.Tunables `yaml:"empire"`
	Attack  attack.Tunables `yaml:"attack"`
	World   world.Tunables  `yaml:"world"`
	AI      ai.Config       `yaml:"ai"`
	Session Session         `yaml:"session"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:                  ":8344",
		DBPath:                  "./data/bastion.db",
		ItemsPath:               "./data/items.yaml",
		MapPath:                 "./data/map.yaml",
		SnapshotIntervalSeconds: 60,
		Session: Session{
			ReadTimeoutSeconds: 5,
			SendBuffer:         64,
			RateLimitPerSecond: 10,
			RateLimitBurst:     20,
		},
	}
}

// Load reads and decodes the YAML file at path, filling unset fields from
// Default.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.ItemsPath == "" {
		c.ItemsPath = def.ItemsPath
	}
	if c.MapPath == "" {
		c.MapPath = def.MapPath
	}
	if c.SnapshotIntervalSeconds == 0 {
		c.SnapshotIntervalSeconds = def.SnapshotIntervalSeconds
	}
	if c.Session.ReadTimeoutSeconds == 0 {
		c.Session.ReadTimeoutSeconds = def.Session.ReadTimeoutSeconds
	}
	if c.Session.SendBuffer == 0 {
		c.Session.SendBuffer = def.Session.SendBuffer
	}
	if c.Session.RateLimitPerSecond == 0 {
		c.Session.RateLimitPerSecond = def.Session.RateLimitPerSecond
	}
	if c.Session.RateLimitBurst == 0 {
		c.Session.RateLimitBurst = def.Session.RateLimitBurst
	}
}
