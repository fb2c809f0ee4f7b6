package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/loykin/filemetrics/internal/logger"
	"github.com/loykin/filemetrics/internal/store"
	"github.com/loykin/filemetrics/internal/telemetry"
)

// Config is the top-level TOML structure.
//
//	data_dir = "/var/lib/filemetrics"
//
//	[store]
//	type = "sqlite"          # sqlite | postgres | memory
//	# path defaults to <data_dir>/history.db
//
//	[server]
//	listen = ":8682"
//	base_path = ""
//	metrics = true
//
//	[log]
//	level = "info"
//
//	[telemetry]
//	type = "log"             # log | clickhouse
type Config struct {
	DataDir   string           `toml:"data_dir" mapstructure:"data_dir"`
	Store     store.Config     `toml:"store" mapstructure:"store"`
	Server    ServerConfig     `toml:"server" mapstructure:"server"`
	Log       logger.Config    `toml:"log" mapstructure:"log"`
	Telemetry telemetry.Config `toml:"telemetry" mapstructure:"telemetry"`
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	Metrics  bool   `toml:"metrics" mapstructure:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir: ".",
		Store:   store.Config{Type: "sqlite"},
		Server:  ServerConfig{Listen: ":8682", Metrics: true},
		Log:     logger.Config{Level: "info"},
		Telemetry: telemetry.Config{
			Type: "log",
		},
	}
}

// Load reads a TOML config file and applies defaults for anything unset.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&c); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	c.ApplyDefaults()
	return c, nil
}

// ApplyDefaults fills in anything the file (or a hand-built Config) left
// empty. The history database lives at a fixed path under the data
// directory unless pointed elsewhere.
func (c *Config) ApplyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	if c.Store.Type == "sqlite" && c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "history.db")
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8682"
	}
	if c.Telemetry.Type == "" {
		c.Telemetry.Type = "log"
	}
}
