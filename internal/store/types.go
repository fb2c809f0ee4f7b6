package store

import "time"

// Config selects and parameterizes a store backend.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // "sqlite", "postgres", "memory"

	// SQLite specific
	Path string `toml:"path,omitempty" mapstructure:"path"`

	// PostgreSQL specific
	Host     string `toml:"host,omitempty" mapstructure:"host"`
	Port     int    `toml:"port,omitempty" mapstructure:"port"`
	Database string `toml:"database,omitempty" mapstructure:"database"`
	Username string `toml:"username,omitempty" mapstructure:"username"`
	Password string `toml:"password,omitempty" mapstructure:"password"`
	SSLMode  string `toml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`

	// Connection pooling
	MaxOpenConns int           `toml:"max_open_conns,omitempty" mapstructure:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`
	ConnMaxAge   time.Duration `toml:"conn_max_age,omitempty" mapstructure:"conn_max_age"`

	// Additional DSN options
	Options map[string]string `toml:"options,omitempty" mapstructure:"options"`
}
