/*
Package config loads server configuration from a TOML file.

PURPOSE:
  Central configuration for the premium ledger server. Defaults work for
  local development out of the box; a TOML file overrides them, and
  command-line flags override the file (see cmd/server/main.go).

FILE FORMAT (TOML):

  [server]
  host = "0.0.0.0"
  port = 8080

  [database]
  path = "./data/ledger.db"
*/
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type Server struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type Database struct {
	// Path is the SQLite database file. ":memory:" for an in-memory DB.
	Path string `toml:"path"`
}

type Config struct {
	Server   Server   `toml:"server"`
	Database Database `toml:"database"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: Database{
			Path: "ledger.db",
		},
	}
}

// Load reads a TOML file over the defaults. Fields absent from the file
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
