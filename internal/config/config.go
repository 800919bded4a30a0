// Package config loads lineagekit configuration.
//
// Sources, lowest to highest precedence: built-in defaults, the config file
// (lineagekit.yaml), a .env file next to it, LINEAGEKIT_* environment
// variables and command-line flags. Nested keys use a double underscore in
// environment variables: LINEAGEKIT_SERVER__ADDR sets server.addr.
package config

import (
	"fmt"

	"github.com/leapstack-labs/lineagekit/pkg/core"
)

// Config file names, in lookup order.
const (
	FileName    = "lineagekit.yaml"
	FileNameAlt = "lineagekit.yml"
)

// EnvPrefix prefixes every environment variable read as configuration.
const EnvPrefix = "LINEAGEKIT_"

// Default configuration values.
const (
	DefaultStateFile = ".lineagekit/state.db"
	DefaultOutput    = OutputText
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRemote    = "origin"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds all configuration options.
type Config struct {
	StatePath      string                      `koanf:"state_path"`
	Output         string                      `koanf:"output"`
	Verbose        bool                        `koanf:"verbose"`
	Concurrency    int                         `koanf:"concurrency"`
	DefaultDialect string                      `koanf:"default_dialect"`
	Server         ServerConfig                `koanf:"server"`
	Location       LocationConfig              `koanf:"location"`
	Connections    map[string]ConnectionConfig `koanf:"connections"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `koanf:"addr"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// LocationConfig configures source permalinks.
type LocationConfig struct {
	Enabled bool   `koanf:"enabled"`
	Remote  string `koanf:"remote"`
}

// ConnectionConfig declares a connection by DSN. ${VAR} references in the
// DSN are expanded from the environment.
type ConnectionConfig struct {
	Type string `koanf:"type"`
	DSN  string `koanf:"dsn"`
}

// Dialect returns the parsed default dialect.
func (c *Config) Dialect() (core.Dialect, error) {
	return core.ParseDialect(c.DefaultDialect)
}

// Validate checks option values.
func (c *Config) Validate() error {
	switch c.Output {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("invalid output format %q (expected %s or %s)", c.Output, OutputText, OutputJSON)
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency)
	}
	if _, err := c.Dialect(); err != nil {
		return fmt.Errorf("invalid default_dialect: %w", err)
	}
	for id, conn := range c.Connections {
		if conn.Type == "" || conn.DSN == "" {
			return fmt.Errorf("connection %q: type and dsn are required", id)
		}
	}
	return nil
}
