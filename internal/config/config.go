// Package config provides unified configuration loading for cellgraph.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains all cellgraph configuration settings.
type Config struct {
	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store selects where graphs and chunks are persisted.
	Store StoreConfig `json:"store" yaml:"store"`

	// World contains connection and chunk settings.
	World WorldConfig `json:"world" yaml:"world"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" also writes topology events to topology.jsonl next to the store.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures persistence.
type StoreConfig struct {
	// Backend is "memory", "sqlite" (default) or "bolt".
	Backend string `json:"backend" yaml:"backend"`

	// Path is the database file. Supports ${VAR} syntax for env vars.
	// Empty means ~/.cellgraph/world.db (or world.bolt).
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// WorldConfig configures the world.
type WorldConfig struct {
	// ChunkSize is the chunk edge length in blocks; a power of two.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// AllowDiagonalWrap permits wrapped connections around a corner whose
	// diagonal block is occupied.
	AllowDiagonalWrap bool `json:"allow_diagonal_wrap" yaml:"allow_diagonal_wrap"`

	// ForceLoadChunks loads stored neighbor chunks before a placement scans them.
	ForceLoadChunks bool `json:"force_load_chunks" yaml:"force_load_chunks"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: "sqlite",
		},
		World: WorldConfig{
			ChunkSize:         16,
			AllowDiagonalWrap: false,
			ForceLoadChunks:   true,
		},
	}
}

// DefaultPath returns ~/.cellgraph/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cellgraph", "config.yaml"), nil
}

// Load loads configuration from path, or from the default location when
// path is empty, and applies environment variables.
// Order: defaults -> config file -> environment variables
func Load(path string) (*Config, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Path = expandEnvVars(config.Store.Path)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	validBackends := map[string]bool{"memory": true, "sqlite": true, "bolt": true}
	if !validBackends[c.Store.Backend] {
		return fmt.Errorf("invalid store backend: %s (valid: memory, sqlite, bolt)", c.Store.Backend)
	}

	if n := c.World.ChunkSize; n <= 0 || n&(n-1) != 0 {
		return fmt.Errorf("chunk_size must be a positive power of two, got %d", n)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("CELLGRAPH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("CELLGRAPH_STORE_BACKEND"); v != "" {
		config.Store.Backend = v
	}

	if v := os.Getenv("CELLGRAPH_STORE_PATH"); v != "" {
		config.Store.Path = v
	}

	if v := os.Getenv("CELLGRAPH_ALLOW_DIAGONAL_WRAP"); v != "" {
		config.World.AllowDiagonalWrap = v == "true" || v == "1"
	}

	if v := os.Getenv("CELLGRAPH_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CELLGRAPH_CHUNK_SIZE: %w", err)
		}
		config.World.ChunkSize = n
	}

	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
