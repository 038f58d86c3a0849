// Package config loads and validates the cratewalk configuration file.
//
// All settings are optional; the file supplies defaults that command-line
// flags can still override per invocation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Publish contains defaults for the publish command.
type Publish struct {
	// Registry targets an alternate registry instead of crates.io.
	Registry string `toml:"registry"`
	// TokenEnv names the environment variable holding the registry token.
	// The token itself never lives in the config file.
	TokenEnv string `toml:"token_env"`
	// IntervalSeconds is the pause between consecutive publishes.
	IntervalSeconds int `toml:"interval_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// History contains the publish-attempt journal settings.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Config encapsulates all cratewalk settings.
type Config struct {
	Publish Publish `toml:"publish"`
	Logging Logging `toml:"logging"`
	History History `toml:"history"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Publish: Publish{
			TokenEnv:        "CARGO_REGISTRY_TOKEN",
			IntervalSeconds: 0,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		History: History{
			Enabled: true,
		},
	}
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "cratewalk", "config.toml"), nil
}

// Load parses the configuration at path, or the default location when path
// is empty. A missing file yields the defaults; a present-but-broken file is
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved := path
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		resolved = defaultPath
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			// Default location absent: run on defaults.
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", resolved, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", resolved, err)
	}
	return cfg, nil
}

// Token resolves the registry token from the configured environment
// variable. Empty when unset.
func (c *Config) Token() string {
	if c.Publish.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Publish.TokenEnv)
}

// HistoryPath returns the journal database location, defaulting under the
// user cache directory.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "cratewalk", "history.db"), nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Publish.IntervalSeconds < 0 {
		return errors.New("publish.interval_seconds must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
