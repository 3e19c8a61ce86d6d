package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// DefaultPath returns the stock config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".swarmstore", "config.json")
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (missing file is fine), then SWARMSTORE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults plus env only.
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	for _, group := range []struct {
		prefix string
		target any
	}{
		{"SWARMSTORE_PATHS", &cfg.Paths},
		{"SWARMSTORE_STORE", &cfg.Store},
		{"SWARMSTORE_SESSION", &cfg.Session},
		{"SWARMSTORE_MAINTENANCE", &cfg.Maintenance},
	} {
		if err := envconfig.Process(group.prefix, group.target); err != nil {
			return fmt.Errorf("environment overrides (%s): %w", group.prefix, err)
		}
	}
	return nil
}

// Save writes cfg as indented JSON to path, creating parent directories.
func Save(cfg Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
