// Package config provides configuration types and loading for swarmstore.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/swarmstore/swarmstore/internal/maintenance"
)

// Config is the root configuration struct.
type Config struct {
	Paths       PathsConfig        `json:"paths"`
	Store       StoreConfig        `json:"store"`
	Session     SessionConfig      `json:"session"`
	Maintenance maintenance.Config `json:"maintenance"`
}

// PathsConfig groups filesystem locations.
type PathsConfig struct {
	// DataDir holds the store file and defaults for everything else.
	DataDir string `json:"dataDir" envconfig:"DATA_DIR"`
	// StorePath overrides the store file location; empty derives it from
	// DataDir.
	StorePath string `json:"storePath" envconfig:"STORE_PATH"`
	// BackupDir is where unqualified backup names land.
	BackupDir string `json:"backupDir" envconfig:"BACKUP_DIR"`
}

// StoreConfig groups the core store tuning knobs.
type StoreConfig struct {
	CacheSize   int           `json:"cacheSize" envconfig:"CACHE_SIZE"`
	BusyTimeout time.Duration `json:"busyTimeout" envconfig:"BUSY_TIMEOUT"`
	// DefaultTTL applies to records written without an explicit TTL; zero
	// means they never expire.
	DefaultTTL time.Duration `json:"defaultTTL" envconfig:"DEFAULT_TTL"`
}

// SessionConfig groups session-manager settings.
type SessionConfig struct {
	// TTL is how long an untouched session stays resumable; zero disables
	// session expiry.
	TTL time.Duration `json:"ttl" envconfig:"TTL"`
}

// DefaultConfig returns the stock configuration rooted at ~/.swarmstore.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".swarmstore")
	return Config{
		Paths: PathsConfig{
			DataDir:   dataDir,
			BackupDir: filepath.Join(dataDir, "backups"),
		},
		Store: StoreConfig{
			CacheSize:   1024,
			BusyTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Maintenance: maintenance.DefaultConfig(),
	}
}

// StoreFile resolves the store path, honoring the StorePath override.
func (c Config) StoreFile() string {
	if c.Paths.StorePath != "" {
		return c.Paths.StorePath
	}
	return filepath.Join(c.Paths.DataDir, "swarm.db")
}
