package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/swarmstore/swarmstore/internal/config"
	"github.com/swarmstore/swarmstore/internal/store"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ SwarmStore Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store status and row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		printHeader("📊 SwarmStore Status")
		fmt.Printf("Version: %s\n", version)

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path := cfg.StoreFile()
		info, err := os.Stat(path)
		if err != nil {
			fmt.Println("Store:   ✗ Not found (" + path + ")")
			fmt.Println("Status:  Empty (store is created on first write)")
			return nil
		}
		fmt.Printf("Store:   ✓ %s (%d KiB)\n", path, info.Size()/1024)

		db, err := store.Open(path, storeOptions(cfg))
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := db.Counts(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println("Rows:")
		for _, table := range store.Collections {
			fmt.Printf("  %-20s %d\n", table, counts[table])
		}
		fmt.Println("Status:  Ready")
		return nil
	},
}

// openStore loads the effective config and opens the store it points at,
// creating the data directory on first use.
func openStore() (config.Config, *store.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StoreFile()), 0o755); err != nil {
		return config.Config{}, nil, err
	}
	db, err := store.Open(cfg.StoreFile(), storeOptions(cfg))
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, db, nil
}

func storeOptions(cfg config.Config) store.Options {
	return store.Options{
		CacheSize:   cfg.Store.CacheSize,
		BusyTimeout: cfg.Store.BusyTimeout,
		DefaultTTL:  cfg.Store.DefaultTTL,
	}
}
