package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/swarmstore/swarmstore/internal/maintenance"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run maintenance operations against the store",
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired records and sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := maintenance.NewRunner(db, cfg.Maintenance).SweepExpired(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Swept %d expired records, %d expired sessions\n", res.Records, res.Sessions)
		return nil
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the store file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		before := fileSize(cfg.StoreFile())
		if err := maintenance.NewRunner(db, cfg.Maintenance).Vacuum(cmd.Context()); err != nil {
			return err
		}
		after := fileSize(cfg.StoreFile())
		fmt.Printf("Vacuum complete: %d KiB -> %d KiB\n", before/1024, after/1024)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup [dest]",
	Short: "Write a compressed snapshot of the store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		dest := ""
		if len(args) > 0 {
			dest = args[0]
		}
		if dest == "" {
			name := fmt.Sprintf("swarm-%s.db.zst", time.Now().UTC().Format("20060102T150405Z"))
			dest = filepath.Join(cfg.Paths.BackupDir, name)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := maintenance.NewRunner(db, cfg.Maintenance).Backup(cmd.Context(), dest); err != nil {
			return err
		}
		fmt.Println("Backup written: " + dest)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <src>",
	Short: "Replace store contents with a backup snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := maintenance.NewRunner(db, cfg.Maintenance).Restore(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("Restore complete from " + args[0])
		return nil
	},
}

var orphansCleanup bool

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List agent-memory rows whose agent is gone",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		runner := maintenance.NewRunner(db, cfg.Maintenance)
		if orphansCleanup {
			n, err := runner.CleanupOrphans(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d orphaned agent-memory rows\n", n)
			return nil
		}
		orphans, err := runner.FindOrphans(cmd.Context())
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			fmt.Println("No orphaned agent-memory rows")
			return nil
		}
		for _, o := range orphans {
			fmt.Printf("  %s/%s\n", o.AgentID, o.Key)
		}
		fmt.Printf("%d orphaned rows (re-run with --cleanup to remove)\n", len(orphans))
		return nil
	},
}

func init() {
	orphansCmd.Flags().BoolVar(&orphansCleanup, "cleanup", false, "Delete the orphaned rows instead of listing them")
	maintenanceCmd.AddCommand(sweepCmd, vacuumCmd, backupCmd, restoreCmd, orphansCmd)
	rootCmd.AddCommand(maintenanceCmd)
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
