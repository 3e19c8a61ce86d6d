package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swarmstore/swarmstore/internal/maintenance"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduled maintenance loop in the foreground",
	RunE:  runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := maintenance.NewRunner(db, cfg.Maintenance)
	c, err := runner.Schedule(ctx)
	if err != nil {
		return fmt.Errorf("start maintenance schedule: %w", err)
	}

	printHeader("🛠️ SwarmStore Daemon")
	fmt.Println("Store: " + cfg.StoreFile())
	fmt.Println("Maintenance schedule is running; press Ctrl+C to stop.")

	<-ctx.Done()
	slog.Info("shutting down maintenance daemon")

	// Let an in-flight job finish before closing the store.
	<-c.Stop().Done()
	return nil
}
