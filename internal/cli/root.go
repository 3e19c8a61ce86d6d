package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/swarmstore/swarmstore/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"  ____                               ____  _\n" +
		" / ___|_      ____ _ _ __ _ __ ___  / ___|| |_ ___  _ __ ___\n" +
		" \\___ \\ \\ /\\ / / _` | '__| '_ ` _ \\ \\___ \\| __/ _ \\| '__/ _ \\\n" +
		"  ___) \\ V  V / (_| | |  | | | | | | ___) | || (_) | | |  __/\n" +
		" |____/ \\_/\\_/ \\__,_|_|  |_| |_| |_||____/ \\__\\___/|_|  \\___|\n"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "swarmstore",
	Short: "SwarmStore - Persistent coordination store for agent swarms",
	Long:  color.CyanString(logo) + "\nAn embedded SQLite-backed coordination store for multi-agent systems.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.swarmstore/config.json)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}
