// Lumen is a control utility for networked laser projector DACs.
//
// It provides device discovery, status inspection, playback control,
// and a live watch dashboard for DACs speaking the streaming point
// protocol over TCP.
//
// Usage:
//
//	lumen [command] [flags]
//
// See 'lumen --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumenlaser/lumen/internal/logging"
	"github.com/lumenlaser/lumen/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Laser DAC Control Utility",
	Long: `A standalone utility for controlling networked laser projector DACs.

Provides device discovery, status inspection, playback streaming with
flow control, and a live watch dashboard.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lumen %s (commit: %s)\n", version.Version, version.Commit)
	},
}
