// Lumen-emu is a virtual laser DAC for development and testing.
//
// It speaks the streaming point protocol over TCP and optionally
// broadcasts discovery beacons, so the 'lumen' utility and other
// clients can exercise the full playback lifecycle without hardware
// and without laser safety concerns.
//
// Usage:
//
//	lumen-emu serve [flags]
//
// See 'lumen-emu serve --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlaser/lumen/internal/emulator"
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
	Use:   "lumen-emu",
	Short: "Virtual Laser DAC",
	Long: `A virtual laser DAC speaking the streaming point protocol.

The emulator models the device's point buffer, draining it at the begun
point rate and raising the underrun flag when it runs dry, so client
flow control can be exercised realistically without hardware.`,
	Version: version.Version,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command and flags
var (
	listenAddr string
	capacity   uint16
	maxRate    uint32
	macAddr    string
	beacon     bool
	logLevel   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the virtual DAC",
	Long: `Start the virtual DAC and serve client connections.

By default the emulator listens on the standard command port with the
standard buffer capacity. Enable --beacon to broadcast discovery
beacons so 'lumen discover' finds the emulator like a real device.`,
	Example: `  # Start with defaults
  lumen-emu serve

  # Start on a custom port with a small buffer
  lumen-emu serve --listen :9765 --capacity 300

  # Announce on the network
  lumen-emu serve --beacon --log-level debug`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":7765", "TCP listen address")
	serveCmd.Flags().Uint16Var(&capacity, "capacity", 0, "Point buffer capacity (0 = protocol default)")
	serveCmd.Flags().Uint32Var(&maxRate, "max-rate", 0, "Maximum accepted point rate (0 = default)")
	serveCmd.Flags().StringVar(&macAddr, "mac", "", "Hardware address to report (default fixed)")
	serveCmd.Flags().BoolVar(&beacon, "beacon", false, "Broadcast discovery beacons")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	dac, err := emulator.New(&emulator.Config{
		Listen:   listenAddr,
		Capacity: capacity,
		MaxRate:  maxRate,
		MAC:      macAddr,
		Beacon:   beacon,
	})
	if err != nil {
		return fmt.Errorf("failed to create emulator: %w", err)
	}

	if err := dac.Start(); err != nil {
		return fmt.Errorf("failed to start emulator: %w", err)
	}
	fmt.Printf("Virtual DAC listening on %s\n", dac.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dac.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}
	logging.Sync()
	return nil
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lumen-emu %s (commit: %s)\n", version.Version, version.Commit)
	},
}
