package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenlaser/lumen/internal/config"
	"github.com/lumenlaser/lumen/internal/dac"
	"github.com/lumenlaser/lumen/internal/discovery"
	"github.com/lumenlaser/lumen/internal/monitor"
	"github.com/lumenlaser/lumen/internal/stream"
	"github.com/lumenlaser/lumen/internal/tui"
)

// Command flags
var (
	deviceAddr   string
	devicePort   int
	logLevel     string
	outputFormat string
	scanTimeout  int
	pointRate    uint32
	framePoints  int
	withMonitor  bool
	monitorAddr  string
)

func init() {
	// Common flags for device commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&deviceAddr, "device", "", "Device address (skips discovery)")
	rootCmd.PersistentFlags().IntVar(&devicePort, "port", dac.DefaultPort, "Device TCP command port")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error; silent when unset)")

	// Add subcommands directly to root
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(estopCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(nameCmd)
}

// resolveDevice returns the dial address for the target device: the
// --device flag when given, otherwise the first device found by
// discovery.
func resolveDevice() (string, error) {
	if deviceAddr != "" {
		if strings.Contains(deviceAddr, ":") {
			return deviceAddr, nil
		}
		return net.JoinHostPort(deviceAddr, fmt.Sprintf("%d", devicePort)), nil
	}

	registry, err := config.LoadRegistry()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if !registry.Preferences.AutoDiscover {
		return "", fmt.Errorf("no device specified and auto-discovery is disabled; use --device")
	}

	timeout := time.Duration(registry.Preferences.DiscoverTimeout) * time.Second
	fmt.Printf("No device specified, discovering (timeout: %s)...\n", timeout)

	devices, err := discovery.ScanForDevices(timeout)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no devices found; use --device to specify one manually")
	}

	device := devices[0]
	recordDevice(registry, device)
	fmt.Printf("Using %s\n\n", device)
	return device.Addr(), nil
}

// recordDevice folds a discovered device into the registry and saves it.
// Registry failures are not fatal to the command that triggered them.
func recordDevice(registry *config.Registry, device *discovery.Device) {
	mac := device.MAC.String()
	registry.UpdateDeviceLastSeen(mac, device.IP.String())
	registry.RecordCapabilities(mac, device.BufferCapacity, device.MaxPointRate)
	if err := config.SaveGlobal(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save device registry: %v\n", err)
	}
}

// connectSession opens a session to the resolved device.
func connectSession() (*dac.Session, error) {
	addr, err := resolveDevice()
	if err != nil {
		return nil, err
	}

	session := dac.NewSession()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := session.Connect(ctx, addr); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return session, nil
}

// discoverCmd scans for devices on the network
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover DACs on the network",
	Long: `Discover DACs by listening for their UDP broadcast beacons.

Every device broadcasts a beacon about once per second carrying its
hardware address, buffer capacity, maximum point rate, and current
status. Discovered devices are remembered in the local registry.`,
	Example: `  # Listen for 10 seconds (default)
  lumen discover

  # Quick 3-second scan
  lumen discover --timeout 3`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Listening for device beacons (timeout: %ds)...\n\n", scanTimeout)

	devices, err := discovery.ScanForDevices(time.Duration(scanTimeout) * time.Second)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Ensure the device is powered on and on the same subnet")
		fmt.Println("  - Beacons are broadcast; VPNs and some Wi-Fi APs drop them")
		fmt.Println("  - Try increasing --timeout on congested networks")
		fmt.Println("  - Use --device to specify the address manually")
		return nil
	}

	registry, err := config.LoadRegistry()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Printf("Found %d device(s):\n\n", len(devices))
	for i, device := range devices {
		nickname := ""
		if entry := registry.GetDevice(device.MAC.String()); entry != nil && entry.Nickname != "" {
			nickname = fmt.Sprintf(" (%s)", entry.Nickname)
		}
		fmt.Printf("%d. %s%s\n", i+1, device.MAC, nickname)
		fmt.Printf("   IP:        %s\n", device.IP)
		fmt.Printf("   Hardware:  rev %d (sw %d)\n", device.HardwareRev, device.SoftwareRev)
		fmt.Printf("   Buffer:    %d points\n", device.BufferCapacity)
		fmt.Printf("   Max rate:  %d pps\n", device.MaxPointRate)
		fmt.Printf("   Playback:  %s\n", device.Status.PlaybackState)
		fmt.Println()
		recordDevice(registry, device)
	}

	fmt.Println("Use 'lumen status --device <ip>' to inspect a device")
	fmt.Println("Use 'lumen watch --device <ip>' for a live dashboard")
	return nil
}

// pingCmd checks device reachability
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping a device",
	Long:  `Connect to a device and send a single ping, reporting the round trip.`,
	RunE:  runPing,
}

func runPing(cmd *cobra.Command, args []string) error {
	session, err := connectSession()
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	resp, err := session.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	elapsed := time.Since(start)

	if !resp.ACK() {
		return fmt.Errorf("device refused ping (response code %q)", resp.Code)
	}

	fmt.Printf("%s: ack in %s (playback %s, buffer %d)\n",
		session.Addr(), elapsed.Round(time.Microsecond),
		resp.Status.PlaybackState, resp.Status.BufferFullness)
	return nil
}

// statusCmd displays the device status block
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device status",
	Long: `Display the full status block of a device.

The status block accompanies every protocol response; this command pings
the device and decodes the result.`,
	Example: `  # Status with auto-discovery
  lumen status

  # Status for a specific device
  lumen status --device 192.168.1.50

  # JSON output for scripting
  lumen status --device 192.168.1.50 --format json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	session, err := connectSession()
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := session.Ping(ctx)
	if err != nil {
		return fmt.Errorf("status query failed: %w", err)
	}
	status := resp.Status

	if outputFormat == "json" {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Device %s\n\n", session.Addr())
	fmt.Printf("  Protocol:       %d\n", status.Protocol)
	fmt.Printf("  Light engine:   %d (flags 0x%04x)\n", status.LightEngineState, status.LightEngineFlags)
	fmt.Printf("  Playback:       %s (flags 0x%04x)\n", status.PlaybackState, status.PlaybackFlags)
	fmt.Printf("  Source:         %d (flags 0x%04x)\n", status.Source, status.SourceFlags)
	fmt.Printf("  Buffer:         %d points\n", status.BufferFullness)
	fmt.Printf("  Point rate:     %d pps\n", status.PointRate)
	fmt.Printf("  Points played:  %d\n", status.PointCount)
	if status.Underrun() {
		fmt.Printf("\n  WARNING: underrun flag is set\n")
	}
	return nil
}

// playCmd streams a test pattern to the device
var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Stream a test pattern to a device",
	Long: `Stream a circle test pattern to a device until interrupted.

The streamer paces batches against the device's reported spare buffer
capacity, prepares the device when idle, and re-establishes playback
after an underrun. Interrupt with Ctrl-C to stop playback cleanly.`,
	Example: `  # Stream at the configured default rate
  lumen play --device 192.168.1.50

  # Stream at 20000 points per second
  lumen play --device 192.168.1.50 --rate 20000

  # Stream with the WebSocket monitor enabled
  lumen play --device 192.168.1.50 --monitor`,
	RunE: runPlay,
}

func init() {
	playCmd.Flags().Uint32Var(&pointRate, "rate", 0, "Point rate in points per second (0 = configured default)")
	playCmd.Flags().IntVar(&framePoints, "points", 0, "Points per pattern frame (0 = default)")
	playCmd.Flags().BoolVar(&withMonitor, "monitor", false, "Serve live session snapshots over WebSocket")
	playCmd.Flags().StringVar(&monitorAddr, "monitor-addr", "127.0.0.1:7680", "Monitor listen address")
}

func runPlay(cmd *cobra.Command, args []string) error {
	rate := pointRate
	if rate == 0 {
		registry, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		rate = registry.Preferences.DefaultPointRate
	}

	session, err := connectSession()
	if err != nil {
		return err
	}
	defer session.Close()

	pattern := stream.NewCirclePattern(framePoints)
	sched := stream.NewScheduler(session, pattern.Next, rate)

	if withMonitor {
		mon := monitor.New(monitorAddr, time.Second, monitor.SessionSource(session, sched))
		if err := mon.Start(); err != nil {
			return fmt.Errorf("failed to start monitor: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = mon.Stop(ctx)
		}()
		fmt.Printf("Monitor: ws://%s/ws\n", mon.Addr())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Streaming to %s at %d pps (Ctrl-C to stop)...\n", session.Addr(), rate)
	runErr := sched.Run(ctx)

	// Halt playback before disconnecting, whatever ended the run.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	if err := session.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to stop playback: %v\n", err)
	}

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("streaming failed: %w", runErr)
	}

	stats := sched.Stats()
	fmt.Printf("Stopped. %d points in %d batches (%d prepares, %d begins)\n",
		stats.PointsWritten, stats.Batches, stats.Prepares, stats.Begins)
	return nil
}

// stopCmd halts playback
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop playback on a device",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := connectSession()
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.Stop(ctx); err != nil {
			return fmt.Errorf("stop failed: %w", err)
		}
		fmt.Println("Playback stopped.")
		return nil
	},
}

// estopCmd forces the light engine into its emergency stop state
var estopCmd = &cobra.Command{
	Use:   "estop",
	Short: "Emergency stop a device",
	Long: `Force the device's light engine into its emergency stop state.

The laser output is shut off immediately. The device must be reset
before playback can resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := connectSession()
		if err != nil {
			return err
		}
		defer session.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := session.EmergencyStop(ctx); err != nil {
			return fmt.Errorf("emergency stop failed: %w", err)
		}
		fmt.Println("Emergency stop sent.")
		return nil
	},
}

// nameCmd assigns a nickname to a known device
var nameCmd = &cobra.Command{
	Use:   "name <mac> <nickname>",
	Short: "Nickname a device in the local registry",
	Long: `Assign a nickname to a device, keyed by its hardware address.

Nicknames are shown by 'lumen discover' and stored in the local
registry. Run 'lumen discover' first so the device is known.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mac, err := net.ParseMAC(args[0])
		if err != nil {
			return fmt.Errorf("invalid hardware address %q: %w", args[0], err)
		}

		registry, err := config.LoadRegistry()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		registry.SetNickname(mac.String(), args[1])
		if err := config.SaveGlobal(); err != nil {
			return fmt.Errorf("failed to save registry: %w", err)
		}
		fmt.Printf("%s is now %q\n", mac, args[1])
		return nil
	},
}

// watchCmd launches the live dashboard
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a device's status live",
	Long: `Open a live dashboard showing a device's playback state, point
rate, and buffer fullness, refreshed by polling. Read-only: the watch
never sends playback commands.`,
	Example: `  # Watch with auto-discovery
  lumen watch

  # Watch a specific device
  lumen watch --device 192.168.1.50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := resolveDevice()
		if err != nil {
			return err
		}
		return tui.Watch(addr)
	},
}
