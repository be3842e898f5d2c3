package emulator

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lumenlaser/lumen/internal/logging"
	"github.com/lumenlaser/lumen/internal/protocol"
	"go.uber.org/zap"
)

// Config holds the virtual DAC configuration.
type Config struct {
	Listen         string        // TCP listen address, e.g. ":7765"
	Capacity       uint16        // point buffer capacity
	MaxRate        uint32        // highest accepted point rate
	MAC            string        // hardware address reported in the beacon
	HardwareRev    uint16        // hardware revision reported in the beacon
	SoftwareRev    uint16        // software revision reported in the beacon
	Beacon         bool          // broadcast discovery beacons
	BeaconInterval time.Duration // interval between beacons (default 1s)
}

// DefaultMAC is the hardware address a virtual DAC reports unless
// configured otherwise.
const DefaultMAC = "02:00:45:74:68:44"

// DAC is a virtual device that speaks the wire protocol over TCP. It
// models the real device's point buffer: queued points drain at the
// begun point rate, and an empty buffer during playback raises the
// underrun flag and drops the device back to idle.
type DAC struct {
	config   *Config
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	conns    map[string]net.Conn
	closed   bool

	// beacon broadcaster, nil when beacons are disabled
	beaconConn *net.UDPConn

	state deviceState
}

// New creates a virtual DAC. Zero config fields take protocol defaults.
func New(config *Config) (*DAC, error) {
	if config.Listen == "" {
		config.Listen = ":7765"
	}
	if config.Capacity == 0 {
		config.Capacity = protocol.BufferCapacity
	}
	if config.MaxRate == 0 {
		config.MaxRate = 100000
	}
	if config.MAC == "" {
		config.MAC = DefaultMAC
	}
	if config.BeaconInterval <= 0 {
		config.BeaconInterval = time.Second
	}
	if _, err := net.ParseMAC(config.MAC); err != nil {
		return nil, fmt.Errorf("invalid MAC %q: %w", config.MAC, err)
	}

	d := &DAC{
		config: config,
		quit:   make(chan struct{}),
		conns:  make(map[string]net.Conn),
	}
	d.state.capacity = config.Capacity
	d.state.maxRate = config.MaxRate
	return d, nil
}

// Start binds the listener and begins accepting connections. It returns
// once the DAC is serving; use Stop to shut it down.
func (d *DAC) Start() error {
	listener, err := net.Listen("tcp", d.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.config.Listen, err)
	}
	d.listener = listener

	logging.Info("Virtual DAC listening",
		zap.String("addr", listener.Addr().String()),
		zap.Uint16("capacity", d.config.Capacity),
		zap.Uint32("max_rate", d.config.MaxRate),
	)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.acceptConnections()
	}()

	if d.config.Beacon {
		if err := d.startBeacon(); err != nil {
			_ = listener.Close()
			return err
		}
	}

	return nil
}

// Addr returns the bound listener address. Useful when Listen requested
// an ephemeral port.
func (d *DAC) Addr() net.Addr {
	return d.listener.Addr()
}

// Stop closes the listener and all active connections, then waits for
// connection handlers to drain or the context to expire.
func (d *DAC) Stop(ctx context.Context) error {
	logging.Info("Stopping virtual DAC")

	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.quit)
	}
	if d.listener != nil {
		_ = d.listener.Close()
	}
	if d.beaconConn != nil {
		_ = d.beaconConn.Close()
	}
	for addr, conn := range d.conns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connected clients.
func (d *DAC) ActiveConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *DAC) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			continue
		}

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handleConnection(conn)
		}()
	}
}
