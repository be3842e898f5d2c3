package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlaser/lumen/internal/logging"
	"github.com/lumenlaser/lumen/internal/protocol"
)

const (
	// BeaconPort is the UDP port the DAC broadcasts its beacon on, about
	// once per second.
	BeaconPort = 7654

	// BeaconSize is the fixed beacon length: mac[6], hw rev u16, sw rev
	// u16, buffer capacity u16, max point rate u32, then the 20-byte
	// status block.
	BeaconSize = 16 + protocol.StatusBlockSize

	// DefaultScanTimeout is the default timeout for device discovery
	DefaultScanTimeout = 10 * time.Second
)

// ParseBeacon decodes a broadcast beacon received from src.
func ParseBeacon(data []byte, src net.IP) (*Device, error) {
	if len(data) < BeaconSize {
		return nil, &protocol.ProtocolError{Frame: "beacon", Got: len(data), Need: BeaconSize}
	}

	status, err := protocol.ParseStatusBlock(data[16:BeaconSize])
	if err != nil {
		return nil, err
	}

	mac := make(net.HardwareAddr, 6)
	copy(mac, data[0:6])

	return &Device{
		MAC:            mac,
		IP:             src,
		HardwareRev:    binary.LittleEndian.Uint16(data[6:8]),
		SoftwareRev:    binary.LittleEndian.Uint16(data[8:10]),
		BufferCapacity: binary.LittleEndian.Uint16(data[10:12]),
		MaxPointRate:   binary.LittleEndian.Uint32(data[12:16]),
		Status:         status,
		DiscoveredAt:   time.Now(),
	}, nil
}

// EncodeBeacon builds the wire form of a beacon. Used by the emulator.
func EncodeBeacon(d *Device) []byte {
	buf := make([]byte, BeaconSize)
	copy(buf[0:6], d.MAC)
	binary.LittleEndian.PutUint16(buf[6:8], d.HardwareRev)
	binary.LittleEndian.PutUint16(buf[8:10], d.SoftwareRev)
	binary.LittleEndian.PutUint16(buf[10:12], d.BufferCapacity)
	binary.LittleEndian.PutUint32(buf[12:16], d.MaxPointRate)
	protocol.EncodeStatusBlock(buf[16:], d.Status)
	return buf
}

// Scanner listens for DAC broadcast beacons
type Scanner struct {
	// Timeout is the maximum time to wait for device discovery
	Timeout time.Duration

	// Port overrides the beacon port. Zero means BeaconPort. Tests use
	// this to listen on an ephemeral port.
	Port int
}

// NewScanner creates a beacon scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// ScanForDevices discovers all DACs on the local network
// Returns a list of discovered devices or an error
func (s *Scanner) ScanForDevices() ([]*Device, error) {
	return s.ScanForDevicesWithContext(context.Background())
}

// ScanForDevicesWithContext discovers devices with a custom context.
// Beacons are collected until the timeout elapses or the context is
// cancelled; devices are deduplicated by MAC, keeping the latest beacon.
func (s *Scanner) ScanForDevicesWithContext(ctx context.Context) ([]*Device, error) {
	port := s.Port
	if port == 0 {
		port = BeaconPort
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to listen for beacons: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	// Cancellation unblocks the read by forcing the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	seen := make(map[string]*Device)
	buf := make([]byte, 256)

	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			return nil, fmt.Errorf("beacon read: %w", err)
		}

		device, err := ParseBeacon(buf[:n], src.IP)
		if err != nil {
			logging.Debug("ignoring malformed beacon",
				zap.String("src", src.String()),
				zap.Int("length", n),
				zap.Error(err),
			)
			continue
		}

		key := device.MAC.String()
		if _, ok := seen[key]; !ok {
			logging.Info("Discovered DAC",
				zap.String("mac", key),
				zap.String("ip", device.IP.String()),
				zap.Uint16("buffer_capacity", device.BufferCapacity),
				zap.Uint32("max_point_rate", device.MaxPointRate),
			)
		}
		seen[key] = device
	}

	devices := make([]*Device, 0, len(seen))
	for _, d := range seen {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].MAC.String() < devices[j].MAC.String()
	})
	return devices, nil
}

// ScanForDevices discovers devices using a scanner with the given timeout.
// Convenience wrapper for CLI use.
func ScanForDevices(timeout time.Duration) ([]*Device, error) {
	s := NewScanner()
	if timeout > 0 {
		s.Timeout = timeout
	}
	return s.ScanForDevices()
}
