package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lumenlaser/lumen/internal/protocol"
)

func testDevice(mac byte) *Device {
	return &Device{
		MAC:            net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, mac},
		HardwareRev:    2,
		SoftwareRev:    17,
		BufferCapacity: 1799,
		MaxPointRate:   100000,
		Status: protocol.DACStatus{
			PlaybackState:  protocol.PlaybackIdle,
			BufferFullness: 0,
			PointRate:      0,
		},
	}
}

func TestBeaconRoundTrip(t *testing.T) {
	want := testDevice(0x42)
	data := EncodeBeacon(want)

	if len(data) != BeaconSize {
		t.Fatalf("beacon length = %d, want %d", len(data), BeaconSize)
	}

	got, err := ParseBeacon(data, net.ParseIP("192.168.1.50"))
	if err != nil {
		t.Fatalf("ParseBeacon: %v", err)
	}

	if got.MAC.String() != want.MAC.String() {
		t.Errorf("mac = %s, want %s", got.MAC, want.MAC)
	}
	if got.HardwareRev != want.HardwareRev || got.SoftwareRev != want.SoftwareRev {
		t.Errorf("revs = %d/%d, want %d/%d", got.HardwareRev, got.SoftwareRev, want.HardwareRev, want.SoftwareRev)
	}
	if got.BufferCapacity != 1799 {
		t.Errorf("capacity = %d, want 1799", got.BufferCapacity)
	}
	if got.MaxPointRate != 100000 {
		t.Errorf("max rate = %d, want 100000", got.MaxPointRate)
	}
	if got.Status != want.Status {
		t.Errorf("status = %+v, want %+v", got.Status, want.Status)
	}
	if got.IP.String() != "192.168.1.50" {
		t.Errorf("ip = %s, want 192.168.1.50", got.IP)
	}
}

func TestParseBeaconTooShort(t *testing.T) {
	if _, err := ParseBeacon(make([]byte, BeaconSize-1), nil); err == nil {
		t.Error("expected error for short beacon, got nil")
	}
}

func TestDeviceAddr(t *testing.T) {
	d := testDevice(0x01)
	d.IP = net.ParseIP("10.0.0.7")
	if got, want := d.Addr(), "10.0.0.7:7765"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

func TestScannerCollectsAndDeduplicates(t *testing.T) {
	// Listen on an ephemeral port and send beacons to it from a local
	// UDP socket.
	scanner := NewScanner()
	scanner.Timeout = 500 * time.Millisecond

	ln, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	scanner.Port = ln.LocalAddr().(*net.UDPAddr).Port
	_ = ln.Close() // free the port for the scanner

	resultCh := make(chan []*Device, 1)
	errCh := make(chan error, 1)
	go func() {
		devices, err := scanner.ScanForDevices()
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- devices
	}()

	// Give the scanner a moment to bind, then emit beacons: two devices,
	// one of them twice.
	time.Sleep(50 * time.Millisecond)
	sender, err := net.Dial("udp4", (&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: scanner.Port}).String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer sender.Close()

	for _, mac := range []byte{0x01, 0x02, 0x01} {
		if _, err := sender.Write(EncodeBeacon(testDevice(mac))); err != nil {
			t.Fatalf("send beacon: %v", err)
		}
	}
	// Malformed datagram must be ignored, not fail the scan.
	if _, err := sender.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send junk: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("scan: %v", err)
	case devices := <-resultCh:
		if len(devices) != 2 {
			t.Fatalf("found %d devices, want 2", len(devices))
		}
		// Sorted by MAC.
		if devices[0].MAC[5] != 0x01 || devices[1].MAC[5] != 0x02 {
			t.Errorf("devices out of order: %v, %v", devices[0].MAC, devices[1].MAC)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not finish")
	}
}

func TestScannerContextCancel(t *testing.T) {
	scanner := NewScanner()
	scanner.Timeout = 30 * time.Second

	ln, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	scanner.Port = ln.LocalAddr().(*net.UDPAddr).Port
	_ = ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if _, err := scanner.ScanForDevicesWithContext(ctx); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancel did not cut the scan short (took %v)", elapsed)
	}
}
