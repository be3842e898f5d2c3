package discovery

import (
	"fmt"
	"net"
	"time"

	"github.com/lumenlaser/lumen/internal/dac"
	"github.com/lumenlaser/lumen/internal/protocol"
)

// Device represents a DAC discovered on the network via its broadcast
// beacon.
type Device struct {
	// MAC is the device's hardware address, its stable identity.
	MAC net.HardwareAddr

	// IP is the source address the beacon arrived from.
	IP net.IP

	// HardwareRev and SoftwareRev are the device's reported revisions.
	HardwareRev uint16
	SoftwareRev uint16

	// BufferCapacity is the size of the device's point ring buffer.
	BufferCapacity uint16

	// MaxPointRate is the highest point rate the device supports.
	MaxPointRate uint32

	// Status is the status block snapshot carried in the beacon.
	Status protocol.DACStatus

	// DiscoveredAt is when the beacon was received.
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	return fmt.Sprintf("DAC %s at %s (hw %d, sw %d, buffer %d, max rate %d)",
		d.MAC, d.IP, d.HardwareRev, d.SoftwareRev, d.BufferCapacity, d.MaxPointRate)
}

// Addr returns the TCP dial target for the device's command port.
func (d *Device) Addr() string {
	return net.JoinHostPort(d.IP.String(), fmt.Sprintf("%d", dac.DefaultPort))
}
