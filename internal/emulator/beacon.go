package emulator

import (
	"fmt"
	"net"
	"time"

	"github.com/lumenlaser/lumen/internal/discovery"
	"github.com/lumenlaser/lumen/internal/logging"
	"go.uber.org/zap"
)

// startBeacon launches the discovery broadcaster. It sends a beacon
// datagram to the local broadcast address on the discovery port at the
// configured interval, the way the real device announces itself.
func (d *DAC) startBeacon() error {
	target := &net.UDPAddr{
		IP:   net.IPv4bcast,
		Port: discovery.BeaconPort,
	}
	conn, err := net.DialUDP("udp4", nil, target)
	if err != nil {
		return fmt.Errorf("failed to open beacon socket: %w", err)
	}
	d.beaconConn = conn

	mac, _ := net.ParseMAC(d.config.MAC)
	logging.Info("Broadcasting discovery beacons",
		zap.String("mac", mac.String()),
		zap.Duration("interval", d.config.BeaconInterval),
	)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.config.BeaconInterval)
		defer ticker.Stop()

		for {
			select {
			case <-d.quit:
				return
			case <-ticker.C:
			}

			beacon := discovery.EncodeBeacon(&discovery.Device{
				MAC:            mac,
				HardwareRev:    d.config.HardwareRev,
				SoftwareRev:    d.config.SoftwareRev,
				BufferCapacity: d.config.Capacity,
				MaxPointRate:   d.config.MaxRate,
				Status:         d.state.snapshot(),
			})
			if _, err := conn.Write(beacon); err != nil {
				logging.Debug("Beacon send failed", zap.Error(err))
			}
		}
	}()

	return nil
}
