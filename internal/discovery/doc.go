// Package discovery finds DACs on the local network.
//
// The device announces itself by broadcasting a fixed 36-byte beacon over
// UDP about once per second: its MAC address, hardware and software
// revisions, ring buffer capacity, maximum point rate, and a snapshot of
// the same 20-byte status block it returns in command responses. The
// beacon is a proprietary datagram, not an mDNS/DNS-SD record, so
// discovery listens on the beacon port directly.
//
// # Usage
//
//	devices, err := discovery.ScanForDevices(10 * time.Second)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range devices {
//	    fmt.Println(d) // DAC aa:bb:cc:dd:ee:ff at 192.168.1.50 ...
//	}
//
// Devices are deduplicated by MAC address; the latest beacon wins. The
// scan runs for the configured timeout and can be cut short through the
// context.
package discovery
