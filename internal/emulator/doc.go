// Package emulator implements a virtual DAC for development and testing
// without hardware.
//
// The emulator listens on the device's TCP command port, sends the
// greeting on accept, and answers every command with the standard
// response frame. Behind the wire surface it simulates the playback
// engine: points queued with data commands drain at the begun point
// rate, and draining the buffer dry during playback raises the underrun
// flag and drops the engine back to idle, exactly the failure mode
// client flow control exists to avoid.
//
// Optionally the emulator broadcasts discovery beacons, so `lumen
// discover` finds it like a physical device:
//
//	dac, err := emulator.New(&emulator.Config{
//		Listen: ":7765",
//		Beacon: true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := dac.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer dac.Stop(context.Background())
//
// State is shared across connections, matching the single playback
// engine of the real device.
package emulator
