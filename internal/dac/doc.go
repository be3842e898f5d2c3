// Package dac implements the client session for the laser projector DAC.
//
// A Session owns one TCP connection to the device and exposes the protocol
// commands (ping, prepare, begin, update, stop, emergency stop, write
// samples) as blocking operations: each sends its bytes and suspends until
// the matching 22-byte standard response has arrived. Inbound bytes are
// consumed by a permanent read loop and paired with commands through the
// FIFO response demultiplexer in the protocol package, so a waiting command
// never blocks the inbound path.
//
// # Lifecycle
//
//	s := dac.NewSession()
//	if err := s.Connect(ctx, "192.168.1.50:7765"); err != nil {
//	    // transport failure: caller decides whether to retry
//	}
//	defer s.Close()
//
//	if err := s.Prepare(ctx); err != nil { ... }
//	if err := s.WriteSamples(ctx, points); err != nil { ... }
//	if err := s.Begin(ctx, 30000); err != nil { ... }
//
// The session state machine is Disconnected, Idle (greeting observed),
// Prepared, Playing; transitions occur only on acknowledged responses. A
// device-reported underrun drops the Playing state so the streaming layer
// re-establishes playback with another begin.
//
// # Cancellation
//
// The core imposes no timeouts: a stalled device stalls its caller. Every
// command takes a context, so callers can impose their own deadlines, and
// Close is the hard-cancel path: it drops queued bytes and pending
// expectations and unblocks every waiting command with ErrSessionClosed.
// Close preserves the dial address, so Reconnect replays the connect
// sequence against the same device.
//
// # Concurrency
//
// One Session exclusively owns one transport. Commands are serialized
// internally to keep request/response pairing intact under the strictly
// ordered demultiplexer; issuing commands from multiple goroutines is safe
// but they take effect one at a time.
package dac
