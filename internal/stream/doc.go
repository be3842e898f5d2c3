// Package stream implements the flow-controlled feed loop between a point
// source and a DAC session.
//
// The DAC drains its bounded ring buffer at the begun point rate; the host
// must keep the buffer fed without overrunning it. The Scheduler pulls one
// frame at a time from a Source, trims it to the device's last-reported
// spare capacity, writes it, and performs the prepare/begin handshake:
// prepare whenever the device reports idle, begin whenever playback is not
// currently established (first start and after every underrun).
//
// Capacity estimation is always one round trip stale, since the device only
// reports occupancy in response to a write. When the estimate drops below a
// low threshold, the loop pauses briefly for the device to drain and pads
// the estimate upward, trading a small overshoot risk for not starving the
// device with tiny batches.
//
//	sched := stream.NewScheduler(session, pattern.Next, 30000)
//	go func() { errCh <- sched.Run(ctx) }()
//	...
//	sched.Stop()
//
// CirclePattern is a built-in demo source for streaming without a geometry
// engine attached.
package stream
