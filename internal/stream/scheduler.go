package stream

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlaser/lumen/internal/logging"
	"github.com/lumenlaser/lumen/internal/protocol"
)

// Flow-control tuning. The device only reports buffer occupancy in
// response to a write, so the capacity estimate is always one round trip
// stale; when it runs low we pause briefly for the device to drain and pad
// the estimate upward rather than issue pathologically small batches.
// The pad and pause values are empirically tuned against real hardware.
const (
	lowCapacityThreshold = 100
	capacityPad          = 150
	drainPause           = 5 * time.Millisecond
)

// Source supplies the points to stream: a pull of "available work right
// now". It may return an empty or small frame, signaling nothing ready
// yet, and is invoked repeatedly. Unsent remainder of a frame is discarded
// each iteration; the source is re-queried rather than the remainder
// retained.
type Source func() []protocol.Point

// Device is the session surface the scheduler drives. *dac.Session
// satisfies it.
type Device interface {
	PlaybackState() protocol.PlaybackState
	BufferFullness() uint16
	PlaybackEstablished() bool
	Prepare(ctx context.Context) error
	Begin(ctx context.Context, rate uint32) error
	WriteSamples(ctx context.Context, points []protocol.Point) error
}

// Stats are cumulative scheduler counters, safe to read concurrently.
type Stats struct {
	PointsWritten uint64
	Batches       uint64
	Prepares      uint64
	Begins        uint64
}

// Scheduler continuously feeds a Device from a Source, pacing batches
// against the device's reported spare buffer capacity and handling the
// prepare/begin handshake and underrun recovery.
type Scheduler struct {
	dev  Device
	rate uint32

	srcMu  sync.Mutex
	source Source

	running atomic.Bool

	pointsWritten atomic.Uint64
	batches       atomic.Uint64
	prepares      atomic.Uint64
	begins        atomic.Uint64
}

// NewScheduler creates a scheduler. source may be nil; the loop idles
// until SetSource provides one.
func NewScheduler(dev Device, source Source, rate uint32) *Scheduler {
	return &Scheduler{dev: dev, source: source, rate: rate}
}

// SetSource swaps the sample source. Takes effect on the next iteration.
func (s *Scheduler) SetSource(source Source) {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	s.source = source
}

// Stop keeps the loop from re-entering. An in-flight command is not
// actively cancelled; cancel the Run context or close the session for
// that.
func (s *Scheduler) Stop() {
	s.running.Store(false)
}

// Stats returns a snapshot of the cumulative counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		PointsWritten: s.pointsWritten.Load(),
		Batches:       s.batches.Load(),
		Prepares:      s.prepares.Load(),
		Begins:        s.begins.Load(),
	}
}

// Run executes the streaming loop until Stop is called, the context is
// cancelled, or a command fails. Each iteration pulls one frame from the
// source, prepares the device if it reports idle, trims the frame to the
// spare buffer capacity, writes it, and re-establishes playback with begin
// whenever it is not currently established.
func (s *Scheduler) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	for s.running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		src := s.currentSource()
		if src == nil {
			// No work possible; yield and retry on the next tick.
			runtime.Gosched()
			continue
		}

		frame := src()

		if s.dev.PlaybackState() == protocol.PlaybackIdle {
			if err := s.dev.Prepare(ctx); err != nil {
				return err
			}
			s.prepares.Add(1)
		}

		spare := spareCapacity(s.dev.BufferFullness())
		if spare < lowCapacityThreshold {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(drainPause):
			}
			spare += capacityPad
		}

		if spare < len(frame) {
			frame = frame[:spare]
		}

		if err := s.dev.WriteSamples(ctx, frame); err != nil {
			return err
		}
		s.pointsWritten.Add(uint64(len(frame)))
		s.batches.Add(1)

		if !s.dev.PlaybackEstablished() {
			if err := s.dev.Begin(ctx, s.rate); err != nil {
				return err
			}
			s.begins.Add(1)
			logging.Debug("playback established",
				zap.Uint32("point_rate", s.rate),
			)
		}
	}
	return nil
}

func (s *Scheduler) currentSource() Source {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	return s.source
}

// spareCapacity is the estimated room left in the device ring buffer,
// floored at zero.
func spareCapacity(fullness uint16) int {
	spare := protocol.BufferCapacity - int(fullness)
	if spare < 0 {
		spare = 0
	}
	return spare
}
