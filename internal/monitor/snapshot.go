package monitor

import (
	"time"

	"github.com/lumenlaser/lumen/internal/dac"
	"github.com/lumenlaser/lumen/internal/stream"
)

// SessionSource builds a SnapshotFunc observing a device session and,
// optionally, the scheduler feeding it. sched may be nil when nothing is
// streaming.
func SessionSource(session *dac.Session, sched *stream.Scheduler) SnapshotFunc {
	return func() Snapshot {
		status := session.Status()
		snap := Snapshot{
			Time:          time.Now(),
			DeviceAddr:    session.Addr(),
			SessionState:  session.State().String(),
			PlaybackState: status.PlaybackState.String(),
			Fullness:      status.BufferFullness,
			PointRate:     status.PointRate,
			PointCount:    status.PointCount,
			Underrun:      status.Underrun(),
			Valid:         session.Valid(),
		}
		if sched != nil {
			stats := sched.Stats()
			snap.PointsWritten = stats.PointsWritten
			snap.Batches = stats.Batches
			snap.Prepares = stats.Prepares
			snap.Begins = stats.Begins
		}
		return snap
	}
}
