// Package monitor exposes a live view of a streaming session over
// WebSocket.
//
// While `lumen play --monitor` is streaming, the monitor server pushes a
// JSON snapshot of the session and scheduler once per interval to every
// connected client. The snapshot carries the device's reported status
// (playback state, buffer fullness, point rate, lifetime point count,
// underrun flag) alongside the scheduler's counters, which is usually
// enough to see a flow control problem the moment it starts: fullness
// hugging zero means the source cannot keep up, fullness pinned at
// capacity means pacing is working against a slow consumer.
//
// Endpoints:
//
//	/ws     - WebSocket stream of snapshots, one per interval
//	/status - single snapshot as a plain JSON response
package monitor
