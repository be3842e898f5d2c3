package emulator

import (
	"context"
	"testing"
	"time"

	"github.com/lumenlaser/lumen/internal/dac"
	"github.com/lumenlaser/lumen/internal/protocol"
)

// startDAC runs a virtual DAC on an ephemeral loopback port and returns
// it with its dial address.
func startDAC(t *testing.T, config *Config) (*DAC, string) {
	t.Helper()
	if config == nil {
		config = &Config{}
	}
	config.Listen = "127.0.0.1:0"

	d, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})
	return d, d.Addr().String()
}

func connect(t *testing.T, addr string) *dac.Session {
	t.Helper()
	session := dac.NewSession()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := session.Connect(ctx, addr); err != nil {
		t.Fatalf("Connect(%s) error = %v", addr, err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func makePoints(n int) []protocol.Point {
	points := make([]protocol.Point, n)
	for i := range points {
		points[i] = protocol.Point{R: 0xFFFF, G: 0xFFFF, B: 0xFFFF, Intensity: 0xFFFF}
	}
	return points
}

func TestFullPlaybackLifecycle(t *testing.T) {
	_, addr := startDAC(t, nil)
	session := connect(t, addr)
	ctx := context.Background()

	if got := session.State(); got != dac.StateIdle {
		t.Fatalf("state after connect = %v, want %v", got, dac.StateIdle)
	}

	resp, err := session.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !resp.ACK() {
		t.Errorf("Ping() response code = %q, want ack", resp.Code)
	}
	if resp.Status.PlaybackState != protocol.PlaybackIdle {
		t.Errorf("playback state = %v, want idle", resp.Status.PlaybackState)
	}

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if got := session.PlaybackState(); got != protocol.PlaybackPrepared {
		t.Errorf("playback state after prepare = %v, want prepared", got)
	}

	if err := session.WriteSamples(ctx, makePoints(100)); err != nil {
		t.Fatalf("WriteSamples() error = %v", err)
	}
	if got := session.BufferFullness(); got != 100 {
		t.Errorf("buffer fullness = %d, want 100", got)
	}

	if err := session.Begin(ctx, 30000); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if got := session.PlaybackState(); got != protocol.PlaybackPlaying {
		t.Errorf("playback state after begin = %v, want playing", got)
	}
	if !session.PlaybackEstablished() {
		t.Error("PlaybackEstablished() = false after begin")
	}

	if err := session.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := session.PlaybackState(); got != protocol.PlaybackIdle {
		t.Errorf("playback state after stop = %v, want idle", got)
	}
}

func TestBeginWithoutPrepareRejected(t *testing.T) {
	_, addr := startDAC(t, nil)
	session := connect(t, addr)
	ctx := context.Background()

	if err := session.Begin(ctx, 30000); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	// The device refuses begin outside the prepared state, so playback
	// is not established.
	if session.PlaybackEstablished() {
		t.Error("PlaybackEstablished() = true after rejected begin")
	}
	// Refusal is a non-ack response, which the session records.
	if session.Valid() {
		t.Error("Valid() = true after rejected begin")
	}
}

func TestRateAboveMaxRejected(t *testing.T) {
	_, addr := startDAC(t, &Config{MaxRate: 1000})
	session := connect(t, addr)
	ctx := context.Background()

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := session.Begin(ctx, 2000); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if session.PlaybackEstablished() {
		t.Error("PlaybackEstablished() = true for rate above device maximum")
	}
}

func TestDataOverflowRejected(t *testing.T) {
	_, addr := startDAC(t, &Config{Capacity: 50})
	session := connect(t, addr)
	ctx := context.Background()

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := session.WriteSamples(ctx, makePoints(60)); err != nil {
		t.Fatalf("WriteSamples() error = %v", err)
	}
	if session.Valid() {
		t.Error("Valid() = true after buffer overflow refusal")
	}
	if got := session.BufferFullness(); got != 0 {
		t.Errorf("buffer fullness = %d, want 0 (overflow batch discarded)", got)
	}
}

func TestUnderrunRaisedWhenBufferDrains(t *testing.T) {
	_, addr := startDAC(t, nil)
	session := connect(t, addr)
	ctx := context.Background()

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := session.WriteSamples(ctx, makePoints(10)); err != nil {
		t.Fatalf("WriteSamples() error = %v", err)
	}
	if err := session.Begin(ctx, 100000); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	// 10 points at 100k points/sec are gone in a tenth of a millisecond.
	time.Sleep(50 * time.Millisecond)

	resp, err := session.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if !resp.Status.Underrun() {
		t.Error("underrun flag not raised after buffer drained dry")
	}
	if resp.Status.PlaybackState != protocol.PlaybackIdle {
		t.Errorf("playback state = %v, want idle after underrun", resp.Status.PlaybackState)
	}
}

func TestPrepareClearsUnderrunFlag(t *testing.T) {
	_, addr := startDAC(t, nil)
	session := connect(t, addr)
	ctx := context.Background()

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := session.WriteSamples(ctx, makePoints(10)); err != nil {
		t.Fatalf("WriteSamples() error = %v", err)
	}
	if err := session.Begin(ctx, 100000); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() after underrun error = %v", err)
	}
	resp, err := session.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if resp.Status.Underrun() {
		t.Error("underrun flag survived prepare")
	}
	if resp.Status.PlaybackState != protocol.PlaybackPrepared {
		t.Errorf("playback state = %v, want prepared", resp.Status.PlaybackState)
	}
}

func TestEmergencyStop(t *testing.T) {
	_, addr := startDAC(t, nil)
	session := connect(t, addr)
	ctx := context.Background()

	if err := session.Prepare(ctx); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := session.WriteSamples(ctx, makePoints(100)); err != nil {
		t.Fatalf("WriteSamples() error = %v", err)
	}
	if err := session.Begin(ctx, 30000); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	if err := session.EmergencyStop(ctx); err != nil {
		t.Fatalf("EmergencyStop() error = %v", err)
	}
	resp, err := session.Ping(ctx)
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if resp.Status.PlaybackState != protocol.PlaybackIdle {
		t.Errorf("playback state = %v, want idle after e-stop", resp.Status.PlaybackState)
	}
	if resp.Status.BufferFullness != 0 {
		t.Errorf("buffer fullness = %d, want 0 after e-stop", resp.Status.BufferFullness)
	}
}

func TestActiveConnections(t *testing.T) {
	d, addr := startDAC(t, nil)

	first := connect(t, addr)
	second := connect(t, addr)

	if got := d.ActiveConnections(); got != 2 {
		t.Errorf("ActiveConnections() = %d, want 2", got)
	}

	_ = first.Close()
	_ = second.Close()

	deadline := time.Now().Add(2 * time.Second)
	for d.ActiveConnections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ActiveConnections() = %d, want 0", d.ActiveConnections())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopClosesActiveConnections(t *testing.T) {
	config := &Config{Listen: "127.0.0.1:0"}
	d, err := New(config)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	connect(t, d.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	// Stop waits for connection handlers, so the count is settled.
	if got := d.ActiveConnections(); got != 0 {
		t.Errorf("ActiveConnections() after Stop = %d, want 0", got)
	}
}

func TestInvalidMAC(t *testing.T) {
	if _, err := New(&Config{MAC: "not-a-mac"}); err == nil {
		t.Error("New() with invalid MAC should fail")
	}
}
