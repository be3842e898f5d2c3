package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// countingSource returns snapshots with a strictly increasing batch
// counter, so tests can tell pushes apart.
func countingSource() (SnapshotFunc, *atomic.Uint64) {
	var calls atomic.Uint64
	return func() Snapshot {
		return Snapshot{
			Time:          time.Now(),
			DeviceAddr:    "10.0.0.7:7765",
			SessionState:  "playing",
			PlaybackState: "playing",
			Fullness:      1200,
			PointRate:     30000,
			Batches:       calls.Add(1),
		}
	}, &calls
}

func startMonitor(t *testing.T, interval time.Duration) (*Server, string) {
	t.Helper()
	source, _ := countingSource()
	s := New("127.0.0.1:0", interval, source)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, s.Addr().String()
}

func TestStatusEndpoint(t *testing.T) {
	_, addr := startMonitor(t, time.Minute)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", addr))
	if err != nil {
		t.Fatalf("GET /status error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /status code = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if snap.DeviceAddr != "10.0.0.7:7765" {
		t.Errorf("DeviceAddr = %q", snap.DeviceAddr)
	}
	if snap.Fullness != 1200 {
		t.Errorf("Fullness = %d, want 1200", snap.Fullness)
	}
}

func TestWebSocketPush(t *testing.T) {
	_, addr := startMonitor(t, 20*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// The first snapshot arrives immediately on connect.
	var first Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() first error = %v", err)
	}
	if first.PlaybackState != "playing" {
		t.Errorf("PlaybackState = %q, want playing", first.PlaybackState)
	}

	// Subsequent snapshots come from the broadcast loop.
	var second Snapshot
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON() second error = %v", err)
	}
	if second.Batches <= first.Batches {
		t.Errorf("snapshot counter did not advance: %d then %d", first.Batches, second.Batches)
	}
}

func TestClientDropOnDisconnect(t *testing.T) {
	s, addr := startMonitor(t, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if got := s.ClientCount(); got != 1 {
		t.Fatalf("ClientCount() = %d, want 1", got)
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want 0 after disconnect", s.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStopClosesClients(t *testing.T) {
	source, _ := countingSource()
	s := New("127.0.0.1:0", time.Minute, source)
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", s.Addr()), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	// Drop the greeting snapshot before shutting down.
	var snap Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if err := conn.ReadJSON(&snap); err == nil {
		t.Error("ReadJSON() after Stop should fail")
	}
}
