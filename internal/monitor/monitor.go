package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lumenlaser/lumen/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a snapshot to the peer
	writeWait = 10 * time.Second

	// Default interval between pushed snapshots
	defaultInterval = time.Second
)

// Snapshot is one observation of a streaming session, pushed to every
// connected monitor client as JSON.
type Snapshot struct {
	Time          time.Time `json:"time"`
	DeviceAddr    string    `json:"device_addr"`
	SessionState  string    `json:"session_state"`
	PlaybackState string    `json:"playback_state"`
	Fullness      uint16    `json:"buffer_fullness"`
	PointRate     uint32    `json:"point_rate"`
	PointCount    uint32    `json:"point_count"`
	Underrun      bool      `json:"underrun"`
	Valid         bool      `json:"valid"`
	PointsWritten uint64    `json:"points_written"`
	Batches       uint64    `json:"batches"`
	Prepares      uint64    `json:"prepares"`
	Begins        uint64    `json:"begins"`
}

// SnapshotFunc produces the current snapshot. It is called once per push
// interval and must be safe for concurrent use.
type SnapshotFunc func() Snapshot

// Server pushes session snapshots to WebSocket clients. A client connects
// to ws://addr/ws and receives one JSON snapshot immediately, then one per
// interval. GET /status returns a single snapshot for non-WebSocket
// consumers.
type Server struct {
	addr     string
	interval time.Duration
	source   SnapshotFunc

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	wg         sync.WaitGroup

	quit chan struct{}

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

// New creates a monitor server. A non-positive interval takes the
// default of one second.
func New(addr string, interval time.Duration, source SnapshotFunc) *Server {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Server{
		addr:     addr,
		interval: interval,
		source:   source,
		quit:     make(chan struct{}),
		clients:  make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			// The monitor is a local diagnostic surface.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Start binds the listener and begins serving. It returns once the
// server is up; use Stop to shut it down.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/status", s.handleStatus)
	s.httpServer = &http.Server{Handler: mux}

	logging.Info("Monitor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("interval", s.interval),
	)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logging.Error("Monitor server error", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.broadcastLoop()
	}()

	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop shuts the server down, closing every client connection.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.quit)
	}
	for conn := range s.clients {
		_ = conn.Close()
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[conn] = true
	s.mu.Unlock()

	logging.LogConnection(r.RemoteAddr, "monitor_client_connected")

	// First snapshot right away so the client is not blank until the
	// next tick.
	s.push(conn, s.source())

	// Drain inbound frames to observe the close handshake. The monitor
	// never reads client data.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn, r.RemoteAddr)
				return
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source()); err != nil {
		logging.Debug("Status write failed", zap.Error(err))
	}
}

func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(s.clients))
		for conn := range s.clients {
			conns = append(conns, conn)
		}
		s.mu.Unlock()

		if len(conns) == 0 {
			continue
		}
		snap := s.source()
		for _, conn := range conns {
			s.push(conn, snap)
		}
	}
}

// push writes one snapshot to a client, dropping the client on failure.
func (s *Server) push(conn *websocket.Conn, snap Snapshot) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snap); err != nil {
		s.drop(conn, conn.RemoteAddr().String())
	}
}

func (s *Server) drop(conn *websocket.Conn, remoteAddr string) {
	s.mu.Lock()
	_, present := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()

	_ = conn.Close()
	if present {
		logging.LogConnection(remoteAddr, "monitor_client_disconnected")
	}
}
