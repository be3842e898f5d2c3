package dac

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumenlaser/lumen/internal/logging"
	"github.com/lumenlaser/lumen/internal/protocol"
)

// DefaultPort is the TCP port the DAC listens on.
const DefaultPort = 7765

// readBufferSize is the size of the transport read buffer. Responses are
// 22 bytes, so a single read normally drains several pipelined responses.
const readBufferSize = 4096

// Session owns one connection to a DAC and issues protocol commands over
// it. Every command sends its bytes and then suspends until the matching
// standard response arrives through the response demultiplexer; the device
// answers strictly in request order, so commands are serialized internally.
//
// A transport is exclusively owned by one Session. The zero value is not
// usable; call NewSession.
type Session struct {
	// cmdMu serializes command issue so the expect/write pair of one
	// command can never interleave with another's.
	cmdMu sync.Mutex

	// mu guards the fields below.
	mu     sync.Mutex
	conn   net.Conn
	demux  *protocol.Demux
	addr   string // last successful dial target, survives Close
	state  State
	status protocol.DACStatus
	valid  bool
	done   chan struct{} // closed by Close to unblock waiters
}

// NewSession creates a disconnected session.
func NewSession() *Session {
	return &Session{
		demux: protocol.NewDemux(),
		state: StateDisconnected,
		valid: true,
		done:  make(chan struct{}),
	}
}

// Connect dials the DAC and waits for its greeting response. The device
// sends an unsolicited standard response immediately after accepting a
// connection; Connect resolves once that greeting has been observed. An
// already-connected session is closed first.
func (s *Session) Connect(ctx context.Context, addr string) error {
	s.mu.Lock()
	if s.conn != nil {
		s.closeLocked()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	s.conn = conn
	s.addr = addr
	s.done = make(chan struct{})
	s.demux = protocol.NewDemux()
	done := s.done
	demux := s.demux

	// Arm the greeting expectation before any bytes can arrive.
	respCh := make(chan *protocol.Response, 1)
	demux.Expect(protocol.ResponseSize, s.responseHandler(respCh))
	s.mu.Unlock()

	logging.LogConnection(addr, "connected")
	go s.readLoop(conn, demux)

	resp, err := s.await(ctx, respCh, done)
	if err != nil {
		_ = s.Close()
		return fmt.Errorf("greeting: %w", err)
	}

	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()

	logging.LogStatus(addr, resp.Status.PlaybackState.String(),
		resp.Status.BufferFullness, resp.Status.PointRate)
	return nil
}

// readLoop feeds transport bytes into the demultiplexer until the
// connection dies. It runs for the whole life of one connection, so a
// command awaiting its response never starves the inbound path.
func (s *Session) readLoop(conn net.Conn, demux *protocol.Demux) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			logging.LogRawBytes("inbound bytes", buf[:n])
			demux.Feed(buf[:n])
		}
		if err != nil {
			logging.Debug("read loop ended",
				zap.String("remote_addr", conn.RemoteAddr().String()),
				zap.Error(err),
			)
			return
		}
	}
}

// Ping sends a ping and waits for the response.
func (s *Session) Ping(ctx context.Context) (*protocol.Response, error) {
	return s.command(ctx, protocol.BuildPing())
}

// Prepare readies the device for point data. On acknowledgement the
// session moves to StatePrepared.
func (s *Session) Prepare(ctx context.Context) error {
	resp, err := s.command(ctx, protocol.BuildPrepare())
	if err != nil {
		return err
	}
	if resp.ACK() {
		s.mu.Lock()
		s.state = StatePrepared
		s.mu.Unlock()
	}
	return nil
}

// Begin starts playback at the given point rate. A zero rate is a usage
// error and sends nothing.
func (s *Session) Begin(ctx context.Context, rate uint32) error {
	if rate == 0 {
		return &UsageError{Op: "begin", Reason: "point rate not configured"}
	}
	resp, err := s.command(ctx, protocol.BuildBegin(0, rate))
	if err != nil {
		return err
	}
	if resp.ACK() {
		s.mu.Lock()
		s.state = StatePlaying
		s.mu.Unlock()
	}
	return nil
}

// Update changes the point rate while playing. Same wire shape as Begin,
// and like Begin it marks playback established on acknowledgement: either
// command leaves the device playing.
func (s *Session) Update(ctx context.Context, rate uint32) error {
	if rate == 0 {
		return &UsageError{Op: "update", Reason: "point rate not configured"}
	}
	resp, err := s.command(ctx, protocol.BuildUpdate(0, rate))
	if err != nil {
		return err
	}
	if resp.ACK() {
		s.mu.Lock()
		s.state = StatePlaying
		s.mu.Unlock()
	}
	return nil
}

// Stop halts playback. On acknowledgement the session drops back to
// StateIdle; a fresh prepare/begin handshake is needed to play again.
func (s *Session) Stop(ctx context.Context) error {
	resp, err := s.command(ctx, protocol.BuildStop())
	if err != nil {
		return err
	}
	if resp.ACK() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}
	return nil
}

// EmergencyStop forces the light engine into its emergency stop state.
func (s *Session) EmergencyStop(ctx context.Context) error {
	resp, err := s.command(ctx, protocol.BuildEmergencyStop())
	if err != nil {
		return err
	}
	if resp.ACK() {
		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
	}
	return nil
}

// WriteSamples encodes and sends a batch of points, then waits for the
// response and folds its status into the session. The caller keeps batches
// under the device's spare buffer capacity; the count field caps them at
// 65535. An invalid response code marks the session unreliable (Valid
// reports false) but is not an error return: reconnecting is the
// orchestrator's decision, no retry happens here.
func (s *Session) WriteSamples(ctx context.Context, points []protocol.Point) error {
	frame, err := protocol.BuildData(points)
	if err != nil {
		return &UsageError{Op: "write samples", Reason: err.Error()}
	}
	_, err = s.command(ctx, frame)
	return err
}

// command sends one command frame and waits for its standard response.
func (s *Session) command(ctx context.Context, frame []byte) (*protocol.Response, error) {
	s.cmdMu.Lock()

	s.mu.Lock()
	conn := s.conn
	demux := s.demux
	done := s.done
	addr := s.addr
	s.mu.Unlock()

	if conn == nil {
		s.cmdMu.Unlock()
		return nil, &UsageError{Op: logging.CommandName(frame[0]), Reason: "not connected"}
	}

	respCh := make(chan *protocol.Response, 1)
	demux.Expect(protocol.ResponseSize, s.responseHandler(respCh))

	_, err := conn.Write(frame)
	s.cmdMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", logging.CommandName(frame[0]), err)
	}
	logging.LogCommand(addr, frame[0], len(frame)-1)

	return s.await(ctx, respCh, done)
}

// await blocks until the response arrives, the session is closed, or the
// caller's context expires. The core imposes no timeout of its own; a
// stalled device stalls the command until Close or context cancellation.
func (s *Session) await(ctx context.Context, respCh <-chan *protocol.Response, done <-chan struct{}) (*protocol.Response, error) {
	select {
	case resp := <-respCh:
		return resp, nil
	case <-done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// responseHandler builds the demultiplexer continuation for one expected
// response: decode, fold the status into session state, hand the response
// to the waiting command.
func (s *Session) responseHandler(respCh chan<- *protocol.Response) func([]byte) {
	return func(b []byte) {
		resp, err := protocol.ParseResponse(b)
		if err != nil {
			// Unreachable when driven through the demultiplexer, which
			// only dispatches full frames.
			logging.Error("malformed response frame", zap.Error(err))
			return
		}
		s.applyResponse(resp)
		respCh <- resp
	}
}

// applyResponse updates fullness, playback state, and validity from a
// decoded response. An underrun drops the Playing state so the scheduler
// re-issues begin before trusting further samples to play.
func (s *Session) applyResponse(resp *protocol.Response) {
	s.mu.Lock()
	s.status = resp.Status
	s.valid = resp.ACK()
	addr := s.addr

	var invalid, underrun bool
	if !resp.ACK() {
		invalid = true
	}
	if resp.Status.Underrun() && s.state == StatePlaying {
		underrun = true
		s.state = StatePrepared
	}
	s.mu.Unlock()

	if invalid {
		logging.Warn("device rejected command",
			zap.String("remote_addr", addr),
			zap.String("command", logging.CommandName(resp.Command)),
			zap.String("response_code", fmt.Sprintf("0x%02x", resp.Code)),
		)
	}
	if underrun {
		logging.Warn("buffer underrun reported, playback must be re-established",
			zap.String("remote_addr", addr),
			zap.Uint16("buffer_fullness", resp.Status.BufferFullness),
		)
	}
	logging.LogStatus(addr, resp.Status.PlaybackState.String(),
		resp.Status.BufferFullness, resp.Status.PointRate)
}

// Close resets all session state to its initial values and tears down the
// transport. Queued inbound bytes and pending response expectations are
// dropped; their handlers are never invoked and blocked commands return
// ErrSessionClosed. The last dial address is preserved for Reconnect.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn = nil
	s.demux.Reset()
	close(s.done)

	s.state = StateDisconnected
	s.status = protocol.DACStatus{}
	s.valid = true

	logging.LogConnection(s.addr, "closed")
	return err
}

// Reconnect closes the session and connects again to the last address.
// It is a usage error before any successful Connect.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	s.mu.Unlock()

	if addr == "" {
		return &UsageError{Op: "reconnect", Reason: "no prior connection"}
	}
	if err := s.Close(); err != nil {
		logging.Debug("close before reconnect", zap.Error(err))
	}
	return s.Connect(ctx, addr)
}

// State returns the session lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the last device status observed in a response.
func (s *Session) Status() protocol.DACStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// BufferFullness returns the last-reported count of points queued in the
// device's ring buffer. The value is always one round trip stale.
func (s *Session) BufferFullness() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.BufferFullness
}

// PlaybackState returns the device-reported playback state from the last
// response.
func (s *Session) PlaybackState() protocol.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.PlaybackState
}

// PlaybackEstablished reports whether a begin (or update) has been
// acknowledged and no underrun has invalidated it since.
func (s *Session) PlaybackEstablished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePlaying
}

// Valid reports whether the last response carried the acknowledgement
// code. A false value means the connection is unreliable and should be
// reconnected before further writes are trusted.
func (s *Session) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Addr returns the last dial target, or "" before the first Connect.
func (s *Session) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// WaitClosed blocks until the session is closed or the timeout elapses.
// Intended for tests and orchestration teardown.
func (s *Session) WaitClosed(timeout time.Duration) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
