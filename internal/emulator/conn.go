package emulator

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lumenlaser/lumen/internal/logging"
	"github.com/lumenlaser/lumen/internal/protocol"
	"go.uber.org/zap"
)

// deviceState models the device's playback engine. All connections share
// it, matching the real device, which is a single engine regardless of
// who is connected.
type deviceState struct {
	mu        sync.Mutex
	capacity  uint16
	maxRate   uint32
	playback  protocol.PlaybackState
	flags     uint16 // playback flags
	rate      uint32
	fullness  float64 // fractional points pending drain
	played    uint32  // lifetime points emitted
	lastDrain time.Time
}

// drainLocked advances the simulation clock: points queued during
// playback are consumed at the begun rate. Emptying the buffer while
// playing is an underrun, which sets the flag and drops the engine back
// to idle.
func (s *deviceState) drainLocked(now time.Time) {
	if s.playback != protocol.PlaybackPlaying {
		s.lastDrain = now
		return
	}

	elapsed := now.Sub(s.lastDrain)
	s.lastDrain = now
	if elapsed <= 0 {
		return
	}

	consumed := elapsed.Seconds() * float64(s.rate)
	if consumed >= s.fullness {
		s.played += uint32(s.fullness)
		s.fullness = 0
		s.flags |= protocol.PlaybackFlagUnderrun
		s.playback = protocol.PlaybackIdle
		return
	}
	s.fullness -= consumed
	s.played += uint32(consumed)
}

// snapshotLocked builds the status block for a response or beacon.
func (s *deviceState) snapshotLocked() protocol.DACStatus {
	return protocol.DACStatus{
		PlaybackState:  s.playback,
		PlaybackFlags:  s.flags,
		BufferFullness: uint16(s.fullness),
		PointRate:      s.rate,
		PointCount:     s.played,
	}
}

// snapshot drains then captures the status block.
func (s *deviceState) snapshot() protocol.DACStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked(time.Now())
	return s.snapshotLocked()
}

func (d *DAC) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = conn.Close()
		return
	}
	d.conns[remoteAddr] = conn
	d.mu.Unlock()

	defer func() {
		_ = conn.Close()
		d.mu.Lock()
		delete(d.conns, remoteAddr)
		d.mu.Unlock()
		logging.LogConnection(remoteAddr, "connection_closed")
	}()

	logging.LogConnection(remoteAddr, "connection_accepted")

	// Greeting: an unsolicited ping response announcing initial state.
	if err := d.respond(conn, protocol.RespAck, protocol.CmdPing); err != nil {
		logging.Error("Failed to send greeting",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		return
	}

	reader := bufio.NewReader(conn)
	for {
		opcode, err := reader.ReadByte()
		if err != nil {
			if err != io.EOF {
				logging.Debug("Read error",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
			return
		}

		if err := d.handleCommand(conn, reader, remoteAddr, opcode); err != nil {
			logging.Error("Command handling failed",
				zap.String("remote_addr", remoteAddr),
				zap.String("command", logging.CommandName(opcode)),
				zap.Error(err),
			)
			return
		}
	}
}

// handleCommand reads the command's payload, applies it to the playback
// engine, and writes the standard response. A returned error means the
// connection is unusable and should be dropped.
func (d *DAC) handleCommand(conn net.Conn, reader *bufio.Reader, remoteAddr string, opcode byte) error {
	switch opcode {
	case protocol.CmdPing:
		logging.LogCommand(remoteAddr, opcode, 0)
		return d.respond(conn, protocol.RespAck, opcode)

	case protocol.CmdPrepare:
		logging.LogCommand(remoteAddr, opcode, 0)
		return d.respond(conn, d.prepare(), opcode)

	case protocol.CmdBegin, protocol.CmdUpdate:
		payload := make([]byte, protocol.BeginPayloadSize)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return err
		}
		logging.LogCommand(remoteAddr, opcode, len(payload))
		_, rate, err := protocol.ParseBeginPayload(payload)
		if err != nil {
			return err
		}
		return d.respond(conn, d.begin(rate), opcode)

	case protocol.CmdData:
		header := make([]byte, 2)
		if _, err := io.ReadFull(reader, header); err != nil {
			return err
		}
		count := int(header[0]) | int(header[1])<<8
		payload := make([]byte, count*protocol.PointSize)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return err
		}
		logging.LogCommand(remoteAddr, opcode, 2+len(payload))
		return d.respond(conn, d.writePoints(count), opcode)

	case protocol.CmdStop:
		logging.LogCommand(remoteAddr, opcode, 0)
		return d.respond(conn, d.stop(), opcode)

	case protocol.CmdEmergencyStop:
		logging.LogCommand(remoteAddr, opcode, 0)
		return d.respond(conn, d.emergencyStop(), opcode)

	default:
		logging.Warn("Unknown command",
			zap.String("remote_addr", remoteAddr),
			zap.Uint8("opcode", opcode),
		)
		return d.respond(conn, protocol.RespNakInvalid, opcode)
	}
}

// respond writes the 22-byte response frame echoing cmd, with a fresh
// status snapshot.
func (d *DAC) respond(conn net.Conn, code byte, cmd byte) error {
	frame := protocol.EncodeResponse(&protocol.Response{
		Code:    code,
		Command: cmd,
		Status:  d.state.snapshot(),
	})
	_, err := conn.Write(frame)
	return err
}

func (d *DAC) prepare() byte {
	s := &d.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked(time.Now())

	if s.playback != protocol.PlaybackIdle {
		return protocol.RespNakInvalid
	}
	s.playback = protocol.PlaybackPrepared
	s.flags &^= protocol.PlaybackFlagUnderrun
	s.fullness = 0
	return protocol.RespAck
}

func (d *DAC) begin(rate uint32) byte {
	s := &d.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked(time.Now())

	if rate == 0 || rate > s.maxRate {
		return protocol.RespNakInvalid
	}
	switch s.playback {
	case protocol.PlaybackPrepared:
		s.playback = protocol.PlaybackPlaying
		s.rate = rate
		s.lastDrain = time.Now()
		return protocol.RespAck
	case protocol.PlaybackPlaying:
		// Rate change mid-stream.
		s.rate = rate
		return protocol.RespAck
	default:
		return protocol.RespNakInvalid
	}
}

func (d *DAC) writePoints(count int) byte {
	s := &d.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked(time.Now())

	if s.playback == protocol.PlaybackIdle {
		return protocol.RespNakInvalid
	}
	if s.fullness+float64(count) > float64(s.capacity) {
		return protocol.RespNak
	}
	s.fullness += float64(count)
	return protocol.RespAck
}

func (d *DAC) stop() byte {
	s := &d.state
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drainLocked(time.Now())

	if s.playback == protocol.PlaybackIdle {
		return protocol.RespNakInvalid
	}
	s.playback = protocol.PlaybackIdle
	s.fullness = 0
	return protocol.RespAck
}

func (d *DAC) emergencyStop() byte {
	s := &d.state
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playback = protocol.PlaybackIdle
	s.fullness = 0
	s.rate = 0
	return protocol.RespAck
}
