package protocol

import (
	"encoding/binary"
	"fmt"
)

// Standard response layout. Every command is answered with a fixed 22-byte
// frame: response code, echoed command opcode, then a 20-byte status block.
// Offsets are protocol constants, not configurable.
const (
	ResponseSize = 22

	// Offsets within the response frame
	offResponseCode     = 0
	offCommand          = 1
	offProtocol         = 2
	offLightEngineState = 3
	offPlaybackState    = 4
	offSource           = 5
	offLightEngineFlags = 6
	offPlaybackFlags    = 8
	offSourceFlags      = 10
	offBufferFullness   = 12
	offPointRate        = 14
	offPointCount       = 18
)

// Response codes
const (
	RespAck         = 'a' // command acknowledged
	RespNak         = 'F' // buffer full
	RespNakInvalid  = 'I' // invalid command
	RespNakStopCond = '!' // emergency stop condition
)

// PlaybackState is the playback field of the status block.
type PlaybackState byte

const (
	PlaybackIdle     PlaybackState = 0
	PlaybackPrepared PlaybackState = 1
	PlaybackPlaying  PlaybackState = 2
)

func (s PlaybackState) String() string {
	switch s {
	case PlaybackIdle:
		return "idle"
	case PlaybackPrepared:
		return "prepared"
	case PlaybackPlaying:
		return "playing"
	default:
		return fmt.Sprintf("unknown(%d)", byte(s))
	}
}

// PlaybackFlagUnderrun is set in the playback flags when the point buffer
// emptied faster than it was refilled since the last status.
const PlaybackFlagUnderrun = 0x2

// DACStatus is the decoded 20-byte status block present in every standard
// response and in the discovery beacon.
type DACStatus struct {
	Protocol         byte
	LightEngineState byte
	PlaybackState    PlaybackState
	Source           byte
	LightEngineFlags uint16
	PlaybackFlags    uint16
	SourceFlags      uint16
	BufferFullness   uint16
	PointRate        uint32
	PointCount       uint32
}

// Underrun reports whether the underrun flag is set.
func (s DACStatus) Underrun() bool {
	return s.PlaybackFlags&PlaybackFlagUnderrun != 0
}

// Response is the decoded form of the standard 22-byte response frame.
type Response struct {
	Code    byte // RespAck when the command was accepted
	Command byte // echoed command opcode
	Status  DACStatus
}

// ACK reports whether the response carries the acknowledgement code.
func (r *Response) ACK() bool {
	return r.Code == RespAck
}

// ParseResponse decodes a standard response frame. It is a framing error to
// supply fewer than ResponseSize bytes; callers driven by the demultiplexer
// never hit this because they only decode once enough bytes accumulated.
func ParseResponse(data []byte) (*Response, error) {
	if len(data) < ResponseSize {
		return nil, &ProtocolError{Frame: "response", Got: len(data), Need: ResponseSize}
	}

	return &Response{
		Code:    data[offResponseCode],
		Command: data[offCommand],
		Status:  parseStatusBlock(data[offProtocol:ResponseSize]),
	}, nil
}

// parseStatusBlock decodes the 20-byte status block. src must hold at least
// StatusBlockSize bytes.
func parseStatusBlock(src []byte) DACStatus {
	return DACStatus{
		Protocol:         src[0],
		LightEngineState: src[1],
		PlaybackState:    PlaybackState(src[2]),
		Source:           src[3],
		LightEngineFlags: binary.LittleEndian.Uint16(src[4:6]),
		PlaybackFlags:    binary.LittleEndian.Uint16(src[6:8]),
		SourceFlags:      binary.LittleEndian.Uint16(src[8:10]),
		BufferFullness:   binary.LittleEndian.Uint16(src[10:12]),
		PointRate:        binary.LittleEndian.Uint32(src[12:16]),
		PointCount:       binary.LittleEndian.Uint32(src[16:20]),
	}
}

// StatusBlockSize is the encoded size of the status block.
const StatusBlockSize = 20

// ParseStatusBlock decodes a standalone status block, as carried in the
// discovery beacon.
func ParseStatusBlock(src []byte) (DACStatus, error) {
	if len(src) < StatusBlockSize {
		return DACStatus{}, &ProtocolError{Frame: "status block", Got: len(src), Need: StatusBlockSize}
	}
	return parseStatusBlock(src), nil
}

// EncodeResponse builds the 22-byte wire form of a response. Used by the
// emulator and by tests.
func EncodeResponse(r *Response) []byte {
	buf := make([]byte, ResponseSize)
	buf[offResponseCode] = r.Code
	buf[offCommand] = r.Command
	EncodeStatusBlock(buf[offProtocol:], r.Status)
	return buf
}

// EncodeStatusBlock writes the 20-byte wire form of a status block into dst.
func EncodeStatusBlock(dst []byte, s DACStatus) {
	dst[0] = s.Protocol
	dst[1] = s.LightEngineState
	dst[2] = byte(s.PlaybackState)
	dst[3] = s.Source
	binary.LittleEndian.PutUint16(dst[4:6], s.LightEngineFlags)
	binary.LittleEndian.PutUint16(dst[6:8], s.PlaybackFlags)
	binary.LittleEndian.PutUint16(dst[8:10], s.SourceFlags)
	binary.LittleEndian.PutUint16(dst[10:12], s.BufferFullness)
	binary.LittleEndian.PutUint32(dst[12:16], s.PointRate)
	binary.LittleEndian.PutUint32(dst[16:20], s.PointCount)
}
