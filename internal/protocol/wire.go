package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command opcodes. Each command is a single opcode byte followed by a
// fixed-layout payload; the DAC answers every command with one standard
// 22-byte response on the same connection, in request order.
const (
	CmdPing          = '?'
	CmdPrepare       = 'p'
	CmdBegin         = 'b'
	CmdUpdate        = 'u'
	CmdData          = 'd'
	CmdStop          = 's'
	CmdEmergencyStop = 0xFF
)

// Wire size constants
const (
	// PointSize is the encoded size of one point: nine 16-bit fields
	PointSize = 18

	// BeginPayloadSize is the payload of begin/update: u16 low-water mark + u32 rate
	BeginPayloadSize = 6

	// DataHeaderSize is opcode + u16 point count
	DataHeaderSize = 3

	// MaxBatchPoints is the largest point count expressible in the u16
	// count field of a data command
	MaxBatchPoints = 0xFFFF
)

// BufferCapacity is the size of the DAC's internal point ring buffer.
// The device reports fullness relative to this capacity; a writer must
// never queue more than (BufferCapacity - fullness) points.
const BufferCapacity = 1799

// Point is one XY-deflection and color sample to be rendered by the DAC.
// Points are immutable values; the zero value is a blanked point at the
// origin.
type Point struct {
	Control   uint16 // protocol control flags, normally 0
	X         int16  // signed horizontal deflection, full range
	Y         int16  // signed vertical deflection, full range
	R         uint16 // red channel
	G         uint16 // green channel
	B         uint16 // blue channel
	Intensity uint16
	Reserved1 uint16
	Reserved2 uint16
}

// BuildPing constructs a ping command
func BuildPing() []byte {
	return []byte{CmdPing}
}

// BuildPrepare constructs a prepare command
func BuildPrepare() []byte {
	return []byte{CmdPrepare}
}

// BuildStop constructs a stop command
func BuildStop() []byte {
	return []byte{CmdStop}
}

// BuildEmergencyStop constructs an emergency stop command
func BuildEmergencyStop() []byte {
	return []byte{CmdEmergencyStop}
}

// BuildBegin constructs a begin command. The low-water mark is reserved by
// the protocol and always sent as 0.
func BuildBegin(lowWaterMark uint16, rate uint32) []byte {
	buf := make([]byte, 1+BeginPayloadSize)
	buf[0] = CmdBegin
	binary.LittleEndian.PutUint16(buf[1:3], lowWaterMark)
	binary.LittleEndian.PutUint32(buf[3:7], rate)
	return buf
}

// BuildUpdate constructs an update command. Same wire shape as begin, used
// to change the point rate while already playing.
func BuildUpdate(lowWaterMark uint16, rate uint32) []byte {
	buf := BuildBegin(lowWaterMark, rate)
	buf[0] = CmdUpdate
	return buf
}

// BuildData constructs a write-samples command for a batch of points.
// Returns an error if the batch cannot be expressed in the u16 count field.
func BuildData(points []Point) ([]byte, error) {
	if len(points) > MaxBatchPoints {
		return nil, fmt.Errorf("batch too large: %d points (max %d)", len(points), MaxBatchPoints)
	}

	buf := make([]byte, DataHeaderSize+len(points)*PointSize)
	buf[0] = CmdData
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(points)))

	off := DataHeaderSize
	for _, p := range points {
		EncodePoint(buf[off:off+PointSize], p)
		off += PointSize
	}
	return buf, nil
}

// EncodePoint writes the 18-byte wire form of a point into dst.
// dst must be at least PointSize bytes; field order is fixed by the
// protocol: control, x, y, r, g, b, intensity, reserved1, reserved2.
func EncodePoint(dst []byte, p Point) {
	binary.LittleEndian.PutUint16(dst[0:2], p.Control)
	binary.LittleEndian.PutUint16(dst[2:4], uint16(p.X))
	binary.LittleEndian.PutUint16(dst[4:6], uint16(p.Y))
	binary.LittleEndian.PutUint16(dst[6:8], p.R)
	binary.LittleEndian.PutUint16(dst[8:10], p.G)
	binary.LittleEndian.PutUint16(dst[10:12], p.B)
	binary.LittleEndian.PutUint16(dst[12:14], p.Intensity)
	binary.LittleEndian.PutUint16(dst[14:16], p.Reserved1)
	binary.LittleEndian.PutUint16(dst[16:18], p.Reserved2)
}

// DecodePoint reads one point from its 18-byte wire form.
func DecodePoint(src []byte) (Point, error) {
	if len(src) < PointSize {
		return Point{}, &ProtocolError{Frame: "point", Got: len(src), Need: PointSize}
	}
	return Point{
		Control:   binary.LittleEndian.Uint16(src[0:2]),
		X:         int16(binary.LittleEndian.Uint16(src[2:4])),
		Y:         int16(binary.LittleEndian.Uint16(src[4:6])),
		R:         binary.LittleEndian.Uint16(src[6:8]),
		G:         binary.LittleEndian.Uint16(src[8:10]),
		B:         binary.LittleEndian.Uint16(src[10:12]),
		Intensity: binary.LittleEndian.Uint16(src[12:14]),
		Reserved1: binary.LittleEndian.Uint16(src[14:16]),
		Reserved2: binary.LittleEndian.Uint16(src[16:18]),
	}, nil
}

// ParseBeginPayload decodes the payload of a begin or update command
// (the bytes after the opcode). Used by the emulator.
func ParseBeginPayload(src []byte) (lowWaterMark uint16, rate uint32, err error) {
	if len(src) < BeginPayloadSize {
		return 0, 0, &ProtocolError{Frame: "begin payload", Got: len(src), Need: BeginPayloadSize}
	}
	return binary.LittleEndian.Uint16(src[0:2]), binary.LittleEndian.Uint32(src[2:6]), nil
}
