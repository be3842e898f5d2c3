package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildSimpleCommands(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"ping", BuildPing(), []byte{'?'}},
		{"prepare", BuildPrepare(), []byte{'p'}},
		{"stop", BuildStop(), []byte{'s'}},
		{"emergency stop", BuildEmergencyStop(), []byte{0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("encoded = % x, want % x", tt.got, tt.want)
			}
		})
	}
}

func TestBuildBegin(t *testing.T) {
	tests := []struct {
		name string
		lwm  uint16
		rate uint32
		want []byte
	}{
		{
			name: "typical rate",
			lwm:  0,
			rate: 30000,
			want: []byte{'b', 0x00, 0x00, 0x30, 0x75, 0x00, 0x00},
		},
		{
			name: "max rate",
			lwm:  0,
			rate: 0xFFFFFFFF,
			want: []byte{'b', 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF},
		},
		{
			name: "nonzero low-water mark",
			lwm:  0x0102,
			rate: 1,
			want: []byte{'b', 0x02, 0x01, 0x01, 0x00, 0x00, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildBegin(tt.lwm, tt.rate)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("BuildBegin(%d, %d) = % x, want % x", tt.lwm, tt.rate, got, tt.want)
			}
		})
	}
}

func TestBuildUpdateMatchesBeginShape(t *testing.T) {
	b := BuildBegin(0, 24000)
	u := BuildUpdate(0, 24000)

	if u[0] != CmdUpdate {
		t.Errorf("opcode = 0x%02x, want 0x%02x", u[0], CmdUpdate)
	}
	if !bytes.Equal(u[1:], b[1:]) {
		t.Errorf("update payload = % x, want begin payload % x", u[1:], b[1:])
	}
}

func TestBuildData(t *testing.T) {
	points := []Point{
		{Control: 1, X: -100, Y: 200, R: 0xFFFF, G: 0x8000, B: 0x0001, Intensity: 0x1234},
		{X: 32767, Y: -32768},
		{},
	}

	data, err := BuildData(points)
	if err != nil {
		t.Fatalf("BuildData: %v", err)
	}

	wantLen := DataHeaderSize + len(points)*PointSize
	if len(data) != wantLen {
		t.Fatalf("length = %d, want %d", len(data), wantLen)
	}
	if data[0] != CmdData {
		t.Errorf("opcode = 0x%02x, want 0x%02x", data[0], CmdData)
	}
	if n := binary.LittleEndian.Uint16(data[1:3]); n != uint16(len(points)) {
		t.Errorf("count = %d, want %d", n, len(points))
	}

	// First point field order: control, x, y, r, g, b, i, u1, u2
	body := data[DataHeaderSize:]
	if c := binary.LittleEndian.Uint16(body[0:2]); c != 1 {
		t.Errorf("control = %d, want 1", c)
	}
	if x := int16(binary.LittleEndian.Uint16(body[2:4])); x != -100 {
		t.Errorf("x = %d, want -100", x)
	}
	if y := int16(binary.LittleEndian.Uint16(body[4:6])); y != 200 {
		t.Errorf("y = %d, want 200", y)
	}
	if r := binary.LittleEndian.Uint16(body[6:8]); r != 0xFFFF {
		t.Errorf("r = 0x%04x, want 0xffff", r)
	}
}

func TestBuildDataEmptyBatch(t *testing.T) {
	data, err := BuildData(nil)
	if err != nil {
		t.Fatalf("BuildData(nil): %v", err)
	}
	want := []byte{'d', 0x00, 0x00}
	if !bytes.Equal(data, want) {
		t.Errorf("encoded = % x, want % x", data, want)
	}
}

func TestPointRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		point Point
	}{
		{"zero point", Point{}},
		{
			"full range signed extremes",
			Point{Control: 0xFFFF, X: -32768, Y: 32767, R: 0xFFFF, G: 0, B: 0xFFFF, Intensity: 0xFFFF, Reserved1: 0xFFFF, Reserved2: 0xFFFF},
		},
		{
			"negative coordinates",
			Point{X: -1, Y: -32768, R: 1, G: 2, B: 3},
		},
		{
			"arbitrary values",
			Point{Control: 0x0102, X: 12345, Y: -12345, R: 0x8000, G: 0x7FFF, B: 0x0100, Intensity: 0xABCD, Reserved1: 0x00FF, Reserved2: 0xFF00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf [PointSize]byte
			EncodePoint(buf[:], tt.point)
			got, err := DecodePoint(buf[:])
			if err != nil {
				t.Fatalf("DecodePoint: %v", err)
			}
			if got != tt.point {
				t.Errorf("round trip = %+v, want %+v", got, tt.point)
			}
		})
	}
}

func TestDecodePointShortInput(t *testing.T) {
	if _, err := DecodePoint(make([]byte, PointSize-1)); err == nil {
		t.Error("expected error for short input, got nil")
	}
}

func TestParseBeginPayload(t *testing.T) {
	frame := BuildBegin(0, 30000)
	lwm, rate, err := ParseBeginPayload(frame[1:])
	if err != nil {
		t.Fatalf("ParseBeginPayload: %v", err)
	}
	if lwm != 0 {
		t.Errorf("low-water mark = %d, want 0", lwm)
	}
	if rate != 30000 {
		t.Errorf("rate = %d, want 30000", rate)
	}

	if _, _, err := ParseBeginPayload([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short payload, got nil")
	}
}
