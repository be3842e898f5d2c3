package stream

import (
	"math"
	"sync"

	"github.com/lumenlaser/lumen/internal/protocol"
)

// Pattern generator defaults
const (
	defaultFramePoints = 500
	defaultRadius      = 20000 // of the signed 16-bit deflection range
	fullColor          = 0xFFFF
)

// CirclePattern is a demo point source: a slowly rotating full-color
// circle. It exists so the CLI and tests can stream without a geometry
// engine attached.
type CirclePattern struct {
	mu          sync.Mutex
	phase       float64
	framePoints int
	radius      float64
}

// NewCirclePattern creates a circle generator emitting framePoints points
// per pull. framePoints <= 0 selects the default frame size.
func NewCirclePattern(framePoints int) *CirclePattern {
	if framePoints <= 0 {
		framePoints = defaultFramePoints
	}
	return &CirclePattern{
		framePoints: framePoints,
		radius:      defaultRadius,
	}
}

// Next returns the next frame of points. Satisfies Source.
func (c *CirclePattern) Next() []protocol.Point {
	c.mu.Lock()
	defer c.mu.Unlock()

	points := make([]protocol.Point, c.framePoints)
	step := 2 * math.Pi / float64(c.framePoints)
	for i := range points {
		a := c.phase + float64(i)*step
		points[i] = protocol.Point{
			X:         int16(c.radius * math.Cos(a)),
			Y:         int16(c.radius * math.Sin(a)),
			R:         fullColor,
			G:         fullColor,
			B:         fullColor,
			Intensity: fullColor,
		}
	}

	// Rotate a little between frames so motion is visible.
	c.phase += step * 3
	if c.phase > 2*math.Pi {
		c.phase -= 2 * math.Pi
	}
	return points
}
