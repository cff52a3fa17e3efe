// Package simulator is a synthetic frame source for running the client
// without a sensor: a drifting color gradient over a radial depth field.
package simulator

import (
	"context"
	"math"
	"time"

	"posetrack-client-go/internal/types"
)

// Source implements telemetry.Source at a fixed synthetic frame rate.
type Source struct {
	width  int
	height int
	ticker *time.Ticker
	phase  int
	depth  []uint16
	intr   types.Intrinsics
}

// New builds a source producing width x height frames at rate frames/sec.
func New(width, height int, rate float64) *Source {
	if rate <= 0 {
		rate = 30
	}
	s := &Source{
		width:  width,
		height: height,
		ticker: time.NewTicker(time.Duration(float64(time.Second) / rate)),
		intr: types.Intrinsics{
			Fx:  float64(width) * 0.94,
			Fy:  float64(width) * 0.94,
			Ppx: float64(width) / 2,
			Ppy: float64(height) / 2,
		},
	}

	// The depth field is static: a bump rising toward the image center,
	// in millimeters like a real depth sensor.
	s.depth = make([]uint16, width*height)
	cx, cy := float64(width)/2, float64(height)/2
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			d := math.Sqrt(dx*dx + dy*dy)
			s.depth[y*width+x] = uint16(800 + d*2)
		}
	}
	return s
}

// Next blocks until the next synthetic frame is due.
func (s *Source) Next(ctx context.Context) (*types.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	color := make([]byte, s.width*s.height*3)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			i := (y*s.width + x) * 3
			color[i] = byte(x + s.phase)
			color[i+1] = byte(y)
			color[i+2] = byte(x + y + s.phase)
		}
	}
	s.phase++

	return &types.Frame{
		Width:      s.width,
		Height:     s.height,
		Color:      color,
		Depth:      s.depth,
		Intrinsics: s.intr,
		CapturedAt: float64(time.Now().UnixNano()) / 1e9,
	}, nil
}

// Close stops the frame pacing ticker.
func (s *Source) Close() {
	s.ticker.Stop()
}
