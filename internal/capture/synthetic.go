package capture

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/junsooki/telecom3d/internal/frame"
)

// SyntheticSource generates a raster-aligned point cloud of a head-sized
// bump in front of a back wall, slowly turning, with a color gradient.
type SyntheticSource struct {
	frameID atomic.Uint64

	// Configuration
	Width, Height uint32
	FrameRate     float64 // drives the animation clock, frames per second
	WallDepth     float64 // metres
	HoleRate      float64 // fraction of points reported as missing depth

	rng *rand.Rand
}

// NewSyntheticSource creates a generator. The seed makes output
// reproducible.
func NewSyntheticSource(width, height uint32, seed int64) *SyntheticSource {
	return &SyntheticSource{
		Width:     width,
		Height:    height,
		FrameRate: 30,
		WallDepth: 2.0,
		HoleRate:  0.01,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Next generates the next frame.
func (g *SyntheticSource) Next(ctx context.Context) (*frame.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := g.frameID.Add(1)
	elapsed := float64(id-1) / g.FrameRate

	f := frame.New(g.Height, g.Width)
	aspect := float64(g.Width) / float64(g.Height)
	yaw := 0.4 * math.Sin(elapsed*0.5)
	headX := 0.15 * math.Sin(elapsed*0.3)

	for row := uint32(0); row < g.Height; row++ {
		for col := uint32(0); col < g.Width; col++ {
			i := int(row*g.Width + col)
			u := (float64(col) + 0.5) / float64(g.Width)
			v := (float64(row) + 0.5) / float64(g.Height)
			f.TexCoords[i] = frame.TexCoord{U: float32(u), V: float32(v)}

			if g.rng.Float64() < g.HoleRate {
				// Missing depth, as reported by RGB-D sensors.
				continue
			}

			// Normalized image-plane coordinates, y up.
			nx := (u - 0.5) * aspect
			ny := 0.5 - v

			depth := g.WallDepth
			dx, dy := nx-headX, ny
			r2 := (dx*dx)/0.04 + (dy*dy)/0.07
			head := r2 < 1
			if head {
				bulge := math.Sqrt(1-r2) * 0.25
				depth = 1.2 - bulge - 0.05*math.Sin(yaw)*dx*10
			}
			depth += g.rng.NormFloat64() * 0.002

			f.Vertices[i] = frame.Vertex{
				X: float32(nx * depth),
				Y: float32(ny * depth),
				Z: float32(depth),
			}

			var r, gr, b float64
			if head {
				shade := 0.6 + 0.4*(1-r2)
				r, gr, b = 224*shade, 172*shade, 140*shade
			} else {
				r = 60 + 80*u
				gr = 80 + 60*v
				b = 120 + 60*math.Sin(elapsed+u*math.Pi)
			}
			f.RGB[3*i] = clampByte(r)
			f.RGB[3*i+1] = clampByte(gr)
			f.RGB[3*i+2] = clampByte(b)
		}
	}
	f.Timestamp = time.Now()
	return f, nil
}

func clampByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v)
	}
}
