// Package frame defines the point-cloud frame exchanged between pipeline stages.
package frame

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidFrame reports a frame whose dimensions and buffers disagree.
var ErrInvalidFrame = errors.New("invalid frame")

// Vertex is one point of the cloud in world space.
type Vertex struct {
	X, Y, Z float32
}

// TexCoord maps a point onto the color image.
type TexCoord struct {
	U, V float32
}

// RawFrame is one captured RGB-D frame. The point cloud is raster-aligned
// with the color image, so NPoints == Height*Width.
//
// A frame must not be mutated after it has been pushed onto a channel.
type RawFrame struct {
	Height    uint32
	Width     uint32
	NPoints   uint32
	RGB       []byte // interleaved R,G,B, len 3*NPoints
	Vertices  []Vertex
	TexCoords []TexCoord

	// Timestamp is local to the process that produced the value; it is not
	// carried on the wire.
	Timestamp time.Time
}

// New allocates a zeroed frame of the given size.
func New(height, width uint32) *RawFrame {
	n := height * width
	return &RawFrame{
		Height:    height,
		Width:     width,
		NPoints:   n,
		RGB:       make([]byte, 3*int(n)),
		Vertices:  make([]Vertex, n),
		TexCoords: make([]TexCoord, n),
		Timestamp: time.Now(),
	}
}

// Validate checks the size invariants of f.
func (f *RawFrame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Height == 0 || f.Width == 0 {
		return fmt.Errorf("%w: zero-sized frame %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	if uint64(f.NPoints) != uint64(f.Height)*uint64(f.Width) {
		return fmt.Errorf("%w: n_points %d != %d*%d", ErrInvalidFrame, f.NPoints, f.Height, f.Width)
	}
	n := int(f.NPoints)
	if len(f.RGB) != 3*n {
		return fmt.Errorf("%w: rgb length %d, want %d", ErrInvalidFrame, len(f.RGB), 3*n)
	}
	if len(f.Vertices) != n {
		return fmt.Errorf("%w: %d vertices, want %d", ErrInvalidFrame, len(f.Vertices), n)
	}
	if len(f.TexCoords) != n {
		return fmt.Errorf("%w: %d texture coordinates, want %d", ErrInvalidFrame, len(f.TexCoords), n)
	}
	return nil
}

// RawSize is the size of f in the uncompressed dump layout: a 16-byte
// header, 3 color bytes, 3 vertex floats and 2 texture floats per point.
func (f *RawFrame) RawSize() int {
	return 16 + int(f.NPoints)*(3+12+8)
}

// EyesPosition is the latest detected eye centers in normalized 0..1
// screen-space coordinates.
type EyesPosition struct {
	LeftX, LeftY   float64
	RightX, RightY float64
}

// Center returns the midpoint between both eyes.
func (e EyesPosition) Center() (x, y float64) {
	return (e.LeftX + e.RightX) / 2, (e.LeftY + e.RightY) / 2
}

// IsZero reports whether no position has been detected yet.
func (e EyesPosition) IsZero() bool {
	return e == EyesPosition{}
}
