// Package codec turns point-cloud frames into a compact, lossy byte layout
// and back.
//
// A frame is split into eight planes: R, G and B are kept as 8-bit samples;
// X, Y, Z, U and V are quantized to int16 with a per-plane affine transform.
// Every plane is compressed on its own. The layout, all little-endian:
//
//	u32 total_length            // includes this field
//	u32 height
//	u32 width
//	u32 n_points
//	3x R,G,B:     u32 compressed_len; u8[len] plane
//	5x X,Y,Z,U,V: f32 scale; f32 bias; u32 compressed_len; u8[len] plane
//
// The top two bits of compressed_len carry the temporal prediction order
// of the plane (0 when the plane is absolute).
//
// An Encoder and its matching Decoder each own the plane history used for
// temporal prediction. Use one pair per stream and never share them across
// goroutines.
package codec

import (
	"fmt"

	"github.com/junsooki/telecom3d/internal/frame"
)

// Layout constants.
const (
	headerSize        = 16
	colorRecordHeader = 4
	floatRecordHeader = 12

	// MinFrameSize is the size of an encoded frame with empty payloads.
	MinFrameSize = headerSize + numColorPlanes*colorRecordHeader + numFloatPlanes*floatRecordHeader

	orderShift = 30
	lengthMask = 1<<orderShift - 1

	// DefaultMaxPoints bounds n_points accepted by a decoder.
	DefaultMaxPoints = 1 << 24
)

// Encoder encodes a frame into bytes.
type Encoder interface {
	Encode(f *frame.RawFrame) ([]byte, error)
}

// Decoder decodes bytes into a frame.
type Decoder interface {
	Decode(buf []byte) (*frame.RawFrame, error)
}

type options struct {
	compressor Compressor
	deltaDepth int
	fixed      bool
	geometry   Range
	texture    Range
	maxPoints  uint32
}

// Option configures an encoder or decoder.
type Option func(*options)

// WithCompressor selects the plane compressor. Both ends must match.
func WithCompressor(c Compressor) Option {
	return func(o *options) { o.compressor = c }
}

// WithDeltaDepth enables temporal prediction from up to depth previous
// frames (0, 1 or 2). Only the encoder reads it; the decoder follows the
// order recorded with each plane.
func WithDeltaDepth(depth int) Option {
	return func(o *options) { o.deltaDepth = depth }
}

// WithFixedRange quantizes against calibrated ranges instead of each
// frame's observed min/max. Values outside the ranges are clamped.
func WithFixedRange(geometry, texture Range) Option {
	return func(o *options) {
		o.fixed = true
		o.geometry = geometry
		o.texture = texture
	}
}

// WithMaxPoints bounds the frame size a decoder will allocate for.
func WithMaxPoints(n uint32) Option {
	return func(o *options) { o.maxPoints = n }
}

func buildOptions(opts []Option) (options, error) {
	o := options{maxPoints: DefaultMaxPoints}
	for _, opt := range opts {
		opt(&o)
	}
	if o.compressor == nil {
		o.compressor = NewZlibCompressor(0)
	}
	if o.deltaDepth < 0 || o.deltaDepth > MaxDeltaDepth {
		return o, fmt.Errorf("%w: delta depth %d not in [0,%d]", ErrInvalidOption, o.deltaDepth, MaxDeltaDepth)
	}
	if o.fixed && (!o.geometry.valid() || !o.texture.valid()) {
		return o, fmt.Errorf("%w: fixed range geometry=%v texture=%v", ErrInvalidOption, o.geometry, o.texture)
	}
	if o.maxPoints == 0 {
		return o, fmt.Errorf("%w: max points must be positive", ErrInvalidOption)
	}
	return o, nil
}

// Stats describes the most recently encoded frame.
type Stats struct {
	Points       int
	RawBytes     int
	EncodedBytes int
	PlaneBytes   [NumPlanes]int
	Orders       [NumPlanes]int
	Params       [numFloatPlanes]NormalizationParams
}

// Ratio is RawBytes/EncodedBytes.
func (s Stats) Ratio() float64 {
	if s.EncodedBytes == 0 {
		return 0
	}
	return float64(s.RawBytes) / float64(s.EncodedBytes)
}

// ParamsFor returns the normalization of float plane p.
func (s Stats) ParamsFor(p Plane) NormalizationParams {
	if p < PlaneX || p >= NumPlanes {
		return NormalizationParams{}
	}
	return s.Params[p-PlaneX]
}

func packLength(order, n int) (uint32, error) {
	if n > lengthMask {
		return 0, fmt.Errorf("%w: compressed plane of %d bytes exceeds %d", ErrInvalidFrame, n, lengthMask)
	}
	return uint32(order)<<orderShift | uint32(n), nil
}

func unpackLength(v uint32) (order, n int) {
	return int(v >> orderShift), int(v & lengthMask)
}
