package codec

import (
	"fmt"
	"math"

	"github.com/junsooki/telecom3d/internal/frame"
)

// FrameEncoder is the Encoder of this package. It keeps per-plane
// history when temporal prediction is enabled.
type FrameEncoder struct {
	opts options

	height, width uint32
	color         [numColorPlanes]history[uint8]
	floats        [numFloatPlanes]history[int16]

	last Stats
}

// NewEncoder creates an encoder. With no options it uses zlib at best
// compression, per-frame ranges and no temporal prediction.
func NewEncoder(opts ...Option) (*FrameEncoder, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &FrameEncoder{opts: o}, nil
}

// DeltaDepth returns the configured prediction depth.
func (e *FrameEncoder) DeltaDepth() int { return e.opts.deltaDepth }

// Compression returns the compressor name.
func (e *FrameEncoder) Compression() string { return e.opts.compressor.Name() }

// LastStats describes the last successful Encode.
func (e *FrameEncoder) LastStats() Stats { return e.last }

// Reset drops all plane history; the next frame is sent absolute.
func (e *FrameEncoder) Reset() {
	for i := range e.color {
		e.color[i].reset()
	}
	for i := range e.floats {
		e.floats[i].reset()
	}
}

func (e *FrameEncoder) rangeFor(i int, plane []float32) Range {
	if !e.opts.fixed {
		return observedRange(plane)
	}
	if floatPlane(i) <= PlaneZ {
		return e.opts.geometry
	}
	return e.opts.texture
}

// Encode serializes f. On error nothing is emitted and history is left
// untouched.
func (e *FrameEncoder) Encode(f *frame.RawFrame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	// A resized frame is sent absolute. History is dropped only once the
	// frame is committed.
	resized := f.Height != e.height || f.Width != e.width

	n := int(f.NPoints)
	depth := e.opts.deltaDepth
	predictDepth := depth
	if resized {
		predictDepth = 0
	}
	stats := Stats{Points: n, RawBytes: f.RawSize()}

	w := newWireWriter(MinFrameSize + n*4)
	w.u32(0) // total_length, patched below
	w.u32(f.Height)
	w.u32(f.Width)
	w.u32(f.NPoints)

	colors := splitColor(f.RGB, n)
	for i, plane := range colors {
		order, payload := e.color[i].predict(predictDepth, plane)
		compressed, err := e.opts.compressor.Compress(payload)
		if err != nil {
			return nil, fmt.Errorf("compress plane %s: %w", Plane(i), err)
		}
		field, err := packLength(order, len(compressed))
		if err != nil {
			return nil, err
		}
		w.u32(field)
		w.bytes(compressed)
		stats.Orders[i] = order
		stats.PlaneBytes[i] = len(compressed)
	}

	floats := splitFloats(f)
	var quantized [numFloatPlanes][]int16
	for i, plane := range floats {
		p := floatPlane(i)
		params := paramsFor(e.rangeFor(i, plane))
		quantized[i] = quantize(plane, params)

		order, payload := e.floats[i].predict(predictDepth, quantized[i])
		compressed, err := e.opts.compressor.Compress(int16sToBytes(payload))
		if err != nil {
			return nil, fmt.Errorf("compress plane %s: %w", p, err)
		}
		field, err := packLength(order, len(compressed))
		if err != nil {
			return nil, err
		}
		w.f32(params.Scale)
		w.f32(params.Bias)
		w.u32(field)
		w.bytes(compressed)
		stats.Orders[p] = order
		stats.PlaneBytes[p] = len(compressed)
		stats.Params[i] = params
	}

	if uint64(w.len()) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: encoded frame of %d bytes", ErrInvalidFrame, w.len())
	}
	w.patchU32(0, uint32(w.len()))

	if resized {
		e.Reset()
		e.height, e.width = f.Height, f.Width
	}
	for i := range colors {
		e.color[i].push(colors[i], depth)
	}
	for i := range quantized {
		e.floats[i].push(quantized[i], depth)
	}

	stats.EncodedBytes = w.len()
	e.last = stats
	return w.buf, nil
}
