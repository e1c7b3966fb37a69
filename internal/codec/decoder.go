package codec

import (
	"fmt"
	"time"

	"github.com/junsooki/telecom3d/internal/frame"
)

// FrameDecoder is the Decoder of this package. It mirrors the history of
// the FrameEncoder at the other end of the stream.
type FrameDecoder struct {
	opts options

	height, width uint32
	color         [numColorPlanes]history[uint8]
	floats        [numFloatPlanes]history[int16]
}

// NewDecoder creates a decoder. WithDeltaDepth and WithFixedRange are
// ignored; the order and normalization of each plane travel with it.
func NewDecoder(opts ...Option) (*FrameDecoder, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	return &FrameDecoder{opts: o}, nil
}

// Compression returns the compressor name.
func (d *FrameDecoder) Compression() string { return d.opts.compressor.Name() }

// Reset drops all plane history.
func (d *FrameDecoder) Reset() {
	for i := range d.color {
		d.color[i].reset()
	}
	for i := range d.floats {
		d.floats[i].reset()
	}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorruptFrame}, args...)...)
}

// Decode parses one complete encoded frame. Any inconsistency yields
// ErrCorruptFrame; history only advances when the whole frame decodes.
func (d *FrameDecoder) Decode(buf []byte) (*frame.RawFrame, error) {
	r := newWireReader(buf)
	total := r.u32("total_length")
	height := r.u32("height")
	width := r.u32("width")
	points := r.u32("n_points")
	if r.err != nil {
		return nil, r.err
	}
	if uint64(total) != uint64(len(buf)) {
		return nil, corrupt("total_length %d, buffer holds %d", total, len(buf))
	}
	if height == 0 || width == 0 || uint64(points) != uint64(height)*uint64(width) {
		return nil, corrupt("dimensions %dx%d with %d points", width, height, points)
	}
	if points > d.opts.maxPoints {
		return nil, corrupt("%d points exceeds limit %d", points, d.opts.maxPoints)
	}

	if height != d.height || width != d.width {
		d.Reset()
		d.height, d.width = height, width
	}
	n := int(points)

	var colors [numColorPlanes][]uint8
	for i := range colors {
		p := Plane(i)
		order, size := unpackLength(r.u32(p.String() + " compressed_len"))
		payload := r.bytes(size, p.String()+" payload")
		if r.err != nil {
			return nil, r.err
		}
		raw, err := d.opts.compressor.Decompress(payload, n)
		if err != nil {
			return nil, fmt.Errorf("plane %s: %w", p, err)
		}
		plane, err := restorePlane(&d.color[i], order, raw)
		if err != nil {
			return nil, fmt.Errorf("plane %s: %w", p, err)
		}
		colors[i] = plane
	}

	var quantized [numFloatPlanes][]int16
	var values [numFloatPlanes][]float32
	for i := range quantized {
		p := floatPlane(i)
		params := NormalizationParams{
			Scale: r.f32(p.String() + " scale"),
			Bias:  r.f32(p.String() + " bias"),
		}
		order, size := unpackLength(r.u32(p.String() + " compressed_len"))
		payload := r.bytes(size, p.String()+" payload")
		if r.err != nil {
			return nil, r.err
		}
		if !isFinite(params.Scale) || !isFinite(params.Bias) || params.Scale < 0 {
			return nil, corrupt("plane %s: normalization %+v", p, params)
		}
		raw, err := d.opts.compressor.Decompress(payload, 2*n)
		if err != nil {
			return nil, fmt.Errorf("plane %s: %w", p, err)
		}
		plane, err := restorePlane(&d.floats[i], order, bytesToInt16s(raw))
		if err != nil {
			return nil, fmt.Errorf("plane %s: %w", p, err)
		}
		quantized[i] = plane
		values[i] = dequantize(plane, params)
	}

	if rest := r.remaining(); rest != 0 {
		return nil, corrupt("%d trailing bytes", rest)
	}

	for i := range colors {
		d.color[i].push(colors[i], MaxDeltaDepth)
	}
	for i := range quantized {
		d.floats[i].push(quantized[i], MaxDeltaDepth)
	}

	vertices, texCoords := mergeFloats(values, n)
	return &frame.RawFrame{
		Height:    height,
		Width:     width,
		NPoints:   points,
		RGB:       mergeColor(colors, n),
		Vertices:  vertices,
		TexCoords: texCoords,
		Timestamp: time.Now(),
	}, nil
}

func restorePlane[T sample](h *history[T], order int, payload []T) ([]T, error) {
	if order == 0 {
		return payload, nil
	}
	if order > MaxDeltaDepth || h.order(order, len(payload)) != order {
		return nil, corrupt("prediction order %d with %d history planes", order, len(h.planes))
	}
	return h.restore(order, payload), nil
}
