package codec

import (
	"math"
)

// FullRange is the largest quantized value. Float planes map onto
// [0, FullRange], the non-negative half of int16.
const FullRange = 32767

// NormalizationParams reconstructs a float plane: value = q*Scale + Bias.
type NormalizationParams struct {
	Scale float32
	Bias  float32
}

// Range is a closed interval of plane values.
type Range struct {
	Min, Max float32
}

// Symmetric returns [-limit, limit].
func Symmetric(limit float32) Range {
	return Range{Min: -limit, Max: limit}
}

func (r Range) valid() bool {
	return isFinite(r.Min) && isFinite(r.Max) && r.Max >= r.Min
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// observedRange returns the min and max over the finite values of p, or
// the zero Range if there are none.
func observedRange(p []float32) Range {
	lo, hi := float32(math.MaxFloat32), float32(-math.MaxFloat32)
	seen := false
	for _, v := range p {
		if !isFinite(v) {
			continue
		}
		seen = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if !seen {
		return Range{}
	}
	return Range{Min: lo, Max: hi}
}

// paramsFor derives the affine transform for r. The float32 scale is rounded
// up when needed so that Max never quantizes above FullRange.
func paramsFor(r Range) NormalizationParams {
	span := float64(r.Max) - float64(r.Min)
	if span <= 0 {
		return NormalizationParams{Scale: 0, Bias: r.Min}
	}
	scale := float32(span / FullRange)
	if float64(scale)*FullRange < span {
		scale = math.Nextafter32(scale, math.MaxFloat32)
	}
	return NormalizationParams{Scale: scale, Bias: r.Min}
}

// quantize maps p onto [0, FullRange]. Values outside the range clamp;
// non-finite values map to 0.
func quantize(p []float32, np NormalizationParams) []int16 {
	out := make([]int16, len(p))
	if np.Scale == 0 {
		return out
	}
	scale, bias := float64(np.Scale), float64(np.Bias)
	for i, v := range p {
		if !isFinite(v) {
			continue
		}
		q := math.Round((float64(v) - bias) / scale)
		switch {
		case q < 0:
			q = 0
		case q > FullRange:
			q = FullRange
		}
		out[i] = int16(q)
	}
	return out
}

func dequantize(q []int16, np NormalizationParams) []float32 {
	out := make([]float32, len(q))
	scale, bias := float64(np.Scale), float64(np.Bias)
	for i, v := range q {
		out[i] = float32(float64(v)*scale + bias)
	}
	return out
}
