package codec

import "slices"

// MaxDeltaDepth bounds how many previous frames a plane is predicted from.
const MaxDeltaDepth = 2

type sample interface {
	~uint8 | ~int16
}

// history keeps the last absolute planes of one channel, newest first.
// Arithmetic on residues wraps in T, so restoring a residue against the same
// history is exact.
type history[T sample] struct {
	planes [][]T
}

// order returns the prediction order usable for a plane of n samples.
func (h *history[T]) order(depth, n int) int {
	k := min(depth, len(h.planes))
	for i := 0; i < k; i++ {
		if len(h.planes[i]) != n {
			return 0
		}
	}
	return k
}

func (h *history[T]) push(p []T, depth int) {
	if depth == 0 {
		return
	}
	h.planes = slices.Insert(h.planes, 0, p)
	if len(h.planes) > depth {
		h.planes[depth] = nil
		h.planes = h.planes[:depth]
	}
}

func (h *history[T]) reset() {
	h.planes = nil
}

// residue predicts cur from history: order 1 is d-h0, order 2 is
// d-h0-(h0-h1).
func (h *history[T]) residue(order int, cur []T) []T {
	out := make([]T, len(cur))
	switch order {
	case 1:
		h0 := h.planes[0]
		for i := range cur {
			out[i] = cur[i] - h0[i]
		}
	case 2:
		h0, h1 := h.planes[0], h.planes[1]
		for i := range cur {
			out[i] = cur[i] - h0[i] - (h0[i] - h1[i])
		}
	default:
		copy(out, cur)
	}
	return out
}

func (h *history[T]) restore(order int, res []T) []T {
	out := make([]T, len(res))
	switch order {
	case 1:
		h0 := h.planes[0]
		for i := range res {
			out[i] = res[i] + h0[i]
		}
	case 2:
		h0, h1 := h.planes[0], h.planes[1]
		for i := range res {
			out[i] = res[i] + h0[i] + (h0[i] - h1[i])
		}
	default:
		copy(out, res)
	}
	return out
}

// predict picks the residue to transmit for cur. The residue is only used if
// restoring it reproduces cur bit for bit; otherwise the absolute plane is
// sent with order 0.
func (h *history[T]) predict(depth int, cur []T) (int, []T) {
	order := h.order(depth, len(cur))
	if order == 0 {
		return 0, cur
	}
	res := h.residue(order, cur)
	if !slices.Equal(h.restore(order, res), cur) {
		return 0, cur
	}
	return order, res
}
