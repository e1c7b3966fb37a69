package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wireWriter appends little-endian fields to a growing buffer.
type wireWriter struct {
	buf []byte
}

func newWireWriter(capacity int) *wireWriter {
	return &wireWriter{buf: make([]byte, 0, capacity)}
}

func (w *wireWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *wireWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *wireWriter) bytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// patchU32 overwrites a field that was reserved earlier.
func (w *wireWriter) patchU32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf[off:], v)
}

func (w *wireWriter) len() int {
	return len(w.buf)
}

// wireReader is a bounds-checked cursor over an encoded frame. The first
// failed read is sticky: later reads return zero values and err keeps the
// name of the field that ran past the end.
type wireReader struct {
	buf []byte
	off int
	err error
}

func newWireReader(buf []byte) *wireReader {
	return &wireReader{buf: buf}
}

func (r *wireReader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%w: %s: need %d bytes at offset %d, have %d",
			ErrCorruptFrame, field, n, r.off, len(r.buf)-r.off)
		return nil
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p
}

func (r *wireReader) u32(field string) uint32 {
	p := r.take(4, field)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (r *wireReader) f32(field string) float32 {
	return math.Float32frombits(r.u32(field))
}

func (r *wireReader) bytes(n int, field string) []byte {
	return r.take(n, field)
}

func (r *wireReader) remaining() int {
	return len(r.buf) - r.off
}
