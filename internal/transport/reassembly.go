package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/junsooki/telecom3d/internal/codec"
)

const lengthPrefixSize = 4

// ReceiveState is the receive-side framing state of a connection.
type ReceiveState int

const (
	StateIdle ReceiveState = iota
	StateAccumulating
	StateFrameReady
)

func (s ReceiveState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateFrameReady:
		return "frame-ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reassembler recovers frame boundaries from arbitrarily chunked reads.
// One Reassembler belongs to one connection.
type Reassembler struct {
	buf []byte
	max int
	err error
}

// NewReassembler creates a Reassembler rejecting frames above maxFrameSize
// bytes. A non-positive maxFrameSize selects DefaultMaxFrameSize.
func NewReassembler(maxFrameSize int) *Reassembler {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reassembler{max: maxFrameSize}
}

// Buffered returns the number of bytes held for the pending frame.
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Err returns the framing error, if any. It is sticky.
func (r *Reassembler) Err() error { return r.err }

// State reports the current receive state.
func (r *Reassembler) State() ReceiveState {
	if len(r.buf) == 0 {
		return StateIdle
	}
	if len(r.buf) >= lengthPrefixSize {
		n := binary.LittleEndian.Uint32(r.buf)
		if uint64(len(r.buf)) >= uint64(n) {
			return StateFrameReady
		}
	}
	return StateAccumulating
}

// frameLength validates the length header at the start of hdr.
func (r *Reassembler) frameLength(hdr []byte) (int, error) {
	n := binary.LittleEndian.Uint32(hdr)
	if n < codec.MinFrameSize {
		return 0, fmt.Errorf("%w: length header %d below minimum %d", ErrCorruptFrame, n, codec.MinFrameSize)
	}
	if uint64(n) > uint64(r.max) {
		return 0, fmt.Errorf("%w: length header %d, limit %d", ErrOversizedFrame, n, r.max)
	}
	return int(n), nil
}

// Feed appends p and returns every frame it completes, in stream order.
// Returned frames do not alias p or internal storage. Frames completed
// before a framing error are returned alongside it.
func (r *Reassembler) Feed(p []byte) ([][]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.buf = append(r.buf, p...)

	var frames [][]byte
	off := 0
	for len(r.buf)-off >= lengthPrefixSize {
		n, err := r.frameLength(r.buf[off:])
		if err != nil {
			r.err = err
			r.buf = nil
			return frames, err
		}
		if len(r.buf)-off < n {
			break
		}
		frames = append(frames, append([]byte(nil), r.buf[off:off+n]...))
		off += n
	}
	if off > 0 {
		r.buf = append(r.buf[:0], r.buf[off:]...)
	}
	return frames, nil
}
