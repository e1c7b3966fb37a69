package pipe

import (
	"sync"
	"sync/atomic"
)

// StateCell holds the latest value written by one writer for one reader.
// A put replaces the previous value; nothing is queued, so a slow reader
// only ever sees the newest state.
type StateCell[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64

	writerTaken atomic.Bool
	readerTaken atomic.Bool
}

// NewStateCell creates a cell holding T's zero value.
func NewStateCell[T any]() *StateCell[T] {
	return &StateCell[T]{}
}

// Writer takes the writer token. It fails with ErrStateBusy while another
// writer handle is live.
func (s *StateCell[T]) Writer() (*Writer[T], error) {
	if !s.writerTaken.CompareAndSwap(false, true) {
		return nil, ErrStateBusy
	}
	return &Writer[T]{cell: s}, nil
}

// Reader takes the reader token. It fails with ErrStateBusy while another
// reader handle is live.
func (s *StateCell[T]) Reader() (*Reader[T], error) {
	if !s.readerTaken.CompareAndSwap(false, true) {
		return nil, ErrStateBusy
	}
	return &Reader[T]{cell: s}, nil
}

// Writer is the exclusive put handle of a StateCell.
type Writer[T any] struct {
	cell *StateCell[T]
}

// Put overwrites the current value.
func (w *Writer[T]) Put(v T) {
	if w.cell == nil {
		panic("pipe: put on released writer")
	}
	w.cell.mu.Lock()
	w.cell.value = v
	w.cell.version++
	w.cell.mu.Unlock()
}

// Release returns the writer token.
func (w *Writer[T]) Release() {
	if w == nil || w.cell == nil {
		return
	}
	w.cell.writerTaken.Store(false)
	w.cell = nil
}

// Reader is the exclusive get handle of a StateCell.
type Reader[T any] struct {
	cell *StateCell[T]
}

// Get returns the most recently put value, or T's zero value before the
// first put.
func (r *Reader[T]) Get() T {
	v, _ := r.Load()
	return v
}

// Load returns the current value together with the number of puts so far.
// A reader can compare versions to tell a fresh value from a stale one.
func (r *Reader[T]) Load() (T, uint64) {
	if r.cell == nil {
		panic("pipe: get on released reader")
	}
	r.cell.mu.Lock()
	defer r.cell.mu.Unlock()
	return r.cell.value, r.cell.version
}

// Version returns the number of puts so far.
func (r *Reader[T]) Version() uint64 {
	_, v := r.Load()
	return v
}

// Release returns the reader token.
func (r *Reader[T]) Release() {
	if r == nil || r.cell == nil {
		return
	}
	r.cell.readerTaken.Store(false)
	r.cell = nil
}
