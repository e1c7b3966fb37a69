package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y float64 }

func TestStateCellDefault(t *testing.T) {
	cell := NewStateCell[position]()
	r, err := cell.Reader()
	require.NoError(t, err)

	v, version := r.Load()
	assert.Equal(t, position{}, v)
	assert.Zero(t, version)
}

func TestStateCellOverwrite(t *testing.T) {
	cell := NewStateCell[position]()
	w, err := cell.Writer()
	require.NoError(t, err)
	r, err := cell.Reader()
	require.NoError(t, err)

	w.Put(position{1, 1})
	w.Put(position{2, 2})

	assert.Equal(t, position{2, 2}, r.Get())
	assert.Equal(t, position{2, 2}, r.Get(), "get does not consume")

	_, version := r.Load()
	assert.Equal(t, uint64(2), version)
	assert.Equal(t, version, r.Version())
}

func TestStateCellExclusiveHandles(t *testing.T) {
	cell := NewStateCell[int]()

	w, err := cell.Writer()
	require.NoError(t, err)
	_, err = cell.Writer()
	assert.ErrorIs(t, err, ErrStateBusy)

	r, err := cell.Reader()
	require.NoError(t, err)
	_, err = cell.Reader()
	assert.ErrorIs(t, err, ErrStateBusy)

	w.Release()
	r.Release()

	_, err = cell.Writer()
	assert.NoError(t, err)
	_, err = cell.Reader()
	assert.NoError(t, err)

	assert.Panics(t, func() { w.Put(1) })
	assert.Panics(t, func() { r.Get() })
}
