package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsValid(t *testing.T) {
	f := New(3, 4)
	assert.NoError(t, f.Validate())
	assert.Equal(t, uint32(12), f.NPoints)
	assert.Len(t, f.RGB, 36)
	assert.Equal(t, 16+12*23, f.RawSize())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *RawFrame)
	}{
		{"zero height", func(f *RawFrame) { f.Height, f.NPoints = 0, 0 }},
		{"points mismatch", func(f *RawFrame) { f.NPoints++ }},
		{"short rgb", func(f *RawFrame) { f.RGB = f.RGB[:len(f.RGB)-1] }},
		{"missing vertex", func(f *RawFrame) { f.Vertices = f.Vertices[1:] }},
		{"extra texcoord", func(f *RawFrame) { f.TexCoords = append(f.TexCoords, TexCoord{}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(2, 2)
			tt.mutate(f)
			assert.ErrorIs(t, f.Validate(), ErrInvalidFrame)
		})
	}

	var nilFrame *RawFrame
	assert.ErrorIs(t, nilFrame.Validate(), ErrInvalidFrame)
}

func TestEyesPosition(t *testing.T) {
	var e EyesPosition
	assert.True(t, e.IsZero())

	e = EyesPosition{LeftX: 0.2, LeftY: 0.4, RightX: 0.6, RightY: 0.6}
	assert.False(t, e.IsZero())
	x, y := e.Center()
	assert.InDelta(t, 0.4, x, 1e-12)
	assert.InDelta(t, 0.5, y, 1e-12)
}
