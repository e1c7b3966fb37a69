// Package display renders reconstructed point clouds.
package display

import (
	"context"

	"github.com/junsooki/telecom3d/internal/frame"
	"github.com/junsooki/telecom3d/internal/pipe"
)

// Renderer consumes decoded frames until ctx is done.
type Renderer interface {
	Run(ctx context.Context) error
}

// Feed is the render stage's view of the pipeline.
type Feed struct {
	Frames *pipe.Consumer[*frame.RawFrame]
	Eyes   *pipe.Reader[frame.EyesPosition] // optional
}

// Latest drains the frame queue and returns the newest frame, or nil when
// nothing arrived since the last call.
func (f Feed) Latest() *frame.RawFrame {
	var last *frame.RawFrame
	for {
		fr, err := f.Frames.Pop()
		if err != nil {
			return last
		}
		last = fr
	}
}

// EyesPosition returns the latest eye position and whether one was ever
// published.
func (f Feed) EyesPosition() (frame.EyesPosition, bool) {
	if f.Eyes == nil {
		return frame.EyesPosition{}, false
	}
	pos, version := f.Eyes.Load()
	return pos, version > 0
}
