// Package capture produces point-cloud frames and eye positions for the
// pipeline.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junsooki/telecom3d/internal/frame"
	"github.com/junsooki/telecom3d/internal/pipe"
)

var (
	// ErrSourceExhausted is returned by a Source with no more frames.
	ErrSourceExhausted = errors.New("capture source exhausted")
	// ErrInvalidDump reports a malformed frame dump.
	ErrInvalidDump = errors.New("invalid frame dump")
)

// MaxFPS bounds the capture rate.
const MaxFPS = 120

// Source produces frames. Next blocks until a frame is ready or ctx is done.
type Source interface {
	Next(ctx context.Context) (*frame.RawFrame, error)
}

// EyeTracker locates the viewer's eyes. It reports false when no eyes were
// found in f.
type EyeTracker interface {
	Track(f *frame.RawFrame) (frame.EyesPosition, bool)
}

// Stage is the capture stage of the pipeline: it pulls frames from a
// Source at a fixed rate, pushes them downstream and publishes eye
// positions.
type Stage struct {
	src     Source
	tracker EyeTracker
	fps     int

	// Limit stops the stage after this many frames. 0 means no limit.
	Limit int
}

// NewStage creates a capture stage. fps 0 pulls frames as fast as the
// source yields them. tracker may be nil.
func NewStage(src Source, tracker EyeTracker, fps int) (*Stage, error) {
	if fps < 0 || fps > MaxFPS {
		return nil, fmt.Errorf("fps must be 0-%d, got %d", MaxFPS, fps)
	}
	return &Stage{src: src, tracker: tracker, fps: fps}, nil
}

// Run captures until ctx is done, the source is exhausted or Limit is
// reached. eyes may be nil.
func (s *Stage) Run(ctx context.Context, frames *pipe.Producer[*frame.RawFrame], eyes *pipe.Writer[frame.EyesPosition]) error {
	log := logrus.WithFields(logrus.Fields{
		"function": "Run",
		"fps":      s.fps,
	})
	log.Info("capture started")

	var tick <-chan time.Time
	if s.fps > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(s.fps))
		defer ticker.Stop()
		tick = ticker.C
	}

	count := 0
	for s.Limit == 0 || count < s.Limit {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		f, err := s.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrSourceExhausted) {
				log.WithField("frames", count).Info("capture source exhausted")
				return nil
			}
			return fmt.Errorf("capture frame: %w", err)
		}
		frames.Push(f)
		count++

		if s.tracker != nil && eyes != nil {
			if pos, ok := s.tracker.Track(f); ok {
				eyes.Put(pos)
			}
		}
	}
	log.WithField("frames", count).Info("capture limit reached")
	return nil
}
