package display

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Headless renders every frame off-screen and logs throughput. It is the
// render stage for servers and tests.
type Headless struct {
	feed      Feed
	projector *Projector

	// LogEvery logs a summary after this many frames. 0 disables it.
	LogEvery int
	// Snapshot, if set, receives the last rendered image as PNG on exit.
	Snapshot string

	rendered int
	drawn    int
}

// NewHeadless creates a headless renderer of the given output size.
func NewHeadless(feed Feed, width, height int, cam Camera) *Headless {
	return &Headless{
		feed:      feed,
		projector: NewProjector(width, height, cam),
		LogEvery:  100,
	}
}

// Rendered returns how many frames have been rendered.
func (h *Headless) Rendered() int { return h.rendered }

// Drawn returns the number of points drawn for the last frame.
func (h *Headless) Drawn() int { return h.drawn }

// Run renders frames as they arrive until ctx is done.
func (h *Headless) Run(ctx context.Context) error {
	log := logrus.WithFields(logrus.Fields{"function": "Run", "renderer": "headless"})
	start := time.Now()
	for {
		f, err := h.feed.Frames.Wait(ctx)
		if err != nil {
			if errors.Is(err, ctx.Err()) {
				log.WithField("frames", h.rendered).Info("renderer stopped")
				return h.writeSnapshot()
			}
			return err
		}
		eyes, _ := h.feed.EyesPosition()
		_, h.drawn = h.projector.Render(f, eyes)
		h.rendered++

		if h.LogEvery > 0 && h.rendered%h.LogEvery == 0 {
			elapsed := time.Since(start).Seconds()
			log.WithFields(logrus.Fields{
				"frames": h.rendered,
				"fps":    fmt.Sprintf("%.1f", float64(h.rendered)/elapsed),
				"points": h.drawn,
				"size":   fmt.Sprintf("%dx%d", f.Width, f.Height),
			}).Info("rendering")
		}
	}
}

func (h *Headless) writeSnapshot() error {
	if h.Snapshot == "" || h.rendered == 0 {
		return nil
	}
	file, err := os.Create(h.Snapshot)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := png.Encode(file, h.projector.img); err != nil {
		file.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return file.Close()
}
