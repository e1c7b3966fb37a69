// Package window shows the reconstructed point cloud in a desktop window.
package window

import (
	"context"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/telecom3d/internal/display"
	"github.com/junsooki/telecom3d/internal/frame"
)

// Window renders the point cloud using Ebitengine. Without an eye tracker
// the mouse cursor stands in for the viewer's eyes.
type Window struct {
	feed      display.Feed
	projector *display.Projector
	image     *ebiten.Image
	width     int
	height    int

	ctx   context.Context
	frame *frame.RawFrame
}

// New creates a window rendering at width x height.
func New(feed display.Feed, width, height int, cam display.Camera) *Window {
	return &Window{
		feed:      feed,
		projector: display.NewProjector(width, height, cam),
		width:     width,
		height:    height,
	}
}

// Run starts the Ebitengine game loop. It must be called from the main
// goroutine and returns when ctx is done or the window is closed.
func (w *Window) Run(ctx context.Context) error {
	w.ctx = ctx
	ebiten.SetWindowSize(w.width, w.height)
	ebiten.SetWindowTitle("telecom3d")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(w)
}

func (w *Window) Update() error {
	if w.ctx.Err() != nil || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if f := w.feed.Latest(); f != nil {
		w.frame = f
	}
	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	if w.frame == nil {
		return
	}
	img, _ := w.projector.Render(w.frame, w.viewpoint())

	if w.image == nil {
		w.image = ebiten.NewImage(w.width, w.height)
	}
	w.image.WritePixels(img.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(w.width), float64(w.height))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(w.image, op)
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// viewpoint returns the tracked eyes, or a pair centred on the cursor.
func (w *Window) viewpoint() frame.EyesPosition {
	if eyes, ok := w.feed.EyesPosition(); ok {
		return eyes
	}
	mx, my := ebiten.CursorPosition()
	sw, sh := ebiten.WindowSize()
	if sw == 0 || sh == 0 {
		return frame.EyesPosition{}
	}
	x := math.Max(0, math.Min(1, float64(mx)/float64(sw)))
	y := math.Max(0, math.Min(1, float64(my)/float64(sh)))
	return frame.EyesPosition{LeftX: x - 0.03, LeftY: y, RightX: x + 0.03, RightY: y}
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
