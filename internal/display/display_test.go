package display

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/telecom3d/internal/frame"
	"github.com/junsooki/telecom3d/internal/pipe"
)

var (
	red  = color.RGBA{R: 255, A: 255}
	blue = color.RGBA{B: 255, A: 255}
)

// pointFrame builds a 1xN frame whose points each sample their own color.
func pointFrame(points []frame.Vertex, colors []color.RGBA) *frame.RawFrame {
	f := frame.New(1, uint32(len(points)))
	copy(f.Vertices, points)
	for i, c := range colors {
		f.RGB[3*i], f.RGB[3*i+1], f.RGB[3*i+2] = c.R, c.G, c.B
		f.TexCoords[i] = frame.TexCoord{U: (float32(i) + 0.5) / float32(len(points)), V: 0.5}
	}
	return f
}

func findColor(img *image.RGBA, c color.RGBA) (int, int, bool) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}

func TestProjectCenterPoint(t *testing.T) {
	f := pointFrame([]frame.Vertex{{X: 0, Y: 0, Z: 1}}, []color.RGBA{red})
	img := Project(f, frame.EyesPosition{}, 100, 80, DefaultCamera())

	assert.Equal(t, red, img.RGBAAt(50, 40))
	assert.Equal(t, DefaultCamera().Background, img.RGBAAt(0, 0))
}

func TestProjectDepthTest(t *testing.T) {
	points := []frame.Vertex{{X: 0, Y: 0, Z: 2}, {X: 0, Y: 0, Z: 1}}
	for _, order := range [][]int{{0, 1}, {1, 0}} {
		pts := []frame.Vertex{points[order[0]], points[order[1]]}
		cols := []color.RGBA{blue, red}
		if order[0] == 1 {
			cols = []color.RGBA{red, blue}
		}
		img := Project(pointFrame(pts, cols), frame.EyesPosition{}, 64, 64, DefaultCamera())
		assert.Equal(t, red, img.RGBAAt(32, 32), "nearest point wins, order %v", order)
	}
}

func TestProjectParallax(t *testing.T) {
	f := pointFrame(
		[]frame.Vertex{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 0.5, Z: 4}},
		[]color.RGBA{red, blue},
	)
	right := frame.EyesPosition{LeftX: 0.95, LeftY: 0.5, RightX: 1, RightY: 0.5}

	p := NewProjector(200, 200, DefaultCamera())
	img, drawn := p.Render(f, frame.EyesPosition{})
	require.Equal(t, 2, drawn)
	nearX0, _, ok := findColor(img, red)
	require.True(t, ok)
	farX0, _, ok := findColor(img, blue)
	require.True(t, ok)

	img, drawn = p.Render(f, right)
	require.Equal(t, 2, drawn)
	nearX1, _, ok := findColor(img, red)
	require.True(t, ok)
	farX1, _, ok := findColor(img, blue)
	require.True(t, ok)

	assert.Less(t, nearX1, nearX0, "moving the eyes right shifts the scene left")
	assert.Greater(t, nearX0-nearX1, farX0-farX1, "near points move more than far ones")
}

func TestProjectSkipsInvalidPoints(t *testing.T) {
	nan := float32(math.NaN())
	f := pointFrame(
		[]frame.Vertex{{Z: 0}, {Z: -1}, {Z: nan}, {X: 100, Z: 1}, {Z: 1}},
		[]color.RGBA{red, red, red, red, blue},
	)
	f.TexCoords = append(f.TexCoords[:4], frame.TexCoord{U: 1.5, V: 0.5})

	_, drawn := NewProjector(32, 32, DefaultCamera()).Render(f, frame.EyesPosition{})
	assert.Zero(t, drawn)

	_, drawn = NewProjector(32, 32, DefaultCamera()).Render(nil, frame.EyesPosition{})
	assert.Zero(t, drawn)
}

func TestProjectPointSize(t *testing.T) {
	cam := DefaultCamera()
	cam.PointSize = 3
	img := Project(pointFrame([]frame.Vertex{{Z: 1}}, []color.RGBA{red}), frame.EyesPosition{}, 20, 20, cam)
	for dy := 0; dy < 3; dy++ {
		for dx := 0; dx < 3; dx++ {
			assert.Equal(t, red, img.RGBAAt(10+dx, 10+dy))
		}
	}
}

type feedHandles struct {
	feed   Feed
	frames *pipe.Producer[*frame.RawFrame]
	eyes   *pipe.Writer[frame.EyesPosition]
}

func newFeed(t *testing.T) feedHandles {
	t.Helper()
	ch := pipe.NewChannel[*frame.RawFrame]()
	prod, err := ch.Producer()
	require.NoError(t, err)
	cons, err := ch.Consumer()
	require.NoError(t, err)
	cell := pipe.NewStateCell[frame.EyesPosition]()
	w, err := cell.Writer()
	require.NoError(t, err)
	r, err := cell.Reader()
	require.NoError(t, err)
	return feedHandles{feed: Feed{Frames: cons, Eyes: r}, frames: prod, eyes: w}
}

func TestFeedLatest(t *testing.T) {
	h := newFeed(t)
	assert.Nil(t, h.feed.Latest())

	a, b := frame.New(1, 1), frame.New(2, 2)
	h.frames.Push(a)
	h.frames.Push(b)
	assert.Same(t, b, h.feed.Latest())
	assert.Nil(t, h.feed.Latest())

	_, ok := h.feed.EyesPosition()
	assert.False(t, ok)
	pos := frame.EyesPosition{LeftX: 0.4, LeftY: 0.5, RightX: 0.6, RightY: 0.5}
	h.eyes.Put(pos)
	got, ok := h.feed.EyesPosition()
	assert.True(t, ok)
	assert.Equal(t, pos, got)

	_, ok = Feed{}.EyesPosition()
	assert.False(t, ok)
}

func TestHeadlessRun(t *testing.T) {
	h := newFeed(t)
	for i := 0; i < 3; i++ {
		h.frames.Push(pointFrame([]frame.Vertex{{Z: 1}, {X: 0.1, Z: 1}}, []color.RGBA{red, blue}))
	}
	h.eyes.Put(frame.EyesPosition{LeftX: 0.45, LeftY: 0.5, RightX: 0.55, RightY: 0.5})

	snapshot := filepath.Join(t.TempDir(), "last.png")
	r := NewHeadless(h.feed, 64, 48, DefaultCamera())
	r.LogEvery = 2
	r.Snapshot = snapshot

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 3, r.Rendered())
	assert.Equal(t, 2, r.Drawn())

	file, err := os.Open(snapshot)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
}
