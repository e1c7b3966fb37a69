package display

import (
	"image"
	"image/color"
	"math"

	"github.com/junsooki/telecom3d/internal/frame"
)

// Camera describes the virtual pinhole camera used for projection.
type Camera struct {
	// FocalLength in units of the output width.
	FocalLength float64
	// Parallax is how far, in metres, the viewpoint moves when the eyes
	// travel from the screen center to its edge.
	Parallax   float64
	PointSize  int
	Background color.RGBA
}

// DefaultCamera roughly matches a 60 degree horizontal field of view.
func DefaultCamera() Camera {
	return Camera{
		FocalLength: 0.87,
		Parallax:    0.3,
		PointSize:   1,
		Background:  color.RGBA{A: 0xff},
	}
}

// Projector splats point clouds into an RGBA image with a depth buffer.
// Buffers are reused between calls; it is not safe for concurrent use.
type Projector struct {
	cam   Camera
	img   *image.RGBA
	depth []float32
}

// NewProjector creates a projector rendering width x height images.
func NewProjector(width, height int, cam Camera) *Projector {
	if cam.PointSize < 1 {
		cam.PointSize = 1
	}
	return &Projector{
		cam:   cam,
		img:   image.NewRGBA(image.Rect(0, 0, width, height)),
		depth: make([]float32, width*height),
	}
}

// viewOffset converts the eye midpoint into a camera translation.
func (p *Projector) viewOffset(eyes frame.EyesPosition) (float64, float64) {
	if eyes.IsZero() {
		return 0, 0
	}
	cx, cy := eyes.Center()
	return (cx - 0.5) * 2 * p.cam.Parallax, (0.5 - cy) * 2 * p.cam.Parallax
}

// Render draws f as seen from the viewpoint implied by eyes and returns the
// image with the number of points drawn. The image is overwritten by the
// next call.
func (p *Projector) Render(f *frame.RawFrame, eyes frame.EyesPosition) (*image.RGBA, int) {
	bg := p.cam.Background
	pix := p.img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = bg.R, bg.G, bg.B, bg.A
	}
	for i := range p.depth {
		p.depth[i] = math.MaxFloat32
	}
	if f == nil || f.Validate() != nil {
		return p.img, 0
	}

	w, h := p.img.Rect.Dx(), p.img.Rect.Dy()
	fpx := p.cam.FocalLength * float64(w)
	offX, offY := p.viewOffset(eyes)
	size := p.cam.PointSize
	fw, fh := int(f.Width), int(f.Height)

	drawn := 0
	for i, v := range f.Vertices {
		z := float64(v.Z)
		if !(z > 0) || math.IsInf(z, 0) {
			continue
		}
		tc := f.TexCoords[i]
		if !(tc.U >= 0 && tc.U <= 1 && tc.V >= 0 && tc.V <= 1) {
			continue
		}
		px := int(float64(w)/2 + fpx*(float64(v.X)-offX)/z)
		py := int(float64(h)/2 - fpx*(float64(v.Y)-offY)/z)
		if px < 0 || py < 0 || px >= w || py >= h {
			continue
		}

		col := min(int(tc.U*float32(fw)), fw-1)
		row := min(int(tc.V*float32(fh)), fh-1)
		c := 3 * (row*fw + col)
		r, g, b := f.RGB[c], f.RGB[c+1], f.RGB[c+2]

		hit := false
		for dy := 0; dy < size && py+dy < h; dy++ {
			for dx := 0; dx < size && px+dx < w; dx++ {
				idx := (py+dy)*w + px + dx
				if float32(z) >= p.depth[idx] {
					continue
				}
				p.depth[idx] = float32(z)
				o := 4 * idx
				pix[o], pix[o+1], pix[o+2], pix[o+3] = r, g, b, 0xff
				hit = true
			}
		}
		if hit {
			drawn++
		}
	}
	return p.img, drawn
}

// Project renders f into a new image.
func Project(f *frame.RawFrame, eyes frame.EyesPosition, width, height int, cam Camera) *image.RGBA {
	img, _ := NewProjector(width, height, cam).Render(f, eyes)
	return img
}
