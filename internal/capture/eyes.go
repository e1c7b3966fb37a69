package capture

import (
	"math"

	"github.com/junsooki/telecom3d/internal/frame"
)

// OrbitTracker is a stand-in eye detector. It reports a pair of eyes that
// slowly circles the middle of the screen, one step per tracked frame.
type OrbitTracker struct {
	Radius     float64 // normalized screen units
	Separation float64 // distance between the eyes
	Step       float64 // radians per frame

	angle float64
}

// NewOrbitTracker returns a tracker with a gentle default orbit.
func NewOrbitTracker() *OrbitTracker {
	return &OrbitTracker{Radius: 0.1, Separation: 0.12, Step: 0.05}
}

// Track advances the orbit. Frames without points yield no detection.
func (t *OrbitTracker) Track(f *frame.RawFrame) (frame.EyesPosition, bool) {
	if f == nil || f.NPoints == 0 {
		return frame.EyesPosition{}, false
	}
	cx := 0.5 + t.Radius*math.Cos(t.angle)
	cy := 0.5 + t.Radius*0.5*math.Sin(t.angle)
	t.angle = math.Mod(t.angle+t.Step, 2*math.Pi)

	half := t.Separation / 2
	return frame.EyesPosition{
		LeftX:  clampUnit(cx - half),
		LeftY:  clampUnit(cy),
		RightX: clampUnit(cx + half),
		RightY: clampUnit(cy),
	}, true
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
