package codec

import (
	"encoding/binary"

	"github.com/junsooki/telecom3d/internal/frame"
)

// Plane identifies one scalar channel extracted from a frame, in wire order.
type Plane int

const (
	PlaneR Plane = iota
	PlaneG
	PlaneB
	PlaneX
	PlaneY
	PlaneZ
	PlaneU
	PlaneV

	NumPlanes
)

// Color and float planes are encoded in two groups.
const (
	numColorPlanes = 3
	numFloatPlanes = 5
)

var planeNames = [NumPlanes]string{"R", "G", "B", "X", "Y", "Z", "U", "V"}

func (p Plane) String() string {
	if p < 0 || p >= NumPlanes {
		return "?"
	}
	return planeNames[p]
}

// floatPlane maps a float plane index (0..4) back to its Plane.
func floatPlane(i int) Plane {
	return PlaneX + Plane(i)
}

func splitColor(rgb []byte, n int) [numColorPlanes][]uint8 {
	var out [numColorPlanes][]uint8
	for c := range out {
		out[c] = make([]uint8, n)
	}
	for i := 0; i < n; i++ {
		out[0][i] = rgb[3*i]
		out[1][i] = rgb[3*i+1]
		out[2][i] = rgb[3*i+2]
	}
	return out
}

func mergeColor(planes [numColorPlanes][]uint8, n int) []byte {
	rgb := make([]byte, 3*n)
	for i := 0; i < n; i++ {
		rgb[3*i] = planes[0][i]
		rgb[3*i+1] = planes[1][i]
		rgb[3*i+2] = planes[2][i]
	}
	return rgb
}

func splitFloats(f *frame.RawFrame) [numFloatPlanes][]float32 {
	n := int(f.NPoints)
	var out [numFloatPlanes][]float32
	for c := range out {
		out[c] = make([]float32, n)
	}
	for i, v := range f.Vertices {
		out[0][i] = v.X
		out[1][i] = v.Y
		out[2][i] = v.Z
	}
	for i, t := range f.TexCoords {
		out[3][i] = t.U
		out[4][i] = t.V
	}
	return out
}

func mergeFloats(planes [numFloatPlanes][]float32, n int) ([]frame.Vertex, []frame.TexCoord) {
	vertices := make([]frame.Vertex, n)
	texCoords := make([]frame.TexCoord, n)
	for i := 0; i < n; i++ {
		vertices[i] = frame.Vertex{X: planes[0][i], Y: planes[1][i], Z: planes[2][i]}
		texCoords[i] = frame.TexCoord{U: planes[3][i], V: planes[4][i]}
	}
	return vertices, texCoords
}

func int16sToBytes(p []int16) []byte {
	out := make([]byte, 2*len(p))
	for i, v := range p {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func bytesToInt16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}
