package transport

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/telecom3d/internal/codec"
	"github.com/junsooki/telecom3d/internal/frame"
)

func sampleFrame(height, width uint32, step int) *frame.RawFrame {
	f := frame.New(height, width)
	for i := range f.Vertices {
		x := float64(i%int(width)) / float64(width)
		y := float64(i/int(width)) / float64(height)
		f.Vertices[i] = frame.Vertex{
			X: float32(x*2 - 1),
			Y: float32(y*2 - 1),
			Z: float32(1 + 0.2*math.Sin(x*5+float64(step)*0.1)),
		}
		f.TexCoords[i] = frame.TexCoord{U: float32(x), V: float32(y)}
		f.RGB[3*i] = byte(i + step)
		f.RGB[3*i+1] = byte(255 - i)
		f.RGB[3*i+2] = byte(step)
	}
	return f
}

func encodeFrames(t *testing.T, frames ...*frame.RawFrame) [][]byte {
	t.Helper()
	enc, err := codec.NewEncoder()
	require.NoError(t, err)
	out := make([][]byte, 0, len(frames))
	for _, f := range frames {
		buf, err := enc.Encode(f)
		require.NoError(t, err)
		out = append(out, buf)
	}
	return out
}

var ignoreTimestamp = cmpopts.IgnoreFields(frame.RawFrame{}, "Timestamp")

func TestReassemblyChunkedMatchesOneShot(t *testing.T) {
	data := encodeFrames(t, sampleFrame(6, 5, 0))[0]
	require.Greater(t, len(data), 10)

	oneShot := NewReassembler(0)
	want, err := oneShot.Feed(data)
	require.NoError(t, err)
	require.Len(t, want, 1)
	assert.Equal(t, StateIdle, oneShot.State())

	r := NewReassembler(0)
	chunks := [][]byte{data[:7], data[7 : len(data)-3], data[len(data)-3:]}

	got, err := r.Feed(chunks[0])
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, StateAccumulating, r.State())

	got, err = r.Feed(chunks[1])
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, len(data)-3, r.Buffered())

	got, err = r.Feed(chunks[2])
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want[0], got[0])
	assert.Equal(t, StateIdle, r.State())
	assert.Zero(t, r.Buffered())

	dec1, err := codec.NewDecoder()
	require.NoError(t, err)
	dec2, err := codec.NewDecoder()
	require.NoError(t, err)
	a, err := dec1.Decode(want[0])
	require.NoError(t, err)
	b, err := dec2.Decode(got[0])
	require.NoError(t, err)
	if diff := cmp.Diff(a, b, ignoreTimestamp); diff != "" {
		t.Fatalf("chunked decode differs (-one-shot +chunked):\n%s", diff)
	}
}

func TestReassemblyFramesAcrossChunks(t *testing.T) {
	encoded := encodeFrames(t, sampleFrame(3, 3, 0), sampleFrame(3, 3, 1), sampleFrame(4, 2, 2))
	var stream []byte
	for _, e := range encoded {
		stream = append(stream, e...)
	}

	for _, size := range []int{1, 3, 5, 64, len(stream)} {
		r := NewReassembler(0)
		var got [][]byte
		for off := 0; off < len(stream); off += size {
			end := min(off+size, len(stream))
			frames, err := r.Feed(stream[off:end])
			require.NoError(t, err)
			got = append(got, frames...)
		}
		assert.Equal(t, encoded, got, "chunk size %d", size)
	}
}

func TestReassemblyReturnedFramesDoNotAlias(t *testing.T) {
	data := encodeFrames(t, sampleFrame(2, 2, 0))[0]
	input := append([]byte(nil), data...)

	r := NewReassembler(0)
	frames, err := r.Feed(input)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	input[5] ^= 0xff
	assert.Equal(t, data, frames[0])
}

func TestReassemblyOversized(t *testing.T) {
	r := NewReassembler(1024)
	hdr := binary.LittleEndian.AppendUint32(nil, 1025)

	frames, err := r.Feed(hdr)
	assert.ErrorIs(t, err, ErrOversizedFrame)
	assert.Empty(t, frames)

	_, err = r.Feed(make([]byte, 100))
	assert.ErrorIs(t, err, ErrOversizedFrame, "framing errors are sticky")
	assert.ErrorIs(t, r.Err(), ErrOversizedFrame)
}

func TestReassemblyUndersized(t *testing.T) {
	good := encodeFrames(t, sampleFrame(2, 2, 0))[0]
	bad := binary.LittleEndian.AppendUint32(nil, 8)

	r := NewReassembler(0)
	frames, err := r.Feed(append(append([]byte(nil), good...), bad...))
	assert.ErrorIs(t, err, ErrCorruptFrame)
	require.Len(t, frames, 1, "frames completed before the error are returned")
	assert.Equal(t, good, frames[0])
}

func TestReceiveStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "accumulating", StateAccumulating.String())
	assert.Equal(t, "frame-ready", StateFrameReady.String())
}
