package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/telecom3d/internal/frame"
	"github.com/junsooki/telecom3d/internal/pipe"
)

var ignoreTimestamp = cmpopts.IgnoreFields(frame.RawFrame{}, "Timestamp")

func TestSyntheticSource(t *testing.T) {
	src := NewSyntheticSource(32, 24, 1)
	ctx := context.Background()

	first, err := src.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Validate())
	assert.Equal(t, uint32(32), first.Width)
	assert.Equal(t, uint32(24), first.Height)

	second, err := src.Next(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Vertices, second.Vertices, "the scene moves")

	var near, far int
	for _, v := range first.Vertices {
		switch {
		case v.Z == 0:
		case v.Z < 1.5:
			near++
		default:
			far++
		}
	}
	assert.Positive(t, near)
	assert.Positive(t, far)

	again, err := NewSyntheticSource(32, 24, 1).Next(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, again, ignoreTimestamp); diff != "" {
		t.Fatalf("same seed differs:\n%s", diff)
	}
}

func TestSyntheticSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSyntheticSource(4, 4, 1).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrbitTracker(t *testing.T) {
	tr := NewOrbitTracker()
	f := frame.New(2, 2)

	a, ok := tr.Track(f)
	require.True(t, ok)
	b, ok := tr.Track(f)
	require.True(t, ok)
	assert.NotEqual(t, a, b)

	for _, p := range []frame.EyesPosition{a, b} {
		for _, c := range []float64{p.LeftX, p.LeftY, p.RightX, p.RightY} {
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
		}
		assert.Less(t, p.LeftX, p.RightX)
	}

	_, ok = tr.Track(nil)
	assert.False(t, ok)
}

func TestDumpRoundTrip(t *testing.T) {
	src := NewSyntheticSource(7, 5, 3)
	var want []*frame.RawFrame
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		f, err := src.Next(context.Background())
		require.NoError(t, err)
		require.NoError(t, WriteDump(&buf, f))
		want = append(want, f)
	}
	assert.Equal(t, 3*want[0].RawSize(), buf.Len())
	assert.Equal(t, uint32(want[0].RawSize()), binary.LittleEndian.Uint32(buf.Bytes()))

	for i := range want {
		got, err := ReadDump(&buf, 0)
		require.NoError(t, err)
		if diff := cmp.Diff(want[i], got, ignoreTimestamp); diff != "" {
			t.Fatalf("frame %d differs:\n%s", i, diff)
		}
	}
	_, err := ReadDump(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadDumpInvalid(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, WriteDump(&good, frame.New(2, 3)))
	data := good.Bytes()

	patch := func(off int, v uint32) []byte {
		b := append([]byte(nil), data...)
		binary.LittleEndian.PutUint32(b[off:], v)
		return b
	}
	tests := []struct {
		name      string
		data      []byte
		maxPoints uint32
	}{
		{"truncated header", data[:9], 0},
		{"truncated body", data[:len(data)-1], 0},
		{"wrong length", patch(0, 17), 0},
		{"zero height", patch(4, 0), 0},
		{"point count", patch(12, 7), 0},
		{"too many points", data, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDump(bytes.NewReader(tt.data), tt.maxPoints)
			assert.ErrorIs(t, err, ErrInvalidDump)
		})
	}

	assert.ErrorIs(t, WriteDump(io.Discard, &frame.RawFrame{}), frame.ErrInvalidFrame)
}

func TestDumpSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.dump")
	n, err := Record(context.Background(), NewSyntheticSource(4, 3, 9), path, 2)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ctx := context.Background()
	once, err := OpenDump(path, false, 0)
	require.NoError(t, err)
	defer once.Close()
	for i := 0; i < 2; i++ {
		_, err := once.Next(ctx)
		require.NoError(t, err)
	}
	_, err = once.Next(ctx)
	assert.ErrorIs(t, err, ErrSourceExhausted)

	looping, err := OpenDump(path, true, 0)
	require.NoError(t, err)
	defer looping.Close()
	first, err := looping.Next(ctx)
	require.NoError(t, err)
	_, err = looping.Next(ctx)
	require.NoError(t, err)
	third, err := looping.Next(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(first, third, ignoreTimestamp); diff != "" {
		t.Fatalf("loop did not restart:\n%s", diff)
	}
}

func TestDumpSourceEmptyLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.dump")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	src, err := OpenDump(path, true, 0)
	require.NoError(t, err)
	defer src.Close()
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrInvalidDump)
}

type failingSource struct{ err error }

func (s failingSource) Next(context.Context) (*frame.RawFrame, error) { return nil, s.err }

func TestStageRun(t *testing.T) {
	frames := pipe.NewChannel[*frame.RawFrame]()
	prod, err := frames.Producer()
	require.NoError(t, err)
	cons, err := frames.Consumer()
	require.NoError(t, err)
	eyes := pipe.NewStateCell[frame.EyesPosition]()
	w, err := eyes.Writer()
	require.NoError(t, err)
	r, err := eyes.Reader()
	require.NoError(t, err)

	stage, err := NewStage(NewSyntheticSource(8, 8, 1), NewOrbitTracker(), 0)
	require.NoError(t, err)
	stage.Limit = 5
	require.NoError(t, stage.Run(context.Background(), prod, w))

	assert.Equal(t, 5, frames.Len())
	f, err := cons.Pop()
	require.NoError(t, err)
	assert.NoError(t, f.Validate())
	assert.Equal(t, uint64(5), r.Version())
	assert.False(t, r.Get().IsZero())
}

func TestStageRunStops(t *testing.T) {
	prod, err := pipe.NewChannel[*frame.RawFrame]().Producer()
	require.NoError(t, err)

	exhausted, err := NewStage(failingSource{ErrSourceExhausted}, nil, 0)
	require.NoError(t, err)
	assert.NoError(t, exhausted.Run(context.Background(), prod, nil))

	boom := errors.New("device lost")
	failing, err := NewStage(failingSource{boom}, nil, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, failing.Run(context.Background(), prod, nil), boom)

	ticking, err := NewStage(NewSyntheticSource(2, 2, 1), nil, 30)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, ticking.Run(ctx, prod, nil))

	_, err = NewStage(NewSyntheticSource(2, 2, 1), nil, MaxFPS+1)
	assert.Error(t, err)
}
