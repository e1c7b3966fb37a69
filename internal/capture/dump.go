package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/junsooki/telecom3d/internal/frame"
)

// A dump holds uncompressed frames back to back, all little-endian:
//
//	u32 length  // of this record, including the header
//	u32 height
//	u32 width
//	u32 n_points
//	u8[3n] rgb; f32[3n] vertices; f32[2n] texture coordinates
const dumpHeaderSize = 16

// WriteDump appends f to w in the dump layout.
func WriteDump(w io.Writer, f *frame.RawFrame) error {
	if err := f.Validate(); err != nil {
		return err
	}
	size := uint64(f.RawSize())
	if size > 1<<32-1 {
		return fmt.Errorf("%w: frame of %d bytes does not fit a dump record", frame.ErrInvalidFrame, size)
	}
	hdr := [4]uint32{uint32(size), f.Height, f.Width, f.NPoints}
	for _, v := range []any{hdr, f.RGB, f.Vertices, f.TexCoords} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write dump: %w", err)
		}
	}
	return nil
}

// ReadDump reads the next frame from r. It returns io.EOF when r ends
// cleanly between records and ErrInvalidDump for anything malformed.
func ReadDump(r io.Reader, maxPoints uint32) (*frame.RawFrame, error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidDump, err)
	}
	size, height, width, n := hdr[0], hdr[1], hdr[2], hdr[3]
	if height == 0 || width == 0 || uint64(n) != uint64(height)*uint64(width) {
		return nil, fmt.Errorf("%w: dimensions %dx%d with %d points", ErrInvalidDump, width, height, n)
	}
	if maxPoints > 0 && n > maxPoints {
		return nil, fmt.Errorf("%w: %d points exceeds limit %d", ErrInvalidDump, n, maxPoints)
	}
	if want := dumpHeaderSize + uint64(n)*23; uint64(size) != want {
		return nil, fmt.Errorf("%w: record length %d, want %d", ErrInvalidDump, size, want)
	}

	f := frame.New(height, width)
	for _, v := range []any{f.RGB, f.Vertices, f.TexCoords} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrInvalidDump, err)
		}
	}
	f.Timestamp = time.Now()
	return f, nil
}

// DumpSource replays a dump file as a Source.
type DumpSource struct {
	path      string
	loop      bool
	maxPoints uint32

	file *os.File
	r    *bufio.Reader
	read int
}

// OpenDump opens path for replay. With loop set the file restarts at its
// end; otherwise Next returns ErrSourceExhausted.
func OpenDump(path string, loop bool, maxPoints uint32) (*DumpSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	return &DumpSource{
		path:      path,
		loop:      loop,
		maxPoints: maxPoints,
		file:      file,
		r:         bufio.NewReaderSize(file, 1<<20),
	}, nil
}

// Next returns the next frame of the dump.
func (s *DumpSource) Next(ctx context.Context) (*frame.RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := ReadDump(s.r, s.maxPoints)
	if errors.Is(err, io.EOF) {
		if !s.loop {
			return nil, ErrSourceExhausted
		}
		if s.read == 0 {
			return nil, fmt.Errorf("%w: %s holds no frames", ErrInvalidDump, s.path)
		}
		logrus.WithFields(logrus.Fields{
			"function": "Next",
			"path":     s.path,
			"frames":   s.read,
		}).Debug("dump rewound")
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind dump: %w", err)
		}
		s.r.Reset(s.file)
		s.read = 0
		f, err = ReadDump(s.r, s.maxPoints)
	}
	if err != nil {
		return nil, err
	}
	s.read++
	return f, nil
}

// Close closes the underlying file.
func (s *DumpSource) Close() error {
	return s.file.Close()
}

// Record writes count frames from src to path, replacing the file.
func Record(ctx context.Context, src Source, path string, count int) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create dump: %w", err)
	}
	w := bufio.NewWriterSize(file, 1<<20)
	written := 0
	for ; written < count; written++ {
		f, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrSourceExhausted) {
				break
			}
			file.Close()
			return written, err
		}
		if err := WriteDump(w, f); err != nil {
			file.Close()
			return written, err
		}
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return written, fmt.Errorf("flush dump: %w", err)
	}
	return written, file.Close()
}
