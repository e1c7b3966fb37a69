package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Compressor is a lossless byte compressor applied to each plane.
type Compressor interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	// Decompress inflates src, which must expand to exactly size bytes.
	Decompress(src []byte, size int) ([]byte, error)
}

// Compression names accepted by NewCompressor.
const (
	CompressionZlib = "zlib"
	CompressionZstd = "zstd"
)

// NewCompressor builds the named compressor. A level of 0 selects the
// strongest setting. maxPlaneBytes bounds decoder memory.
func NewCompressor(name string, level int, maxPlaneBytes int) (Compressor, error) {
	switch name {
	case CompressionZlib, "":
		return NewZlibCompressor(level), nil
	case CompressionZstd:
		return NewZstdCompressor(level, maxPlaneBytes)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

// ZlibCompressor is DEFLATE in a zlib container.
type ZlibCompressor struct {
	level int
}

// NewZlibCompressor creates a zlib compressor. Levels outside 1..9 select
// zlib.BestCompression.
func NewZlibCompressor(level int) *ZlibCompressor {
	if level < zlib.BestSpeed || level > zlib.BestCompression {
		level = zlib.BestCompression
	}
	return &ZlibCompressor{level: level}
}

func (c *ZlibCompressor) Name() string { return CompressionZlib }

func (c *ZlibCompressor) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(src)/2 + 64)
	w, err := zlib.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *ZlibCompressor) Decompress(src []byte, size int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("%w: zlib header: %v", ErrCorruptFrame, err)
	}
	defer r.Close()

	// The buffer grows with the inflated stream, not the claimed size.
	// Reading one byte past size rejects oversized payloads, and reaching
	// EOF verifies the checksum.
	out, err := io.ReadAll(io.LimitReader(r, int64(size)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: inflate: %v", ErrCorruptFrame, err)
	}
	if len(out) > size {
		return nil, fmt.Errorf("%w: plane larger than %d bytes", ErrCorruptFrame, size)
	}
	if len(out) < size {
		return nil, fmt.Errorf("%w: plane of %d bytes, want %d", ErrCorruptFrame, len(out), size)
	}
	return out, nil
}

// ZstdCompressor uses Zstandard frames. EncodeAll and DecodeAll are safe
// for concurrent use, so one instance may serve an encoder and a decoder.
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdCompressor creates a zstd compressor. level follows the zstd
// command-line scale; 0 selects the best compression level.
func NewZstdCompressor(level int, maxPlaneBytes int) (*ZstdCompressor, error) {
	encLevel := zstd.SpeedBestCompression
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, err
	}
	if maxPlaneBytes <= 0 {
		maxPlaneBytes = 2 * DefaultMaxPoints
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(uint64(maxPlaneBytes)),
	)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (c *ZstdCompressor) Name() string { return CompressionZstd }

func (c *ZstdCompressor) Compress(src []byte) ([]byte, error) {
	return c.enc.EncodeAll(src, make([]byte, 0, len(src)/2+64)), nil
}

func (c *ZstdCompressor) Decompress(src []byte, size int) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %v", ErrCorruptFrame, err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: plane is %d bytes, want %d", ErrCorruptFrame, len(out), size)
	}
	return out, nil
}

// Close releases the zstd encoder and decoder.
func (c *ZstdCompressor) Close() {
	c.enc.Close()
	c.dec.Close()
}
