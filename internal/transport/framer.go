package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/telecom3d/internal/codec"
	"github.com/junsooki/telecom3d/internal/frame"
	"github.com/junsooki/telecom3d/internal/pipe"
)

// DefaultReadBufferSize is the scratch buffer used by the receive loop.
const DefaultReadBufferSize = 64 << 10

// Config tunes a Framer.
type Config struct {
	// MaxFrameSize bounds frames in both directions.
	MaxFrameSize int
	// Decimation sends every Nth upstream frame. 0 and 1 send all frames.
	Decimation int
	// ReadBufferSize is the size of each read from the connection.
	ReadBufferSize int
	// StreamID tags log entries.
	StreamID string
}

func (c *Config) setDefaults() {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = DefaultMaxFrameSize
	}
	if c.Decimation < 1 {
		c.Decimation = 1
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
}

// Counters are running totals of a Framer.
type Counters struct {
	FramesSent     uint64
	FramesReceived uint64
	FramesDropped  uint64
	BytesSent      uint64
	BytesReceived  uint64
}

// Framer moves frames between pipeline channels and a byte stream. The send
// side pops frames from a source channel, encodes and writes them. The
// receive side reassembles, decodes and pushes them downstream. Either side
// may be left unset.
type Framer struct {
	conn  io.ReadWriteCloser
	cfg   Config
	reasm *Reassembler

	enc codec.Encoder
	in  *pipe.Consumer[*frame.RawFrame]

	dec codec.Decoder
	out *pipe.Producer[*frame.RawFrame]

	sent, received, dropped atomic.Uint64
	bytesSent, bytesRecv    atomic.Uint64
}

// NewFramer creates a Framer over conn. Run takes ownership of conn and
// closes it on return.
func NewFramer(conn io.ReadWriteCloser, cfg Config) *Framer {
	cfg.setDefaults()
	return &Framer{
		conn:  conn,
		cfg:   cfg,
		reasm: NewReassembler(cfg.MaxFrameSize),
	}
}

// SetSource enables the send loop: frames consumed from in are encoded
// with enc and written to the connection.
func (f *Framer) SetSource(enc codec.Encoder, in *pipe.Consumer[*frame.RawFrame]) {
	f.enc, f.in = enc, in
}

// SetSink enables the receive loop: frames read from the connection are
// decoded with dec and pushed to out.
func (f *Framer) SetSink(dec codec.Decoder, out *pipe.Producer[*frame.RawFrame]) {
	f.dec, f.out = dec, out
}

// Counters returns a snapshot of the running totals.
func (f *Framer) Counters() Counters {
	return Counters{
		FramesSent:     f.sent.Load(),
		FramesReceived: f.received.Load(),
		FramesDropped:  f.dropped.Load(),
		BytesSent:      f.bytesSent.Load(),
		BytesReceived:  f.bytesRecv.Load(),
	}
}

// SendFrame writes one encoded frame. It is only safe to call from one
// goroutine at a time, and not while the send loop is running.
func (f *Framer) SendFrame(data []byte) error {
	if len(data) > f.cfg.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrOversizedFrame, len(data), f.cfg.MaxFrameSize)
	}
	n, err := writeFull(f.conn, data)
	f.bytesSent.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Run drives the configured loops until ctx is cancelled or one of them
// fails. The first error stops both loops and closes the connection.
// Cancellation of ctx is not reported as an error.
func (f *Framer) Run(ctx context.Context) error {
	if f.in == nil && f.out == nil {
		return errors.New("framer has neither source nor sink")
	}
	log := logrus.WithFields(logrus.Fields{
		"function": "Run",
		"stream":   f.cfg.StreamID,
	})
	log.WithFields(logrus.Fields{
		"send":       f.in != nil,
		"receive":    f.out != nil,
		"decimation": f.cfg.Decimation,
		"max_frame":  humanize.IBytes(uint64(f.cfg.MaxFrameSize)),
	}).Info("framer started")

	g, gctx := errgroup.WithContext(ctx)
	if f.out != nil {
		g.Go(func() error { return f.receiveLoop(gctx) })
	}
	if f.in != nil {
		g.Go(func() error { return f.sendLoop(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		if err := f.conn.Close(); err != nil {
			log.WithError(err).Debug("close connection")
		}
		return nil
	})

	err := g.Wait()
	c := f.Counters()
	entry := log.WithFields(logrus.Fields{
		"sent":     c.FramesSent,
		"received": c.FramesReceived,
		"dropped":  c.FramesDropped,
		"tx":       humanize.IBytes(c.BytesSent),
		"rx":       humanize.IBytes(c.BytesReceived),
	})
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		entry.Info("framer stopped")
		return nil
	}
	entry.WithError(err).Error("framer failed")
	return err
}

func (f *Framer) receiveLoop(ctx context.Context) error {
	buf := make([]byte, f.cfg.ReadBufferSize)
	for {
		n, err := f.conn.Read(buf)
		if n > 0 {
			f.bytesRecv.Add(uint64(n))
			frames, ferr := f.reasm.Feed(buf[:n])
			for _, data := range frames {
				if derr := f.deliver(data); derr != nil {
					return derr
				}
			}
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrPeerClosed
			}
			return fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			return ErrPeerClosed
		}
	}
}

func (f *Framer) deliver(data []byte) error {
	fr, err := f.dec.Decode(data)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	f.out.Push(fr)
	seq := f.received.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "receiveLoop",
		"stream":   f.cfg.StreamID,
		"seq":      seq,
		"size":     humanize.IBytes(uint64(len(data))),
		"points":   fr.NPoints,
	}).Debug("frame received")
	return nil
}

type statsReporter interface {
	LastStats() codec.Stats
}

func (f *Framer) sendLoop(ctx context.Context) error {
	decimation := uint64(f.cfg.Decimation)
	var seq uint64
	for {
		fr, err := f.in.Wait(ctx)
		if err != nil {
			return err
		}
		seq++
		if (seq-1)%decimation != 0 {
			f.dropped.Add(1)
			continue
		}

		data, err := f.enc.Encode(fr)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", seq, err)
		}
		if err := f.SendFrame(data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		f.sent.Add(1)

		if sr, ok := f.enc.(statsReporter); ok && logrus.IsLevelEnabled(logrus.DebugLevel) {
			st := sr.LastStats()
			logrus.WithFields(logrus.Fields{
				"function": "sendLoop",
				"stream":   f.cfg.StreamID,
				"seq":      seq,
				"raw":      humanize.IBytes(uint64(st.RawBytes)),
				"encoded":  humanize.IBytes(uint64(st.EncodedBytes)),
				"ratio":    fmt.Sprintf("%.2f", st.Ratio()),
				"orders":   st.Orders,
			}).Debug("frame sent")
		}
	}
}
