// Package peer assembles a streaming session around one connection: the
// capture stage, the codec pair, the framer and the render feed.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/telecom3d/internal/capture"
	"github.com/junsooki/telecom3d/internal/codec"
	"github.com/junsooki/telecom3d/internal/config"
	"github.com/junsooki/telecom3d/internal/display"
	"github.com/junsooki/telecom3d/internal/frame"
	"github.com/junsooki/telecom3d/internal/pipe"
	"github.com/junsooki/telecom3d/internal/transport"
)

// ErrNothingToDo is returned when both directions of a session are disabled.
var ErrNothingToDo = errors.New("session neither captures nor renders")

// Options select what a session does locally.
type Options struct {
	// NoCapture disables the capture stage and the send direction.
	NoCapture bool
	// NoRender disables the receive direction. Debug sessions still decode
	// and discard what they send.
	NoRender bool

	// Source and Tracker override the ones built from config.
	Source  capture.Source
	Tracker capture.EyeTracker
	// Limit stops capture after this many frames. 0 means no limit.
	Limit int
}

// Session is one end of a frame stream. Build it with NewSession, Accept
// (Host), Connect (Controller) or Debug, then call Run and render Feed.
type Session struct {
	local, peer transport.Hello

	framer *transport.Framer
	stage  *capture.Stage
	feed   display.Feed

	captured *pipe.Producer[*frame.RawFrame]
	eyes     *pipe.Writer[frame.EyesPosition]
	sending  *pipe.Consumer[*frame.RawFrame]
	received *pipe.Producer[*frame.RawFrame]
	// drain discards decoded frames nobody renders.
	drain *pipe.Consumer[*frame.RawFrame]

	closers []func() error
}

// NewSession wires a session over conn, which the session owns from here
// on. local and peer are the Hellos exchanged during the handshake.
func NewSession(cfg *config.Config, conn io.ReadWriteCloser, local, peer transport.Hello, opts Options) (*Session, error) {
	if opts.NoCapture && opts.NoRender {
		conn.Close()
		return nil, ErrNothingToDo
	}
	s := &Session{local: local, peer: peer}
	s.closers = append(s.closers, conn.Close)
	if err := s.setup(cfg, conn, opts); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) setup(cfg *config.Config, conn io.ReadWriteCloser, opts Options) error {
	s.framer = transport.NewFramer(conn, transport.Config{
		MaxFrameSize:   cfg.Framer.MaxFrameSize,
		Decimation:     cfg.Framer.Decimation,
		ReadBufferSize: cfg.Framer.ReadBuffer,
		StreamID:       s.local.StreamID.String(),
	})

	var err error
	eyesCell := pipe.NewStateCell[frame.EyesPosition]()
	if s.eyes, err = eyesCell.Writer(); err != nil {
		return err
	}
	if s.feed.Eyes, err = eyesCell.Reader(); err != nil {
		return err
	}

	if !opts.NoCapture {
		if err := s.setupCapture(cfg, opts); err != nil {
			return err
		}
	}
	if !opts.NoRender {
		if err := s.setupReceive(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) setupCapture(cfg *config.Config, opts Options) error {
	src := opts.Source
	if src == nil {
		built, closer, err := NewSource(cfg)
		if err != nil {
			return err
		}
		if closer != nil {
			s.closers = append(s.closers, closer.Close)
		}
		src = built
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = NewTracker(cfg)
	}
	stage, err := capture.NewStage(src, tracker, cfg.CaptureRate())
	if err != nil {
		return err
	}
	stage.Limit = opts.Limit
	s.stage = stage

	outgoing := pipe.NewChannel[*frame.RawFrame]()
	if s.captured, err = outgoing.Producer(); err != nil {
		return err
	}
	if s.sending, err = outgoing.Consumer(); err != nil {
		return err
	}

	comp, err := NewCompressor(cfg)
	if err != nil {
		return err
	}
	s.closeCompressor(comp)
	enc, err := codec.NewEncoder(CodecOptions(cfg, comp)...)
	if err != nil {
		return err
	}
	s.framer.SetSource(enc, s.sending)
	return nil
}

func (s *Session) setupReceive(cfg *config.Config) error {
	incoming := pipe.NewChannel[*frame.RawFrame]()
	var err error
	if s.received, err = incoming.Producer(); err != nil {
		return err
	}
	if s.feed.Frames, err = incoming.Consumer(); err != nil {
		return err
	}

	comp, err := NewCompressor(cfg)
	if err != nil {
		return err
	}
	s.closeCompressor(comp)
	dec, err := codec.NewDecoder(CodecOptions(cfg, comp)...)
	if err != nil {
		return err
	}
	s.framer.SetSink(dec, s.received)
	return nil
}

func (s *Session) closeCompressor(c codec.Compressor) {
	if closer, ok := c.(interface{ Close() }); ok {
		s.closers = append(s.closers, func() error {
			closer.Close()
			return nil
		})
	}
}

// Feed returns the render side of the session. Feed.Frames is nil when
// rendering is disabled.
func (s *Session) Feed() display.Feed { return s.feed }

// Local returns the Hello this end sent.
func (s *Session) Local() transport.Hello { return s.local }

// Peer returns the Hello received from the other end.
func (s *Session) Peer() transport.Hello { return s.peer }

// Counters returns the framer totals.
func (s *Session) Counters() transport.Counters { return s.framer.Counters() }

// Run drives capture and the framer until ctx is done or a stage fails.
// The render stage is left to the caller so a window can own the main
// goroutine.
func (s *Session) Run(ctx context.Context) error {
	log := logrus.WithFields(logrus.Fields{
		"function": "Run",
		"stream":   s.local.StreamID,
		"peer":     s.peer.StreamID,
		"role":     s.local.Role,
	})
	log.Info("session started")

	g, gctx := errgroup.WithContext(ctx)
	if s.stage != nil {
		g.Go(func() error {
			if err := s.stage.Run(gctx, s.captured, s.eyes); err != nil {
				return fmt.Errorf("capture stage: %w", err)
			}
			return nil
		})
	}
	if s.drain != nil {
		g.Go(func() error {
			for {
				if _, err := s.drain.Wait(gctx); err != nil {
					return nil
				}
			}
		})
	}
	g.Go(func() error {
		if err := s.framer.Run(gctx); err != nil {
			return fmt.Errorf("framer: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		log.WithError(err).Error("session failed")
		return err
	}
	log.Info("session stopped")
	return nil
}

// Close releases the pipeline handles and the connection. It is safe to
// call after Run returns.
func (s *Session) Close() error {
	s.captured.Release()
	s.eyes.Release()
	s.sending.Release()
	s.received.Release()
	s.feed.Frames.Release()
	s.drain.Release()
	s.feed.Eyes.Release()

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewSource builds the capture source named by config. The returned closer
// is nil for sources without resources.
func NewSource(cfg *config.Config) (capture.Source, io.Closer, error) {
	switch cfg.Capture.Source {
	case config.SourceDump:
		src, err := capture.OpenDump(cfg.Capture.DumpPath, cfg.Capture.Loop, uint32(cfg.Codec.MaxPoints))
		if err != nil {
			return nil, nil, err
		}
		return src, src, nil
	default:
		src := capture.NewSyntheticSource(uint32(cfg.Capture.Width), uint32(cfg.Capture.Height), cfg.Capture.Seed)
		if fps := cfg.CaptureRate(); fps > 0 {
			src.FrameRate = float64(fps)
		}
		return src, nil, nil
	}
}

// NewTracker builds the eye tracker named by config, or nil.
func NewTracker(cfg *config.Config) capture.EyeTracker {
	if cfg.Capture.Eyes == config.EyesNone {
		return nil
	}
	return capture.NewOrbitTracker()
}

// NewCompressor builds the plane compressor named by config.
func NewCompressor(cfg *config.Config) (codec.Compressor, error) {
	return codec.NewCompressor(cfg.Codec.Compression, cfg.Codec.Level, 2*cfg.Codec.MaxPoints)
}

// CodecOptions translates the codec section into encoder and decoder
// options using comp.
func CodecOptions(cfg *config.Config, comp codec.Compressor) []codec.Option {
	opts := []codec.Option{
		codec.WithCompressor(comp),
		codec.WithDeltaDepth(cfg.Codec.DeltaDepth),
		codec.WithMaxPoints(uint32(cfg.Codec.MaxPoints)),
	}
	if cfg.Codec.FixedRange {
		opts = append(opts, codec.WithFixedRange(
			codec.Symmetric(float32(cfg.Codec.GeometryRange)),
			codec.Symmetric(float32(cfg.Codec.TextureRange)),
		))
	}
	return opts
}

// handshake exchanges Hellos on conn within the configured timeout.
func handshake(ctx context.Context, cfg *config.Config, conn io.ReadWriter, role transport.Role) (local, peer transport.Hello, err error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout())
	defer cancel()
	local = transport.NewHello(role, cfg.Codec.Compression)
	peer, err = transport.Handshake(ctx, conn, local)
	return local, peer, err
}

// Debug builds a session over an in-process loopback: frames are captured,
// encoded, framed, decoded and rendered locally. The loopback has no buffer,
// so the decoder always runs; with NoRender its frames are discarded.
func Debug(ctx context.Context, cfg *config.Config, opts Options) (*Session, error) {
	if opts.NoCapture && opts.NoRender {
		return nil, ErrNothingToDo
	}
	conn := transport.Loopback()
	local, peer, err := handshake(ctx, cfg, conn, transport.RoleDebug)
	if err != nil {
		conn.Close()
		return nil, err
	}
	discard := opts.NoRender
	opts.NoRender = false
	s, err := NewSession(cfg, conn, local, peer, opts)
	if err != nil {
		return nil, err
	}
	if discard {
		s.drain, s.feed.Frames = s.feed.Frames, nil
	}
	return s, nil
}
