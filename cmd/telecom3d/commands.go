package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/telecom3d/internal/capture"
	"github.com/junsooki/telecom3d/internal/codec"
	"github.com/junsooki/telecom3d/internal/config"
	"github.com/junsooki/telecom3d/internal/display"
	"github.com/junsooki/telecom3d/internal/display/window"
	"github.com/junsooki/telecom3d/internal/peer"
)

// loadConfig reads the config file, applies command flag overrides and
// sets up logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	str := func(flag string, dst *string) {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	num := func(flag string, dst *int) {
		if c.IsSet(flag) {
			*dst = c.Int(flag)
		}
	}
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	str("listen", &cfg.Network.Listen)
	str("peer", &cfg.Network.Peer)
	str("transport", &cfg.Network.Transport)
	str("compression", &cfg.Codec.Compression)
	num("delta-depth", &cfg.Codec.DeltaDepth)
	num("decimation", &cfg.Framer.Decimation)
	str("source", &cfg.Capture.Source)
	str("dump", &cfg.Capture.DumpPath)
	num("fps", &cfg.Capture.FPS)
	num("width", &cfg.Capture.Width)
	num("height", &cfg.Capture.Height)
	str("display", &cfg.Display.Mode)
	str("snapshot", &cfg.Display.Snapshot)
	if c.IsSet("seed") {
		cfg.Capture.Seed = c.Int64("seed")
	}
	if c.IsSet("fixed-range") {
		cfg.Codec.FixedRange = c.Bool("fixed-range")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := config.SetupLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
}

func sessionOptions(c *cli.Context, cfg *config.Config) peer.Options {
	return peer.Options{
		NoCapture: c.Bool("no-capture"),
		NoRender:  cfg.Display.Mode == config.DisplayNone,
		Limit:     c.Int("frames"),
	}
}

func newRenderer(cfg *config.Config, feed display.Feed) display.Renderer {
	if feed.Frames == nil {
		return nil
	}
	switch cfg.Display.Mode {
	case config.DisplayWindow:
		return window.New(feed, cfg.Display.Width, cfg.Display.Height, display.DefaultCamera())
	case config.DisplayHeadless:
		h := display.NewHeadless(feed, cfg.Display.Width, cfg.Display.Height, display.DefaultCamera())
		h.Snapshot = cfg.Display.Snapshot
		return h
	}
	return nil
}

// runSession runs s with its renderer on the calling goroutine, which a
// window requires, until ctx is done or either side stops.
func runSession(ctx context.Context, cfg *config.Config, s *peer.Session) error {
	defer s.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(gctx) })

	var renderErr error
	if r := newRenderer(cfg, s.Feed()); r != nil {
		renderErr = r.Run(gctx)
		cancel()
	}
	err := g.Wait()

	counters := s.Counters()
	logrus.WithFields(logrus.Fields{
		"function": "runSession",
		"sent":     counters.FramesSent,
		"received": counters.FramesReceived,
		"dropped":  counters.FramesDropped,
		"tx":       humanize.IBytes(counters.BytesSent),
		"rx":       humanize.IBytes(counters.BytesReceived),
	}).Info("session summary")

	if renderErr != nil {
		return fmt.Errorf("render: %w", renderErr)
	}
	return err
}

func serverCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	host, err := peer.NewHost(cfg)
	if err != nil {
		return err
	}
	defer host.Close()

	s, err := host.Accept(ctx, sessionOptions(c, cfg))
	if err != nil {
		return err
	}
	return runSession(ctx, cfg, s)
}

func clientCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	s, err := peer.NewController(cfg).Connect(ctx, sessionOptions(c, cfg))
	if err != nil {
		return err
	}
	return runSession(ctx, cfg, s)
}

func debugCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	s, err := peer.Debug(ctx, cfg, sessionOptions(c, cfg))
	if err != nil {
		return err
	}
	return runSession(ctx, cfg, s)
}

func recordCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	src := capture.NewSyntheticSource(uint32(cfg.Capture.Width), uint32(cfg.Capture.Height), cfg.Capture.Seed)
	n, err := capture.Record(ctx, src, c.String("out"), c.Int("frames"))
	if err != nil {
		return err
	}
	info, err := os.Stat(c.String("out"))
	if err != nil {
		return err
	}
	fmt.Printf("recorded %d frames of %dx%d to %s (%s)\n",
		n, cfg.Capture.Width, cfg.Capture.Height, c.String("out"), humanize.IBytes(uint64(info.Size())))
	return nil
}

func inspectCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(c)
	defer stop()

	src, err := capture.OpenDump(c.String("in"), false, uint32(cfg.Codec.MaxPoints))
	if err != nil {
		return err
	}
	defer src.Close()

	encComp, err := peer.NewCompressor(cfg)
	if err != nil {
		return err
	}
	decComp, err := peer.NewCompressor(cfg)
	if err != nil {
		return err
	}
	for _, comp := range []codec.Compressor{encComp, decComp} {
		if z, ok := comp.(*codec.ZstdCompressor); ok {
			defer z.Close()
		}
	}
	enc, err := codec.NewEncoder(peer.CodecOptions(cfg, encComp)...)
	if err != nil {
		return err
	}
	dec, err := codec.NewDecoder(peer.CodecOptions(cfg, decComp)...)
	if err != nil {
		return err
	}

	var frames, rawTotal, encTotal int
	for {
		f, err := src.Next(ctx)
		if errors.Is(err, capture.ErrSourceExhausted) {
			break
		}
		if err != nil {
			return err
		}
		data, err := enc.Encode(f)
		if err != nil {
			return fmt.Errorf("encode frame %d: %w", frames, err)
		}
		if _, err := dec.Decode(data); err != nil {
			return fmt.Errorf("decode frame %d: %w", frames, err)
		}
		st := enc.LastStats()
		frames++
		rawTotal += st.RawBytes
		encTotal += st.EncodedBytes

		if c.Bool("verbose") {
			z := st.ParamsFor(codec.PlaneZ)
			fmt.Printf("frame %4d  %dx%d  %s -> %s  %.1fx  orders %v  z scale %.3g bias %.3g\n",
				frames, f.Width, f.Height,
				humanize.IBytes(uint64(st.RawBytes)), humanize.IBytes(uint64(st.EncodedBytes)),
				st.Ratio(), st.Orders, z.Scale, z.Bias)
		}
	}
	if frames == 0 {
		return fmt.Errorf("%s: no frames", c.String("in"))
	}

	ratio := float64(rawTotal) / float64(max(encTotal, 1))
	fmt.Printf("%s frames, %s raw, %s encoded, %.1fx, %s per frame (%s, delta depth %d)\n",
		humanize.Comma(int64(frames)),
		humanize.IBytes(uint64(rawTotal)), humanize.IBytes(uint64(encTotal)), ratio,
		humanize.IBytes(uint64(encTotal/frames)), cfg.Codec.Compression, cfg.Codec.DeltaDepth)
	return nil
}
