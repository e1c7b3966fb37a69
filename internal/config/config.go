// Package config loads runtime configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"

	"github.com/junsooki/telecom3d/internal/codec"
)

// ErrInvalidConfig reports a value outside its allowed set or range.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all runtime configuration. Zero values are replaced by
// defaults after loading.
type Config struct {
	Network struct {
		Listen             string `toml:"listen"`
		Peer               string `toml:"peer"`
		Transport          string `toml:"transport"`
		WSPath             string `toml:"ws-path"`
		HandshakeTimeoutMs int    `toml:"handshake-timeout-ms"`
	} `toml:"network"`
	Codec struct {
		Compression   string  `toml:"compression"`
		Level         int     `toml:"level"`
		DeltaDepth    int     `toml:"delta-depth"`
		FixedRange    bool    `toml:"fixed-range"`
		GeometryRange float64 `toml:"geometry-range"`
		TextureRange  float64 `toml:"texture-range"`
		MaxPoints     int     `toml:"max-points"`
	} `toml:"codec"`
	Framer struct {
		MaxFrameSize int `toml:"max-frame-size"`
		Decimation   int `toml:"decimation"`
		ReadBuffer   int `toml:"read-buffer"`
	} `toml:"framer"`
	Capture struct {
		Source   string `toml:"source"`
		DumpPath string `toml:"dump-path"`
		Loop     bool   `toml:"loop"`
		Width    int    `toml:"width"`
		Height   int    `toml:"height"`
		FPS      int    `toml:"fps"`
		Eyes     string `toml:"eyes"`
		Seed     int64  `toml:"seed"`
	} `toml:"capture"`
	Display struct {
		Mode     string `toml:"mode"`
		Width    int    `toml:"width"`
		Height   int    `toml:"height"`
		Snapshot string `toml:"snapshot"`
	} `toml:"display"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// Accepted enumeration values.
const (
	SourceSynthetic = "synthetic"
	SourceDump      = "dump"

	EyesOrbit = "orbit"
	EyesNone  = "none"

	DisplayHeadless = "headless"
	DisplayWindow   = "window"
	DisplayNone     = "none"

	FormatText = "text"
	FormatJSON = "json"
)

// Unthrottled is the capture.fps value that captures as fast as the source
// delivers. A zero fps is unset and gets the default rate.
const Unthrottled = -1

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	c.setDefaults()
	return &c
}

// Load reads and validates file. An empty name yields Default.
func Load(file string) (*Config, error) {
	if file == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes TOML data, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Network.Listen == "" {
		c.Network.Listen = ":7000"
	}
	if c.Network.Peer == "" {
		c.Network.Peer = "127.0.0.1:7000"
	}
	if c.Network.Transport == "" {
		c.Network.Transport = "tcp"
	}
	if c.Network.WSPath == "" {
		c.Network.WSPath = "/stream"
	}
	if c.Network.HandshakeTimeoutMs == 0 {
		c.Network.HandshakeTimeoutMs = 5000
	}
	if c.Codec.Compression == "" {
		c.Codec.Compression = "zlib"
	}
	if c.Codec.GeometryRange == 0 {
		c.Codec.GeometryRange = 50
	}
	if c.Codec.TextureRange == 0 {
		c.Codec.TextureRange = 2
	}
	if c.Codec.MaxPoints == 0 {
		c.Codec.MaxPoints = 1 << 24
	}
	if c.Framer.MaxFrameSize == 0 {
		c.Framer.MaxFrameSize = 50 << 20
	}
	if c.Framer.Decimation == 0 {
		c.Framer.Decimation = 1
	}
	if c.Framer.ReadBuffer == 0 {
		c.Framer.ReadBuffer = 64 << 10
	}
	if c.Capture.Source == "" {
		c.Capture.Source = SourceSynthetic
	}
	if c.Capture.Width == 0 {
		c.Capture.Width = 160
	}
	if c.Capture.Height == 0 {
		c.Capture.Height = 120
	}
	if c.Capture.FPS == 0 {
		c.Capture.FPS = 30
	}
	if c.Capture.Eyes == "" {
		c.Capture.Eyes = EyesOrbit
	}
	if c.Capture.Seed == 0 {
		c.Capture.Seed = 1
	}
	if c.Display.Mode == "" {
		c.Display.Mode = DisplayHeadless
	}
	if c.Display.Width == 0 {
		c.Display.Width = 640
	}
	if c.Display.Height == 0 {
		c.Display.Height = 480
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = FormatText
	}
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q, want one of %q", ErrInvalidConfig, field, v, allowed)
}

func positive(field string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, field, v)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []error{
		oneOf("network.transport", c.Network.Transport, "tcp", "ws"),
		positive("network.handshake-timeout-ms", c.Network.HandshakeTimeoutMs),
		oneOf("codec.compression", c.Codec.Compression, "zlib", "zstd"),
		positive("codec.max-points", c.Codec.MaxPoints),
		positive("framer.max-frame-size", c.Framer.MaxFrameSize),
		positive("framer.decimation", c.Framer.Decimation),
		positive("framer.read-buffer", c.Framer.ReadBuffer),
		oneOf("capture.source", c.Capture.Source, SourceSynthetic, SourceDump),
		oneOf("capture.eyes", c.Capture.Eyes, EyesOrbit, EyesNone),
		positive("capture.width", c.Capture.Width),
		positive("capture.height", c.Capture.Height),
		oneOf("display.mode", c.Display.Mode, DisplayHeadless, DisplayWindow, DisplayNone),
		positive("display.width", c.Display.Width),
		positive("display.height", c.Display.Height),
		oneOf("log.format", c.Log.Format, FormatText, FormatJSON),
	}
	if err := errors.Join(checks...); err != nil {
		return err
	}

	if c.Codec.DeltaDepth < 0 || c.Codec.DeltaDepth > 2 {
		return fmt.Errorf("%w: codec.delta-depth %d not in [0,2]", ErrInvalidConfig, c.Codec.DeltaDepth)
	}
	if c.Codec.Level < 0 {
		return fmt.Errorf("%w: codec.level %d", ErrInvalidConfig, c.Codec.Level)
	}
	if c.Codec.GeometryRange < 0 || c.Codec.TextureRange < 0 {
		return fmt.Errorf("%w: codec ranges must be positive", ErrInvalidConfig)
	}
	if uint64(c.Codec.MaxPoints) > math.MaxUint32 {
		return fmt.Errorf("%w: codec.max-points %d", ErrInvalidConfig, c.Codec.MaxPoints)
	}
	if uint64(c.Capture.Width)*uint64(c.Capture.Height) > uint64(c.Codec.MaxPoints) {
		return fmt.Errorf("%w: capture %dx%d exceeds codec.max-points", ErrInvalidConfig, c.Capture.Width, c.Capture.Height)
	}
	if c.Capture.FPS < Unthrottled || c.Capture.FPS > 120 {
		return fmt.Errorf("%w: capture.fps %d not in [%d,120]", ErrInvalidConfig, c.Capture.FPS, Unthrottled)
	}
	if c.Framer.MaxFrameSize < codec.MinFrameSize {
		return fmt.Errorf("%w: framer.max-frame-size %d below the smallest frame (%d bytes)",
			ErrInvalidConfig, c.Framer.MaxFrameSize, codec.MinFrameSize)
	}
	if c.Capture.Source == SourceDump && c.Capture.DumpPath == "" {
		return fmt.Errorf("%w: capture.dump-path required for dump source", ErrInvalidConfig)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// CaptureRate returns the capture rate in frames per second, 0 when
// unthrottled.
func (c *Config) CaptureRate() int {
	return max(c.Capture.FPS, 0)
}

// HandshakeTimeout returns the handshake deadline as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Network.HandshakeTimeoutMs) * time.Millisecond
}

// SetupLogging configures the standard logrus logger.
func SetupLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalidConfig, err)
	}
	logrus.SetLevel(lvl)
	switch format {
	case FormatJSON:
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	case FormatText, "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, format)
	}
	return nil
}
