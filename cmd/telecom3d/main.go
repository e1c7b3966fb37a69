package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "telecom3d"
	app.Usage = "Stream RGB-D point clouds between two peers and render them with eye parallax."
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "the TOML config `FILE`, defaults apply when empty",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "the log level (trace, debug, info, warn, error)",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "the log format (text or json)",
		},
	}
	app.EnableBashCompletion = true
	app.Commands = []*cli.Command{
		{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Listen for one peer and stream frames both ways",
			Action:  serverCmd,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "listen",
					Aliases: []string{"l"},
					Usage:   "the `ADDR` to listen on",
				},
			}, sessionFlags()...),
		},
		{
			Name:   "client",
			Usage:  "Connect to a server and stream frames both ways",
			Action: clientCmd,
			Flags: append([]cli.Flag{
				&cli.StringFlag{
					Name:    "peer",
					Aliases: []string{"p"},
					Usage:   "the server `ADDR`",
				},
			}, sessionFlags()...),
		},
		{
			Name:   "debug",
			Usage:  "Run capture, codec, framing and render in one process without network",
			Action: debugCmd,
			Flags:  sessionFlags(),
		},
		{
			Name:   "record",
			Usage:  "Write synthetic frames to a dump file",
			Action: recordCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "out",
					Aliases:  []string{"o"},
					Usage:    "the dump `FILE` to write",
					Required: true,
				},
				&cli.IntFlag{
					Name:    "frames",
					Aliases: []string{"n"},
					Value:   100,
					Usage:   "the number of frames to record",
				},
				&cli.IntFlag{
					Name:  "width",
					Usage: "the frame width, overrides capture.width",
				},
				&cli.IntFlag{
					Name:  "height",
					Usage: "the frame height, overrides capture.height",
				},
				&cli.Int64Flag{
					Name:  "seed",
					Usage: "the synthetic generator seed, overrides capture.seed",
				},
			},
		},
		{
			Name:   "inspect",
			Usage:  "Encode every frame of a dump file and report compression statistics",
			Action: inspectCmd,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "in",
					Aliases:  []string{"i"},
					Usage:    "the dump `FILE` to read",
					Required: true,
				},
				&cli.StringFlag{
					Name:  "compression",
					Usage: "the plane compressor (zlib or zstd)",
				},
				&cli.IntFlag{
					Name:  "delta-depth",
					Usage: "the temporal prediction depth (0, 1 or 2)",
				},
				&cli.BoolFlag{
					Name:  "fixed-range",
					Usage: "quantize against the calibrated codec ranges",
				},
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "print one line per frame",
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// sessionFlags are shared by the streaming commands and override config.
func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "transport",
			Aliases: []string{"t"},
			Usage:   "the stream transport (tcp or ws)",
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "the plane compressor (zlib or zstd)",
		},
		&cli.IntFlag{
			Name:  "delta-depth",
			Usage: "the temporal prediction depth (0, 1 or 2)",
		},
		&cli.IntFlag{
			Name:  "decimation",
			Usage: "send every Nth captured frame",
		},
		&cli.StringFlag{
			Name:  "source",
			Usage: "the capture source (synthetic or dump)",
		},
		&cli.StringFlag{
			Name:  "dump",
			Usage: "the dump `FILE` replayed by the dump source",
		},
		&cli.IntFlag{
			Name:  "fps",
			Usage: "the capture rate, -1 captures as fast as possible",
		},
		&cli.StringFlag{
			Name:  "display",
			Usage: "the render mode (headless, window or none)",
		},
		&cli.StringFlag{
			Name:  "snapshot",
			Usage: "write the last headless frame to this PNG `FILE`",
		},
		&cli.BoolFlag{
			Name:  "no-capture",
			Usage: "only receive and render",
		},
		&cli.IntFlag{
			Name:    "frames",
			Aliases: []string{"n"},
			Usage:   "stop capturing after this many frames",
		},
	}
}
