// Command serialemu republishes a recorded 7K capture by writing its
// frames to a path given by --device, paced the same way the UDP and TCP
// publishers are. The core does not drive hardware, so --device is opened
// as a plain file (a real serial port node, a named pipe, or a regular
// file all work identically through *os.File); this driver only exercises
// the byte-transport and pacing contract, not a serial line discipline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reson7k/sonarcore/internal/logging"
	"github.com/reson7k/sonarcore/pkg/replay"
	"github.com/reson7k/sonarcore/pkg/sevenk"
	"github.com/reson7k/sonarcore/pkg/transport"
)

func run(cCtx *cli.Context) error {
	level := "info"
	if cCtx.Bool("verbose") {
		level = "debug"
	}
	log := logging.Component(logging.New(level), "serialemu")

	file := cCtx.String("file")
	device := cCtx.String("device")
	if file == "" || device == "" {
		return fmt.Errorf("serialemu: both --file and --device are required")
	}

	mode := sevenk.DRFStream
	if cCtx.Bool("nf") {
		mode = sevenk.NetStream
	}
	minDelay := time.Duration(cCtx.Float64("min-delay") * float64(time.Second))
	maxDelay := time.Duration(cCtx.Float64("max-delay") * float64(time.Second))

	out, err := os.OpenFile(device, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("serialemu: opening device %s: %w", device, err)
	}
	defer out.Close()

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt)
	defer stop()

	log.Info("publishing", "device", device, "file", file)

	limit := cCtx.Int("cycles")
	if cCtx.Bool("restart") {
		limit = 0
	}
	for cycle := 0; limit <= 0 || cycle < limit; cycle++ {
		if err := publishOnce(ctx, log, out, file, mode, minDelay, maxDelay); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return nil
}

func publishOnce(ctx context.Context, log *slog.Logger, out *os.File, file string, mode sevenk.Mode, minDelay, maxDelay time.Duration) error {
	ft, err := transport.OpenFileTransport(file)
	if err != nil {
		return fmt.Errorf("serialemu: opening capture %s: %w", file, err)
	}
	defer ft.Close()

	source := sevenk.NewParser(mode, ft, 0)
	var prevTS time.Time
	haveTS := false
	var seq uint32

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fr, status, err := source.Next(0)
		if status == sevenk.StatusEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("serialemu: reading capture: %w", err)
		}
		if status != sevenk.StatusOK {
			continue
		}

		ts := fr.DRF.Time.Time()
		if haveTS {
			time.Sleep(replay.ClampDelay(ts.Sub(prevTS), minDelay, maxDelay))
		}
		haveTS = true
		prevTS = ts

		seq++
		if _, err := out.Write(fr.EncodeWire(seq)); err != nil {
			return fmt.Errorf("serialemu: writing to device: %w", err)
		}
	}
}

func main() {
	app := &cli.App{
		Name:  "serialemu",
		Usage: "republish a recorded 7K capture by writing framed records to a device path",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "device", Usage: "path to write framed records to"},
			&cli.StringFlag{Name: "file", Usage: "path to the recorded 7K capture"},
			&cli.IntFlag{Name: "cycles", Value: 1, Usage: "number of times to replay the capture (<=0 means forever)"},
			&cli.Float64Flag{Name: "min-delay", Value: 0, Usage: "minimum inter-frame delivery delay, seconds"},
			&cli.Float64Flag{Name: "max-delay", Value: 1.0, Usage: "maximum inter-frame delivery delay, seconds"},
			&cli.BoolFlag{Name: "restart", Usage: "rewind and replay again after each cycle completes"},
			&cli.BoolFlag{Name: "nf", Value: true, Usage: "capture is NF-wrapped rather than a bare DRF stream"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "host", Usage: "unused, reserved for parity with other driver commands"},
			&cli.IntFlag{Name: "port", Usage: "unused, reserved for parity with other driver commands"},
			&cli.Int64Flag{Name: "offset", Usage: "unused, reserved for parity with other driver commands"},
			&cli.IntFlag{Name: "hbeat", Usage: "unused, reserved for parity with other driver commands"},
			&cli.IntFlag{Name: "bsize", Usage: "unused, reserved for parity with other driver commands"},
			&cli.StringFlag{Name: "ofmt", Usage: "unused, reserved for parity with other driver commands"},
			&cli.StringFlag{Name: "statn", Usage: "unused, reserved for parity with other driver commands"},
			&cli.StringFlag{Name: "dev", Usage: "unused, reserved for parity with other driver commands"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
