// Command publish710 reads a recorded 7K capture and republishes its frames
// over UDP, pacing delivery the same way pkg/replay's TCP server does. UDP
// delivery has no subscription handshake: every frame is sent to the
// configured host:port unconditionally, mirroring how a real 7k center
// pushes sonar settings/bathymetry datagrams to a fixed listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
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
	log := logging.Component(logging.New(level), "publish710")

	file := cCtx.String("file")
	if file == "" {
		return fmt.Errorf("publish710: --file is required")
	}

	mode := sevenk.DRFStream
	if cCtx.Bool("nf") {
		mode = sevenk.NetStream
	}
	minDelay := time.Duration(cCtx.Float64("min-delay") * float64(time.Second))
	maxDelay := time.Duration(cCtx.Float64("max-delay") * float64(time.Second))
	cycles := cCtx.Int("cycles")
	offset := cCtx.Int64("offset")

	addr := net.JoinHostPort(cCtx.String("host"), fmt.Sprintf("%d", cCtx.Int("port")))
	conn, err := transport.DialUDP(addr)
	if err != nil {
		return fmt.Errorf("publish710: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt)
	defer stop()

	log.Info("publishing", "addr", addr, "file", file, "cycles", cycles)

	var heartbeat *time.Ticker
	if hb := cCtx.Int("hbeat"); hb > 0 {
		heartbeat = time.NewTicker(time.Duration(hb) * time.Second)
		defer heartbeat.Stop()
	}

	// --restart makes the capture loop indefinitely regardless of --cycles;
	// otherwise --cycles bounds how many full passes are sent (<=0 forever).
	limit := cycles
	if cCtx.Bool("restart") {
		limit = 0
	}
	for cycle := 0; limit <= 0 || cycle < limit; cycle++ {
		if err := publishOnce(ctx, log, conn, file, mode, offset, minDelay, maxDelay, heartbeat); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return nil
}

func publishOnce(ctx context.Context, log *slog.Logger, conn io.Writer, file string, mode sevenk.Mode, offset int64, minDelay, maxDelay time.Duration, heartbeat *time.Ticker) error {
	osFile, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("publish710: opening capture %s: %w", file, err)
	}
	if offset > 0 {
		if _, err := osFile.Seek(offset, io.SeekStart); err != nil {
			osFile.Close()
			return fmt.Errorf("publish710: seeking to offset %d: %w", offset, err)
		}
	}
	ft := transport.NewFileTransport(osFile)
	defer ft.Close()

	source := sevenk.NewParser(mode, ft, 0)
	var prevTS time.Time
	haveTS := false
	var seq uint32
	sent := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if heartbeat != nil {
			select {
			case <-heartbeat.C:
				log.Info("heartbeat", "frames_sent", sent)
			default:
			}
		}

		fr, status, err := source.Next(0)
		if status == sevenk.StatusEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("publish710: reading capture: %w", err)
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
		if _, err := conn.Write(fr.EncodeWire(seq)); err != nil {
			return fmt.Errorf("publish710: sending datagram: %w", err)
		}
		sent++
	}
}

func main() {
	app := &cli.App{
		Name:  "publish710",
		Usage: "republish a recorded 7K capture over UDP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "destination host"},
			&cli.IntFlag{Name: "port", Value: 7000, Usage: "destination UDP port"},
			&cli.StringFlag{Name: "file", Usage: "path to the recorded 7K capture"},
			&cli.IntFlag{Name: "cycles", Value: 1, Usage: "number of times to replay the capture (<=0 means forever)"},
			&cli.Float64Flag{Name: "min-delay", Value: 0, Usage: "minimum inter-frame delivery delay, seconds"},
			&cli.Float64Flag{Name: "max-delay", Value: 1.0, Usage: "maximum inter-frame delivery delay, seconds"},
			&cli.BoolFlag{Name: "restart", Usage: "rewind and replay again after each cycle completes"},
			&cli.Int64Flag{Name: "offset", Usage: "byte offset into the capture to start playback from"},
			&cli.BoolFlag{Name: "nf", Value: true, Usage: "capture is NF-wrapped rather than a bare DRF stream"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.IntFlag{Name: "hbeat", Usage: "heartbeat log interval in seconds (0 disables)"},
			&cli.StringFlag{Name: "ofmt", Usage: "unused, reserved for parity with other driver commands"},
			&cli.StringFlag{Name: "dev", Usage: "unused, reserved for parity with other driver commands"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
