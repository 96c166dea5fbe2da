// Command replayd serves a recorded 7K capture over TCP, pacing delivery
// against the capture's embedded timestamps and fanning each frame out to
// every subscribed client (spec component G; pkg/replay). A thin
// urfave/cli/v2 wrapper, grounded on the teacher's cmd/main.go App/Command
// shape, over pkg/replay.
package main

import (
	"fmt"
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
	log := logging.Component(logging.New(level), "replayd")
	if statn := cCtx.String("statn"); statn != "" {
		log = log.With("station", statn)
	}

	file := cCtx.String("file")
	if file == "" {
		return fmt.Errorf("replayd: --file is required")
	}

	mode := sevenk.DRFStream
	if cCtx.Bool("nf") {
		mode = sevenk.NetStream
	}

	ft, err := transport.OpenFileTransport(file)
	if err != nil {
		return fmt.Errorf("replayd: opening capture %s: %w", file, err)
	}
	defer ft.Close()

	minDelay := time.Duration(cCtx.Float64("min-delay") * float64(time.Second))
	maxDelay := time.Duration(cCtx.Float64("max-delay") * float64(time.Second))

	addr := net.JoinHostPort(cCtx.String("host"), fmt.Sprintf("%d", cCtx.Int("port")))
	srv, err := replay.NewServer(addr, minDelay, maxDelay, cCtx.Int("bsize"), log)
	if err != nil {
		return fmt.Errorf("replayd: %w", err)
	}
	defer srv.Close()

	log.Info("listening", "addr", addr, "file", file)

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt)
	defer stop()

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- srv.AcceptLoop() }()

	runErr := make(chan error, 1)
	go func() {
		source := sevenk.NewParser(mode, ft, 0)
		runErr <- srv.Run(source)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down on interrupt")
		return nil
	case err := <-runErr:
		return err
	case err := <-acceptErr:
		return err
	}
}

func main() {
	app := &cli.App{
		Name:  "replayd",
		Usage: "replay a recorded 7K capture to subscribing TCP clients",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "0.0.0.0", Usage: "address to listen on"},
			&cli.IntFlag{Name: "port", Value: 7000, Usage: "TCP port to listen on"},
			&cli.StringFlag{Name: "file", Usage: "path to the recorded 7K capture"},
			&cli.Float64Flag{Name: "min-delay", Value: 0, Usage: "minimum inter-frame delivery delay, seconds"},
			&cli.Float64Flag{Name: "max-delay", Value: 1.0, Usage: "maximum inter-frame delivery delay, seconds"},
			&cli.IntFlag{Name: "bsize", Value: 8, Usage: "fan-out worker pool size"},
			&cli.BoolFlag{Name: "nf", Value: true, Usage: "capture is NF-wrapped (network stream) rather than a bare DRF stream"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "statn", Usage: "station label attached to log lines"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
