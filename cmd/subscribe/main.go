// Command subscribe is a minimal 7K subscription test client: it dials a
// replay or live 7k center, subscribes to a fixed set of record_type_ids
// (defaultSubscription) for the named device mnemonic, and prints each delivered
// frame until --cycles frames have arrived or the connection closes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/reson7k/sonarcore/internal/logging"
	"github.com/reson7k/sonarcore/pkg/control"
	"github.com/reson7k/sonarcore/pkg/frame"
	"github.com/reson7k/sonarcore/pkg/sevenk"
	"github.com/reson7k/sonarcore/pkg/transport"
)

// defaultSubscription is the record_type_id set named in the "clean
// subscribe" scenario: the 1003-1016 position, sound-velocity, depth,
// CTD, attitude, heading, survey and navigation records plus the sonar
// settings, beam geometry and bathymetry records.
var defaultSubscription = []frame.RecordTypeID{
	frame.RTPosition, frame.RTSoundVelocity, frame.RTDepth, frame.RTCTD,
	frame.RTRollPitchHeave, frame.RTHeading, frame.RTSurvey, frame.RTNavigation,
	frame.RTSonarSettings, frame.RTBeamGeometry, frame.RTBathymetry,
}

func run(cCtx *cli.Context) error {
	level := "info"
	if cCtx.Bool("verbose") {
		level = "debug"
	}
	log := logging.Component(logging.New(level), "subscribe")

	addr := fmt.Sprintf("%s:%d", cCtx.String("host"), cCtx.Int("port"))
	dialTimeout := 5 * time.Second

	conn, err := transport.DialTCP(addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("subscribe: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := control.NewClient(conn, cCtx.String("dev"), dialTimeout)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := client.Subscribe(defaultSubscription, 2500*time.Millisecond); err != nil {
		return fmt.Errorf("subscribe: subscribing: %w", err)
	}
	log.Info("subscribed", "addr", addr, "device", cCtx.String("dev"), "record_count", len(defaultSubscription))

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt)
	defer stop()

	cycles := cCtx.Int("cycles")
	jsonOut := cCtx.String("ofmt") == "json"

	for received := 0; cycles <= 0 || received < cycles; received++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fr, status, err := client.Next(0)
		if status == sevenk.StatusEOF {
			log.Info("connection closed by peer")
			return nil
		}
		if err != nil {
			return fmt.Errorf("subscribe: reading frame: %w", err)
		}
		if status != sevenk.StatusOK {
			continue
		}

		printFrame(fr, jsonOut)
	}
	return nil
}

func printFrame(fr frame.Frame, asJSON bool) {
	if asJSON {
		out, _ := json.Marshal(struct {
			RecordTypeID uint32 `json:"record_type_id"`
			DeviceID     uint32 `json:"device_id"`
			Size         uint32 `json:"size"`
			DataLen      int    `json:"data_len"`
		}{
			RecordTypeID: fr.DRF.RecordTypeID,
			DeviceID:     fr.DRF.DeviceID,
			Size:         fr.DRF.Size,
			DataLen:      len(fr.Data),
		})
		fmt.Println(string(out))
		return
	}
	fmt.Printf("record_type_id=%d device_id=%d size=%d data_len=%d\n",
		fr.DRF.RecordTypeID, fr.DRF.DeviceID, fr.DRF.Size, len(fr.Data))
}

func main() {
	app := &cli.App{
		Name:  "subscribe",
		Usage: "subscribe to a 7k center or replay server and print delivered frames",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "127.0.0.1", Usage: "7k center / replay host"},
			&cli.IntFlag{Name: "port", Value: 7000, Usage: "7k center / replay port"},
			&cli.StringFlag{Name: "dev", Value: "7125_400", Usage: "device mnemonic (T50, 7125_200, 7125_400)"},
			&cli.IntFlag{Name: "cycles", Value: 0, Usage: "number of frames to print before exiting (<=0 means run until disconnected)"},
			&cli.StringFlag{Name: "ofmt", Value: "text", Usage: "output format: text or json"},
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
			&cli.StringFlag{Name: "file", Usage: "unused, reserved for parity with other driver commands"},
			&cli.Float64Flag{Name: "min-delay", Usage: "unused, reserved for parity with other driver commands"},
			&cli.Float64Flag{Name: "max-delay", Usage: "unused, reserved for parity with other driver commands"},
			&cli.BoolFlag{Name: "restart", Usage: "unused, reserved for parity with other driver commands"},
			&cli.Int64Flag{Name: "offset", Usage: "unused, reserved for parity with other driver commands"},
			&cli.BoolFlag{Name: "nf", Usage: "unused, reserved for parity with other driver commands"},
			&cli.IntFlag{Name: "hbeat", Usage: "unused, reserved for parity with other driver commands"},
			&cli.IntFlag{Name: "bsize", Usage: "unused, reserved for parity with other driver commands"},
			&cli.StringFlag{Name: "statn", Usage: "unused, reserved for parity with other driver commands"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
