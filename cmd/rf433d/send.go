package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/rf433/internal/rf433"
)

// sendPause separates consecutive codes on the command line.
const sendPause = 2 * time.Second

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "transmit codes one after another",
		ArgsUsage: "CODE...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "receive", Usage: "also print codes decoded while sending"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !cfg.TXEnabled() {
				return errors.New("transmitter is disabled")
			}
			codes, err := parseCodes(c.Args().Slice())
			if err != nil {
				return err
			}
			if !c.Bool("receive") {
				cfg.Receiver.Pin = -1
			}

			hw, err := openHardware(cfg)
			if err != nil {
				return err
			}
			defer hw.Close()

			if cfg.RXEnabled() {
				stop, err := startPrinting(hw, cfg, os.Stdout)
				if err != nil {
					return err
				}
				defer stop()
			}

			log.WithFields(log.Fields{"pin": cfg.Transmitter.Pin, "repeats": cfg.Transmitter.Repeats}).Info("starting tx")
			tx, err := rf433.NewTransmitter(hw.ctrl, hw.engine, cfg.TransmitterConfig())
			if err != nil {
				return fmt.Errorf("init transmitter: %w", err)
			}
			defer tx.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			failed := sendCodes(ctx, tx, codes, sendPause, os.Stdout)
			if ctx.Err() != nil {
				return nil
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d codes failed", failed, len(codes))
			}
			fmt.Fprintln(os.Stdout, "All messages sent")
			return nil
		},
	}
}

func parseCodes(args []string) ([]uint64, error) {
	if len(args) == 0 {
		return nil, errors.New("no codes given")
	}
	codes := make([]uint64, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("code %q: %w", a, err)
		}
		codes[i] = v
	}
	return codes, nil
}

type codeSender interface {
	Send(ctx context.Context, code uint64) error
}

// sendCodes sends each code in turn, waiting pause between them. A failed
// code is reported and the rest are still sent. It returns the number of
// failures and stops early if ctx ends.
func sendCodes(ctx context.Context, tx codeSender, codes []uint64, pause time.Duration, w io.Writer) int {
	failed := 0
	for i, code := range codes {
		if i > 0 {
			select {
			case <-ctx.Done():
				return failed
			case <-time.After(pause):
			}
		}
		if err := tx.Send(ctx, code); err != nil {
			if ctx.Err() != nil {
				return failed
			}
			fmt.Fprintf(w, "error sending %d: %v\n", i, err)
			failed++
			continue
		}
		fmt.Fprintf(w, "Send complete %d\n", i)
	}
	return failed
}
