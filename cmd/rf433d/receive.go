package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/rf433/internal/config"
	"github.com/sweeney/rf433/internal/rf433"
)

func receiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "receive",
		Usage: "print every decoded code until interrupted",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			if !cfg.RXEnabled() {
				return errors.New("receiver is disabled")
			}
			cfg.Transmitter.Pin = -1

			hw, err := openHardware(cfg)
			if err != nil {
				return err
			}
			defer hw.Close()

			stop, err := startPrinting(hw, cfg, os.Stdout)
			if err != nil {
				return err
			}
			defer stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			return nil
		},
	}
}

// startPrinting starts a receiver that writes each decode to w.
func startPrinting(hw *hardware, cfg config.Config, w io.Writer) (func() error, error) {
	log.WithField("pin", cfg.Receiver.Pin).Info("starting rx")
	rx, err := rf433.NewReceiver(hw.ctrl, cfg.ReceiverConfig(), func(r rf433.Result) {
		fmt.Fprintln(w, formatResult(r))
	})
	if err != nil {
		return nil, fmt.Errorf("init receiver: %w", err)
	}
	return rx.Close, nil
}

func formatResult(r rf433.Result) string {
	return fmt.Sprintf("code: %d, bits: %d, gap: %d, t0: %.0f, t1: %.0f", r.Code, r.Bits, r.Gap, r.Short, r.Long)
}
