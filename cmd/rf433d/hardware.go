package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/rf433/internal/config"
	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/pigpiod"
	"github.com/sweeney/rf433/internal/wave"
)

// hardware is an opened GPIO backend. engine is nil when the transmitter is
// disabled.
type hardware struct {
	ctrl   gpio.Controller
	engine wave.Engine
}

// txController hands out the output line already bound to the software wave
// engine, so the transmitter and the engine drive the same line request.
type txController struct {
	gpio.Controller
	tx gpio.Line
}

func (c txController) ConfigureLine(offset int, dir gpio.Direction, pull gpio.Pull) (gpio.Line, error) {
	if offset == c.tx.Offset() && dir == gpio.Output {
		return c.tx, nil
	}
	return c.Controller.ConfigureLine(offset, dir, pull)
}

func openHardware(cfg config.Config) (*hardware, error) {
	switch cfg.GPIO.Backend {
	case config.BackendPigpiod:
		conn, err := pigpiod.Start(cfg.GPIO.PigpiodAddr, cfg.GPIO.PigpiodPort)
		if err != nil {
			return nil, fmt.Errorf("init pigpiod: %w", err)
		}
		hw := &hardware{ctrl: conn}
		if cfg.TXEnabled() {
			hw.engine = conn
		}
		log.WithField("backend", cfg.GPIO.Backend).Info("gpio ready")
		return hw, nil

	case config.BackendGPIOCDev:
		chip, err := gpio.NewChip(cfg.GPIO.Chip)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		hw := &hardware{ctrl: chip}
		if cfg.TXEnabled() {
			line, err := chip.ConfigureLine(cfg.Transmitter.Pin, gpio.Output, gpio.PullNone)
			if err != nil {
				chip.Close()
				return nil, fmt.Errorf("init tx line: %w", err)
			}
			hw.ctrl = txController{Controller: chip, tx: line}
			hw.engine = wave.NewSoftEngine(nil, line)
		}
		log.WithFields(log.Fields{"backend": cfg.GPIO.Backend, "chip": cfg.GPIO.Chip}).Info("gpio ready")
		return hw, nil
	}
	return nil, fmt.Errorf("unknown gpio backend %q", cfg.GPIO.Backend)
}

func (h *hardware) Close() error {
	return h.ctrl.Close()
}
