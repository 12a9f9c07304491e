// Command rf433d receives and transmits 433 MHz OOK remote control codes
// and bridges them to MQTT.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/sweeney/rf433/internal/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rf433d",
		Usage: "433 MHz OOK receiver/transmitter",
		Flags: globalFlags(),
		Before: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			level, _ := log.ParseLevel(cfg.LogLevel)
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			receiveCommand(),
			sendCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML configuration file", EnvVars: []string{"RF433D_CONFIG"}},
		&cli.StringFlag{Name: "log-level", Usage: "panic, fatal, error, warn, info, debug or trace"},
		&cli.StringFlag{Name: "backend", Usage: `GPIO backend: "gpiocdev" or "pigpiod"`},
		&cli.StringFlag{Name: "chip", Usage: "GPIO character device for the gpiocdev backend"},
		&cli.IntFlag{Name: "rx-pin", Usage: "BCM pin of the receiver (-1 to disable)"},
		&cli.IntFlag{Name: "tx-pin", Usage: "BCM pin of the transmitter (-1 to disable)"},
		&cli.IntFlag{Name: "repeats", Usage: "Transmit repeat count"},
	}
}

// loadConfig reads the configuration file, if any, and applies flag
// overrides. Called with a command's context it sees both the global flags
// and that command's own.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("backend") {
		cfg.GPIO.Backend = c.String("backend")
	}
	if c.IsSet("chip") {
		cfg.GPIO.Chip = c.String("chip")
	}
	if c.IsSet("rx-pin") {
		cfg.Receiver.Pin = c.Int("rx-pin")
	}
	if c.IsSet("tx-pin") {
		cfg.Transmitter.Pin = c.Int("tx-pin")
	}
	if c.IsSet("repeats") {
		cfg.Transmitter.Repeats = c.Int("repeats")
	}
	if c.IsSet("broker") {
		cfg.MQTT.Broker = c.String("broker")
	}
	if c.IsSet("http") {
		cfg.HTTP.Addr = c.String("http")
	}
	if c.IsSet("holdoff") {
		cfg.Daemon.Holdoff.Duration = c.Duration("holdoff")
	}
	if c.IsSet("heartbeat") {
		cfg.Daemon.Heartbeat.Duration = c.Duration("heartbeat")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
