// Package config loads the rf433d configuration file.
//
// The file is TOML. Every key is optional; missing keys keep the values
// from Default. Command-line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/logic"
	"github.com/sweeney/rf433/internal/mqtt"
	"github.com/sweeney/rf433/internal/rf433"
)

// Backend names.
const (
	BackendGPIOCDev = "gpiocdev"
	BackendPigpiod  = "pigpiod"
)

// Duration is a time.Duration read from a string such as "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete daemon configuration.
type Config struct {
	LogLevel    string      `toml:"log_level"`
	GPIO        GPIO        `toml:"gpio"`
	Receiver    Receiver    `toml:"receiver"`
	Transmitter Transmitter `toml:"transmitter"`
	MQTT        MQTT        `toml:"mqtt"`
	HTTP        HTTP        `toml:"http"`
	Daemon      Daemon      `toml:"daemon"`
}

// GPIO selects the hardware backend.
type GPIO struct {
	Backend string `toml:"backend"`
	Chip    string `toml:"chip"`

	// PigpiodAddr and PigpiodPort locate the pigpio daemon. Empty values
	// use the library's defaults (localhost:8888, or $PIGPIO_ADDR).
	PigpiodAddr string `toml:"pigpiod_addr"`
	PigpiodPort string `toml:"pigpiod_port"`
}

// Receiver configures the decoder. A negative pin disables it.
type Receiver struct {
	Pin     int      `toml:"pin"`
	MinBits int      `toml:"min_bits"`
	MaxBits int      `toml:"max_bits"`
	Glitch  Duration `toml:"glitch"`

	// Decoder tuning. GapThreshold is in microseconds, the slacks are
	// percentages.
	GapThreshold uint32  `toml:"gap_threshold"`
	MinRatio     float64 `toml:"min_ratio"`
	ShortSlack   uint32  `toml:"short_slack"`
	LongSlack    uint32  `toml:"long_slack"`
}

// Transmitter configures the encoder. A negative pin disables it.
type Transmitter struct {
	Pin     int    `toml:"pin"`
	Bits    int    `toml:"bits"`
	Repeats int    `toml:"repeats"`
	Gap     uint32 `toml:"gap"`
	Short   uint32 `toml:"short"`
	Long    uint32 `toml:"long"`
}

// MQTT configures the broker connection. An empty broker disables MQTT.
type MQTT struct {
	Broker     string `toml:"broker"`
	ClientID   string `toml:"client_id"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	BufferSize int    `toml:"buffer_size"`
}

// HTTP configures the status server. An empty address disables it.
type HTTP struct {
	Addr string `toml:"addr"`
}

// Daemon configures event handling.
type Daemon struct {
	Holdoff   Duration `toml:"holdoff"`
	Heartbeat Duration `toml:"heartbeat"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		GPIO: GPIO{
			Backend: BackendGPIOCDev,
			Chip:    gpio.DefaultChip,
		},
		Receiver: Receiver{
			Pin:     gpio.DefaultPinRX,
			MinBits: 24,
			MaxBits: rf433.MaxCodeBits,
			Glitch:  Duration{rf433.DefaultGlitch},

			GapThreshold: rf433.DefaultGapThreshold,
			MinRatio:     rf433.DefaultMinRatio,
			ShortSlack:   rf433.DefaultShortSlack,
			LongSlack:    rf433.DefaultLongSlack,
		},
		Transmitter: Transmitter{
			Pin:     gpio.DefaultPinTX,
			Bits:    rf433.DefaultBits,
			Repeats: 12,
			Gap:     rf433.DefaultGap,
			Short:   rf433.DefaultShort,
			Long:    rf433.DefaultLong,
		},
		MQTT: MQTT{
			Broker:     "tcp://localhost:1883",
			ClientID:   "rf433d",
			BufferSize: mqtt.DefaultBufferSize,
		},
		HTTP: HTTP{
			Addr: ":8433",
		},
		Daemon: Daemon{
			Holdoff:   Duration{logic.DefaultHoldoff},
			Heartbeat: Duration{15 * time.Minute},
		},
	}
}

// Load reads the file at path over Default and validates the result.
// Unknown keys are an error, to catch misspellings.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot use.
func (c Config) Validate() error {
	var errs []error

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch c.GPIO.Backend {
	case BackendGPIOCDev:
		if c.GPIO.Chip == "" {
			errs = append(errs, errors.New("gpio: chip is required for the gpiocdev backend"))
		}
	case BackendPigpiod:
	default:
		errs = append(errs, fmt.Errorf("gpio: unknown backend %q", c.GPIO.Backend))
	}

	if c.RXEnabled() {
		if err := c.ReceiverConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("receiver: %w", err))
		}
	}
	if c.TXEnabled() {
		if err := c.TransmitterConfig().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("transmitter: %w", err))
		}
	}
	if c.RXEnabled() && c.TXEnabled() && c.Receiver.Pin == c.Transmitter.Pin {
		errs = append(errs, fmt.Errorf("receiver and transmitter share pin %d", c.Receiver.Pin))
	}

	if c.MQTT.BufferSize < 0 {
		errs = append(errs, errors.New("mqtt: negative buffer_size"))
	}
	if c.Daemon.Holdoff.Duration < 0 {
		errs = append(errs, errors.New("daemon: negative holdoff"))
	}
	if c.Daemon.Heartbeat.Duration < 0 {
		errs = append(errs, errors.New("daemon: negative heartbeat"))
	}
	return errors.Join(errs...)
}

// RXEnabled reports whether the receiver is configured.
func (c Config) RXEnabled() bool { return c.Receiver.Pin >= 0 }

// TXEnabled reports whether the transmitter is configured.
func (c Config) TXEnabled() bool { return c.Transmitter.Pin >= 0 }

// ReceiverConfig converts the receiver section.
func (c Config) ReceiverConfig() rf433.ReceiverConfig {
	return rf433.ReceiverConfig{
		Pin:          c.Receiver.Pin,
		MinBits:      c.Receiver.MinBits,
		MaxBits:      c.Receiver.MaxBits,
		Glitch:       c.Receiver.Glitch.Duration,
		GapThreshold: c.Receiver.GapThreshold,
		MinRatio:     c.Receiver.MinRatio,
		ShortSlack:   c.Receiver.ShortSlack,
		LongSlack:    c.Receiver.LongSlack,
	}
}

// TransmitterConfig converts the transmitter section.
func (c Config) TransmitterConfig() rf433.TransmitterConfig {
	return rf433.TransmitterConfig{
		Pin:     c.Transmitter.Pin,
		Bits:    c.Transmitter.Bits,
		Repeats: c.Transmitter.Repeats,
		Gap:     c.Transmitter.Gap,
		Short:   c.Transmitter.Short,
		Long:    c.Transmitter.Long,
	}
}

// MQTTOptions converts the mqtt section.
func (c Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:     c.MQTT.Broker,
		ClientID:   c.MQTT.ClientID,
		Username:   c.MQTT.Username,
		Password:   c.MQTT.Password,
		BufferSize: c.MQTT.BufferSize,
	}
}
