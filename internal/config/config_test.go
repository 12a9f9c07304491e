package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sweeney/rf433/internal/rf433"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rf433d.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.RXEnabled())
	require.True(t, cfg.TXEnabled())
	require.Equal(t, 6, cfg.Receiver.Pin)
	require.Equal(t, 5, cfg.Transmitter.Pin)
	require.Equal(t, 12, cfg.Transmitter.Repeats)
	require.Equal(t, 500*time.Millisecond, cfg.Daemon.Holdoff.Duration)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log_level = "debug"

[gpio]
backend = "pigpiod"
pigpiod_addr = "pi.local"

[receiver]
pin = 17
min_bits = 12
max_bits = 32
glitch = "100us"

[transmitter]
pin = -1

[mqtt]
broker = "tcp://broker:1883"
username = "rf"

[daemon]
holdoff = "1s"
heartbeat = "0s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, BackendPigpiod, cfg.GPIO.Backend)
	require.Equal(t, "pi.local", cfg.GPIO.PigpiodAddr)
	require.Equal(t, "gpiochip0", cfg.GPIO.Chip, "unset keys keep defaults")
	require.Equal(t, 17, cfg.Receiver.Pin)
	require.Equal(t, 100*time.Microsecond, cfg.Receiver.Glitch.Duration)
	require.False(t, cfg.TXEnabled())
	require.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	require.Equal(t, "rf433d", cfg.MQTT.ClientID)
	require.Equal(t, time.Second, cfg.Daemon.Holdoff.Duration)
	require.Zero(t, cfg.Daemon.Heartbeat.Duration)
}

func TestLoadDecoderTuning(t *testing.T) {
	path := writeFile(t, `
[receiver]
gap_threshold = 7000
min_ratio = 2.0
short_slack = 25
long_slack = 15
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	rx := cfg.ReceiverConfig()
	require.EqualValues(t, 7000, rx.GapThreshold)
	require.Equal(t, 2.0, rx.MinRatio)
	require.EqualValues(t, 25, rx.ShortSlack)
	require.EqualValues(t, 15, rx.LongSlack)
	require.Equal(t, 24, rx.MinBits, "unset keys keep defaults")
}

func TestLoadUnknownKey(t *testing.T) {
	path := writeFile(t, `
[receiver]
pins = 6
`)
	_, err := Load(path)
	require.ErrorContains(t, err, "receiver.pins")
}

func TestLoadBadDuration(t *testing.T) {
	path := writeFile(t, `
[daemon]
holdoff = "soon"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "not a valid logrus Level"},
		{"unknown backend", func(c *Config) { c.GPIO.Backend = "sysfs" }, `unknown backend "sysfs"`},
		{"missing chip", func(c *Config) { c.GPIO.Chip = "" }, "chip is required"},
		{"bit range", func(c *Config) { c.Receiver.MinBits = 40; c.Receiver.MaxBits = 30 }, "receiver: rf433: bit range"},
		{"slack", func(c *Config) { c.Receiver.LongSlack = 100 }, "receiver: rf433: slack percentages"},
		{"min ratio", func(c *Config) { c.Receiver.MinRatio = 0.5 }, "receiver: rf433: min ratio"},
		{"repeats", func(c *Config) { c.Transmitter.Repeats = 100 }, "transmitter:"},
		{"tx pin", func(c *Config) { c.Transmitter.Pin = 40 }, "transmitter:"},
		{"shared pin", func(c *Config) { c.Transmitter.Pin = 6 }, "share pin 6"},
		{"buffer", func(c *Config) { c.MQTT.BufferSize = -1 }, "negative buffer_size"},
		{"holdoff", func(c *Config) { c.Daemon.Holdoff.Duration = -time.Second }, "negative holdoff"},
		{"heartbeat", func(c *Config) { c.Daemon.Heartbeat.Duration = -time.Second }, "negative heartbeat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestValidateDisabledSectionsSkipped(t *testing.T) {
	cfg := Default()
	cfg.Receiver.Pin = -1
	cfg.Receiver.MinBits = 99
	cfg.Transmitter.Pin = -1
	cfg.Transmitter.Repeats = 0
	require.NoError(t, cfg.Validate())
}

func TestConversions(t *testing.T) {
	cfg := Default()

	rx := cfg.ReceiverConfig()
	require.Equal(t, rf433.ReceiverConfig{
		Pin:          6,
		MinBits:      24,
		MaxBits:      64,
		Glitch:       rf433.DefaultGlitch,
		GapThreshold: 5000,
		MinRatio:     1.5,
		ShortSlack:   30,
		LongSlack:    20,
	}, rx)

	tx := cfg.TransmitterConfig()
	require.Equal(t, 5, tx.Pin)
	require.Equal(t, 12, tx.Repeats)
	require.EqualValues(t, 300, tx.Short)

	o := cfg.MQTTOptions()
	require.Equal(t, "rf433d", o.ClientID)
	require.Equal(t, 100, o.BufferSize)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	require.Equal(t, 90*time.Second, d.Duration)

	b, err := d.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "1m30s", string(b))

	require.Error(t, d.UnmarshalText([]byte("90")))
}
