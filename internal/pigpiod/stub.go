//go:build !pigpiod

package pigpiod

import (
	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/tick"
	"github.com/sweeney/rf433/internal/wave"
)

// Conn is not available without the pigpiod build tag.
type Conn struct{}

// Start returns ErrUnsupported.
func Start(address, port string) (*Conn, error) {
	return nil, ErrUnsupported
}

// Close is a no-op.
func (c *Conn) Close() error { return nil }

// ConfigureLine returns ErrUnsupported.
func (c *Conn) ConfigureLine(offset int, dir gpio.Direction, pull gpio.Pull) (gpio.Line, error) {
	return nil, ErrUnsupported
}

// CurrentTick returns 0.
func (c *Conn) CurrentTick() tick.Tick { return 0 }

// AddPulses returns ErrUnsupported.
func (c *Conn) AddPulses(pulses []wave.Pulse) (int, error) { return 0, ErrUnsupported }

// Commit returns ErrUnsupported.
func (c *Conn) Commit() (wave.ID, error) { return 0, ErrUnsupported }

// Delete returns ErrUnsupported.
func (c *Conn) Delete(id wave.ID) error { return ErrUnsupported }

// ChainSend returns ErrUnsupported.
func (c *Conn) ChainSend(chain []byte) error { return ErrUnsupported }

// Busy returns ErrUnsupported.
func (c *Conn) Busy() (bool, error) { return false, ErrUnsupported }

// Stop returns ErrUnsupported.
func (c *Conn) Stop() error { return ErrUnsupported }
