//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/rf433/internal/tick"
)

// Chip is not available on non-Linux platforms.
type Chip struct{}

// NewChip returns an error on non-Linux platforms.
func NewChip(name string) (*Chip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// ConfigureLine is not implemented on non-Linux platforms.
func (c *Chip) ConfigureLine(offset int, dir Direction, pull Pull) (Line, error) {
	return nil, errors.New("gpio: not supported")
}

// CurrentTick is not implemented on non-Linux platforms.
func (c *Chip) CurrentTick() tick.Tick {
	return 0
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}
