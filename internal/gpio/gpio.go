// Package gpio provides the line-level capability interface used by the
// 433 MHz receiver and transmitter.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/rf433/internal/tick"
)

// Direction selects whether a line is read or driven.
type Direction int

const (
	Input Direction = iota
	Output
)

// Pull selects the line bias.
type Pull int

const (
	PullNone Pull = iota
	PullDown
	PullUp
)

// Edge selects which level transitions are reported.
type Edge int

const (
	RisingEdge Edge = iota + 1
	FallingEdge
	BothEdges
)

func (e Edge) String() string {
	switch e {
	case RisingEdge:
		return "rising"
	case FallingEdge:
		return "falling"
	case BothEdges:
		return "both"
	}
	return "unknown"
}

// EdgeHandler receives the new level and the tick at which it was observed.
// Handlers for one line are called sequentially, in timestamp order.
type EdgeHandler func(level int, t tick.Tick)

// Line is a single configured GPIO line.
type Line interface {
	// Offset returns the line number (BCM numbering on a Pi).
	Offset() int

	// Read returns the current level, 0 or 1.
	Read() (int, error)

	// Write drives an output line to level.
	Write(level int) error

	// SetGlitchFilter suppresses level changes shorter than d.
	// A zero duration disables the filter.
	SetGlitchFilter(d time.Duration) error

	// Subscribe starts delivering edges to fn. Only one handler is active.
	Subscribe(edge Edge, fn EdgeHandler) error

	// Unsubscribe stops edge delivery. Safe to call when not subscribed.
	Unsubscribe() error

	// Close releases the line.
	Close() error
}

// Controller hands out lines and exposes the shared tick counter.
type Controller interface {
	ConfigureLine(offset int, dir Direction, pull Pull) (Line, error)

	// CurrentTick returns the counter on the same time base as edge ticks.
	CurrentTick() tick.Tick

	// Close releases the controller and any lines still open.
	Close() error
}

// Default pin definitions (BCM numbering), matching the reference wiring.
const (
	DefaultPinRX = 6
	DefaultPinTX = 5
)

// DefaultChip is the character device used on a Raspberry Pi.
const DefaultChip = "gpiochip0"
