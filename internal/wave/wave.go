// Package wave models a DMA waveform engine in the style of pigpio: pulses
// are accumulated, committed into a numbered waveform, and waveforms are
// sequenced by a byte chain with loop, repeat and delay opcodes.
package wave

import "errors"

// ID identifies a committed waveform. Chains reference waveforms by a single
// byte, so only IDs below MaxID can be chained.
type ID uint32

// Pulse switches the lines in On high and the lines in Off low, then waits
// Delay microseconds. On and Off are bit masks over BCM line numbers.
type Pulse struct {
	On    uint32
	Off   uint32
	Delay uint32
}

// Engine is the waveform transmission primitive.
type Engine interface {
	// AddPulses appends pulses to the waveform under construction and
	// returns the total number of pulses pending.
	AddPulses(pulses []Pulse) (int, error)

	// Commit turns the pending pulses into a waveform.
	Commit() (ID, error)

	// Delete releases a committed waveform.
	Delete(id ID) error

	// ChainSend starts transmitting a chain. It returns once the chain is
	// accepted; use Busy to wait for completion.
	ChainSend(chain []byte) error

	// Busy reports whether a transmission is in progress.
	Busy() (bool, error)

	// Stop aborts the current transmission.
	Stop() error
}

// Errors returned by engines.
var (
	ErrNoPulses   = errors.New("wave: no pulses pending")
	ErrBusy       = errors.New("wave: transmission in progress")
	ErrUnknownID  = errors.New("wave: unknown waveform id")
	ErrNoWaveIDs  = errors.New("wave: no free waveform ids")
	ErrEmptyChain = errors.New("wave: empty chain")
)

// Bit returns the mask for a single line.
func Bit(line int) uint32 {
	return 1 << uint(line)
}
