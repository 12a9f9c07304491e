package wave

import (
	"fmt"
	"sync"
)

// FakeEngine records every call for test assertions.
type FakeEngine struct {
	mu sync.Mutex

	// Added contains every batch of pulses passed to AddPulses.
	Added [][]Pulse

	// Waves holds the committed waveforms still alive, by ID.
	Waves map[ID][]Pulse

	// Deletes counts Delete calls per ID, including failed ones.
	Deletes map[ID]int

	// Chains contains every chain passed to ChainSend.
	Chains [][]byte

	// BusyPolls is the number of Busy calls that report true after each
	// ChainSend.
	BusyPolls int

	// Polls counts Busy calls.
	Polls int

	// Stops counts Stop calls.
	Stops int

	// AddError, CommitError, ChainError and BusyError are returned by the
	// respective methods when set. CommitFailAfter, if positive, lets that
	// many commits succeed before CommitError applies.
	AddError        error
	CommitError     error
	CommitFailAfter int
	ChainError      error
	BusyError       error

	pending []Pulse
	nextID  ID
	commits int
	busy    int
}

// NewFakeEngine creates a FakeEngine with no waveforms.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Waves:   make(map[ID][]Pulse),
		Deletes: make(map[ID]int),
	}
}

// AddPulses records pulses.
func (f *FakeEngine) AddPulses(pulses []Pulse) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.AddError != nil {
		return 0, f.AddError
	}
	cp := append([]Pulse(nil), pulses...)
	f.Added = append(f.Added, cp)
	f.pending = append(f.pending, cp...)
	return len(f.pending), nil
}

// Commit assigns the next sequential ID to the pending pulses.
func (f *FakeEngine) Commit() (ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commits++
	if f.CommitError != nil && f.commits > f.CommitFailAfter {
		f.pending = nil
		return 0, f.CommitError
	}
	if len(f.pending) == 0 {
		return 0, ErrNoPulses
	}
	id := f.nextID
	f.nextID++
	f.Waves[id] = f.pending
	f.pending = nil
	return id, nil
}

// Delete removes a waveform.
func (f *FakeEngine) Delete(id ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Deletes[id]++
	if _, ok := f.Waves[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	delete(f.Waves, id)
	return nil
}

// ChainSend records chain and arms BusyPolls.
func (f *FakeEngine) ChainSend(chain []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ChainError != nil {
		return f.ChainError
	}
	f.Chains = append(f.Chains, append([]byte(nil), chain...))
	f.busy = f.BusyPolls
	return nil
}

// Busy reports true for the configured number of polls.
func (f *FakeEngine) Busy() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Polls++
	if f.BusyError != nil {
		return false, f.BusyError
	}
	if f.busy > 0 {
		f.busy--
		return true, nil
	}
	return false, nil
}

// Stop ends the simulated transmission.
func (f *FakeEngine) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stops++
	f.busy = 0
	return nil
}

// LastChain returns the most recent chain, or nil.
func (f *FakeEngine) LastChain() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Chains) == 0 {
		return nil
	}
	return f.Chains[len(f.Chains)-1]
}

// Live returns the number of committed waveforms not yet deleted.
func (f *FakeEngine) Live() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Waves)
}

// PollCount returns the number of Busy calls so far.
func (f *FakeEngine) PollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Polls
}

// DeleteCount returns how many times id was deleted.
func (f *FakeEngine) DeleteCount(id ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Deletes[id]
}

// SetBusy makes the next n polls report busy.
func (f *FakeEngine) SetBusy(n int) {
	f.mu.Lock()
	f.busy = n
	f.mu.Unlock()
}
