package wave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/rf433/internal/gpio"
)

// SoftEngine plays chains by toggling output lines from a goroutine, with
// sleeps between pulses. Timing is only as good as the scheduler, which is
// adequate for the millisecond-scale pulses of a 433 MHz remote but not for
// anything tighter. It exists so that a plain character-device setup can
// transmit without the pigpio daemon.
type SoftEngine struct {
	clock clock.Clock

	mu      sync.Mutex
	lines   map[int]gpio.Line
	pending []Pulse
	waves   map[ID][]Pulse
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr error
}

// NewSoftEngine creates an engine driving the given output lines. Pulses may
// only reference lines in this set.
func NewSoftEngine(clk clock.Clock, lines ...gpio.Line) *SoftEngine {
	if clk == nil {
		clk = clock.New()
	}
	e := &SoftEngine{
		clock: clk,
		lines: make(map[int]gpio.Line),
		waves: make(map[ID][]Pulse),
	}
	for _, l := range lines {
		e.lines[l.Offset()] = l
	}
	return e
}

// AddPulses validates and appends pulses to the pending waveform.
func (e *SoftEngine) AddPulses(pulses []Pulse) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range pulses {
		if err := e.checkMask(p.On | p.Off); err != nil {
			return 0, err
		}
	}
	e.pending = append(e.pending, pulses...)
	return len(e.pending), nil
}

// Commit stores the pending pulses under the lowest free ID.
func (e *SoftEngine) Commit() (ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.pending) == 0 {
		return 0, ErrNoPulses
	}
	for id := ID(0); id < MaxID; id++ {
		if _, used := e.waves[id]; !used {
			e.waves[id] = e.pending
			e.pending = nil
			return id, nil
		}
	}
	return 0, ErrNoWaveIDs
}

// Delete releases a waveform.
func (e *SoftEngine) Delete(id ID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.waves[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	delete(e.waves, id)
	return nil
}

// ChainSend parses the chain and starts playing it.
func (e *SoftEngine) ChainSend(chain []byte) error {
	steps, err := Parse(chain)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing() {
		return ErrBusy
	}
	for _, id := range Waves(steps) {
		if _, ok := e.waves[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownID, id)
		}
	}
	// Snapshot the referenced waves so a Delete during playback is harmless.
	waves := make(map[ID][]Pulse, len(e.waves))
	for id, p := range e.waves {
		waves[id] = p
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.lastErr = nil

	go func() {
		defer close(done)
		err := e.play(ctx, steps, waves)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()
	}()
	return nil
}

// Busy reports whether a chain is playing. An error from the last playback
// is reported once.
func (e *SoftEngine) Busy() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.playing() {
		return true, nil
	}
	err := e.lastErr
	e.lastErr = nil
	return false, err
}

// Stop aborts playback and waits for the player to exit.
func (e *SoftEngine) Stop() error {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	e.mu.Lock()
	e.lastErr = nil
	e.mu.Unlock()
	return nil
}

// playing must be called with mu held.
func (e *SoftEngine) playing() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *SoftEngine) checkMask(mask uint32) error {
	for bit := 0; bit < 32; bit++ {
		if mask&(1<<uint(bit)) == 0 {
			continue
		}
		if _, ok := e.lines[bit]; !ok {
			return fmt.Errorf("wave: line %d not an engine output", bit)
		}
	}
	return nil
}

func (e *SoftEngine) play(ctx context.Context, steps []Step, waves map[ID][]Pulse) error {
	for _, s := range steps {
		switch s.Kind {
		case StepWave:
			for _, p := range waves[s.Wave] {
				if err := e.pulse(ctx, p); err != nil {
					return err
				}
			}
		case StepDelay:
			if err := e.pulse(ctx, Pulse{Delay: s.Delay}); err != nil {
				return err
			}
		case StepLoop:
			for i := 0; s.Forever || i < s.Count; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := e.play(ctx, s.Body, waves); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *SoftEngine) pulse(ctx context.Context, p Pulse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for bit, l := range e.lines {
		m := uint32(1) << uint(bit)
		switch {
		case p.On&m != 0:
			if err := l.Write(1); err != nil {
				return err
			}
		case p.Off&m != 0:
			if err := l.Write(0); err != nil {
				return err
			}
		}
	}
	if p.Delay > 0 {
		e.clock.Sleep(time.Duration(p.Delay) * time.Microsecond)
	}
	return nil
}
