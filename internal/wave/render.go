package wave

import (
	"errors"
	"fmt"
)

// ErrInfinite is returned when rendering a chain that loops forever.
var ErrInfinite = errors.New("wave: chain loops forever")

// Render flattens a finite chain into the pulses it transmits. Delays become
// pulses with empty masks.
func Render(steps []Step, waves map[ID][]Pulse) ([]Pulse, error) {
	var out []Pulse
	if err := render(steps, waves, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func render(steps []Step, waves map[ID][]Pulse, out *[]Pulse) error {
	for _, s := range steps {
		switch s.Kind {
		case StepWave:
			p, ok := waves[s.Wave]
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownID, s.Wave)
			}
			*out = append(*out, p...)
		case StepDelay:
			*out = append(*out, Pulse{Delay: s.Delay})
		case StepLoop:
			if s.Forever {
				return ErrInfinite
			}
			for i := 0; i < s.Count; i++ {
				if err := render(s.Body, waves, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Duration returns the total length of pulses in microseconds.
func Duration(pulses []Pulse) uint64 {
	var total uint64
	for _, p := range pulses {
		total += uint64(p.Delay)
	}
	return total
}
