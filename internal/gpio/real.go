//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"github.com/sweeney/rf433/internal/tick"
)

// Chip drives lines through the Linux GPIO character device.
// Edge timestamps come from the kernel on CLOCK_MONOTONIC, which is also the
// source of CurrentTick, so ticks from both share one time base.
type Chip struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[int]*ChipLine
}

// NewChip opens the named GPIO chip, e.g. "gpiochip0".
func NewChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer("rf433"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip, lines: make(map[int]*ChipLine)}, nil
}

// ConfigureLine requests a line as input or output with the given bias.
// Input lines are requested with an event handler installed so that edge
// detection can later be switched on and off with Reconfigure.
func (c *Chip) ConfigureLine(offset int, dir Direction, pull Pull) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lines[offset]; ok {
		return nil, fmt.Errorf("line %d already requested", offset)
	}

	cl := &ChipLine{offset: offset, owner: c, dir: dir, pull: pull}
	opts := []gpiocdev.LineReqOption{biasOption(pull)}
	if dir == Output {
		opts = append(opts, gpiocdev.AsOutput(0))
	} else {
		opts = append(opts, gpiocdev.AsInput, gpiocdev.WithEventHandler(cl.dispatch))
	}

	l, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", offset, err)
	}
	cl.line = l
	c.lines[offset] = cl
	return cl, nil
}

// CurrentTick reads CLOCK_MONOTONIC as a microsecond tick.
func (c *Chip) CurrentTick() tick.Tick {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return tick.FromDuration(time.Duration(ts.Nano()))
}

// Close releases every open line and the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	lines := make([]*ChipLine, 0, len(c.lines))
	for _, l := range c.lines {
		lines = append(lines, l)
	}
	c.mu.Unlock()

	var errs []error
	for _, l := range lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Chip) release(offset int) {
	c.mu.Lock()
	delete(c.lines, offset)
	c.mu.Unlock()
}

// ChipLine is a line requested from a Chip.
type ChipLine struct {
	offset int
	owner  *Chip
	dir    Direction
	pull   Pull
	line   *gpiocdev.Line

	mu      sync.Mutex
	handler EdgeHandler
	closed  bool
}

// Offset returns the line number.
func (l *ChipLine) Offset() int { return l.offset }

// Read returns the current line value.
func (l *ChipLine) Read() (int, error) {
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", l.offset, err)
	}
	return v, nil
}

// Write sets the line value.
func (l *ChipLine) Write(level int) error {
	if err := l.line.SetValue(level); err != nil {
		return fmt.Errorf("write pin %d: %w", l.offset, err)
	}
	return nil
}

// SetGlitchFilter maps to the kernel debounce period.
func (l *ChipLine) SetGlitchFilter(d time.Duration) error {
	if err := l.line.Reconfigure(gpiocdev.WithDebounce(d)); err != nil {
		return fmt.Errorf("set debounce on pin %d: %w", l.offset, err)
	}
	return nil
}

// Subscribe enables edge detection and routes events to fn.
func (l *ChipLine) Subscribe(edge Edge, fn EdgeHandler) error {
	if l.dir != Input {
		return fmt.Errorf("pin %d is not an input", l.offset)
	}

	l.mu.Lock()
	if l.handler != nil {
		l.mu.Unlock()
		return fmt.Errorf("pin %d already subscribed", l.offset)
	}
	l.handler = fn
	l.mu.Unlock()

	if err := l.line.Reconfigure(edgeOption(edge)); err != nil {
		l.mu.Lock()
		l.handler = nil
		l.mu.Unlock()
		return fmt.Errorf("enable edges on pin %d: %w", l.offset, err)
	}
	return nil
}

// Unsubscribe disables edge detection.
func (l *ChipLine) Unsubscribe() error {
	l.mu.Lock()
	subscribed := l.handler != nil
	l.handler = nil
	l.mu.Unlock()

	if !subscribed {
		return nil
	}
	if err := l.line.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		return fmt.Errorf("disable edges on pin %d: %w", l.offset, err)
	}
	return nil
}

// Close reconfigures the line to input with pull-down (matching Pi boot
// defaults) and releases it.
func (l *ChipLine) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.handler = nil
	l.mu.Unlock()

	var errs []error
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.offset, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
	}
	l.owner.release(l.offset)
	return errors.Join(errs...)
}

// dispatch runs on the gpiocdev event goroutine, one event at a time.
func (l *ChipLine) dispatch(evt gpiocdev.LineEvent) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h == nil {
		return
	}
	level := 0
	if evt.Type == gpiocdev.LineEventRisingEdge {
		level = 1
	}
	h(level, tick.FromDuration(evt.Timestamp))
}

func biasOption(p Pull) gpiocdev.LineBias {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	}
	return gpiocdev.WithBiasDisabled
}

func edgeOption(e Edge) gpiocdev.LineEdge {
	switch e {
	case RisingEdge:
		return gpiocdev.WithRisingEdge
	case FallingEdge:
		return gpiocdev.WithFallingEdge
	}
	return gpiocdev.WithBothEdges
}
