package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/rf433/internal/tick"
)

// FakeController is a test double that hands out FakeLines.
type FakeController struct {
	mu sync.Mutex

	// Lines holds every line configured so far, by offset.
	Lines map[int]*FakeLine

	// ConfigureError, if set, will be returned by ConfigureLine.
	ConfigureError error

	// Closed tracks if Close was called.
	Closed bool

	now tick.Tick
}

// NewFakeController creates a FakeController with no lines.
func NewFakeController() *FakeController {
	return &FakeController{Lines: make(map[int]*FakeLine)}
}

// ConfigureLine returns the FakeLine for offset, creating it on first use.
func (f *FakeController) ConfigureLine(offset int, dir Direction, pull Pull) (Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ConfigureError != nil {
		return nil, f.ConfigureError
	}
	if l, ok := f.Lines[offset]; ok && !l.Closed {
		return nil, fmt.Errorf("line %d already in use", offset)
	}
	l := &FakeLine{offset: offset, Direction: dir, Pull: pull}
	f.Lines[offset] = l
	return l, nil
}

// SetTick sets the value returned by CurrentTick.
func (f *FakeController) SetTick(t tick.Tick) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// CurrentTick returns the tick set by SetTick.
func (f *FakeController) CurrentTick() tick.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Close marks the controller as closed.
func (f *FakeController) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Line returns the line configured at offset, or nil.
func (f *FakeController) Line(offset int) *FakeLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Lines[offset]
}

// FakeLine records every call made against it.
type FakeLine struct {
	mu     sync.Mutex
	offset int

	Direction Direction
	Pull      Pull

	// Samples contains scripted levels to return from Read.
	// Each call consumes the next sample; the last one repeats.
	Samples []int
	index   int

	// Writes records every level written, in order.
	Writes []int

	// GlitchFilters records every glitch filter duration set, in order.
	GlitchFilters []time.Duration

	// Subscribes and Unsubscribes count the calls. Unsubscribe calls made
	// while not subscribed are counted too.
	Subscribes   int
	Unsubscribes int

	// SubscribedEdge is the edge mode of the last Subscribe.
	SubscribedEdge Edge

	// Err, if set, is returned by every method other than Offset and Close.
	Err error

	// Closed tracks if Close was called.
	Closed bool

	handler EdgeHandler
}

// NewFakeLine creates a standalone FakeLine.
func NewFakeLine(offset int) *FakeLine {
	return &FakeLine{offset: offset}
}

// Offset returns the line number.
func (l *FakeLine) Offset() int { return l.offset }

// Read returns the next scripted sample.
func (l *FakeLine) Read() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Err != nil {
		return 0, l.Err
	}
	if len(l.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	v := l.Samples[l.index]
	if l.index < len(l.Samples)-1 {
		l.index++
	}
	return v, nil
}

// Write records level.
func (l *FakeLine) Write(level int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.Writes = append(l.Writes, level)
	return nil
}

// SetGlitchFilter records d.
func (l *FakeLine) SetGlitchFilter(d time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.GlitchFilters = append(l.GlitchFilters, d)
	return nil
}

// Subscribe installs fn as the edge handler.
func (l *FakeLine) Subscribe(edge Edge, fn EdgeHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	if l.handler != nil {
		return errors.New("already subscribed")
	}
	l.Subscribes++
	l.SubscribedEdge = edge
	l.handler = fn
	return nil
}

// Unsubscribe removes the edge handler.
func (l *FakeLine) Unsubscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Unsubscribes++
	l.handler = nil
	return nil
}

// Subscribed reports whether a handler is installed.
func (l *FakeLine) Subscribed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handler != nil
}

// Emit delivers an edge to the handler, if any. The handler runs on the
// caller's goroutine, so a sequence of Emit calls is delivered in order.
func (l *FakeLine) Emit(level int, t tick.Tick) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(level, t)
	}
}

// Close marks the line as closed and drops the handler.
func (l *FakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Closed = true
	l.handler = nil
	return nil
}

// Reset rewinds Read to the first sample and clears recorded calls.
func (l *FakeLine) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index = 0
	l.Writes = nil
	l.GlitchFilters = nil
	l.Subscribes = 0
	l.Unsubscribes = 0
	l.Closed = false
}
