// Package pigpiod drives GPIO lines and the DMA waveform engine of a
// Raspberry Pi through the pigpio daemon (pigpiod_if2). The cgo backend is
// only built with the pigpiod build tag; without it Start reports
// ErrUnsupported.
package pigpiod

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/tick"
	"github.com/sweeney/rf433/internal/wave"
)

var (
	_ gpio.Controller = (*Conn)(nil)
	_ wave.Engine     = (*Conn)(nil)
)

// ErrUnsupported is returned when the binary was built without pigpiod.
var ErrUnsupported = errors.New("pigpiod: not built with the pigpiod tag")

// watchdogLevel is the level pigpio reports when a watchdog fires instead of
// an edge.
const watchdogLevel = 2

// Errno is a negative pigpio return code.
type Errno int

func (e Errno) Error() string {
	return fmt.Sprintf("pigpiod_if2 error %d", int(e))
}

// callbacks maps the index handed to C as user data to the Go handler.
type callbacks struct {
	mu    sync.Mutex
	fns   map[int]gpio.EdgeHandler
	index int
}

var registry = &callbacks{fns: make(map[int]gpio.EdgeHandler)}

func (c *callbacks) register(fn gpio.EdgeHandler) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index++
	for c.fns[c.index] != nil {
		c.index++
	}
	c.fns[c.index] = fn
	return c.index
}

func (c *callbacks) unregister(i int) {
	c.mu.Lock()
	delete(c.fns, i)
	c.mu.Unlock()
}

func (c *callbacks) lookup(i int) gpio.EdgeHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fns[i]
}

// dispatch delivers one pigpio report to handler i. Watchdog reports and
// reports for unregistered handlers are dropped.
func (c *callbacks) dispatch(i int, level uint, t uint32) {
	if level == watchdogLevel {
		return
	}
	fn := c.lookup(i)
	if fn == nil {
		return
	}
	fn(int(level), tick.Tick(t))
}
