//go:build pigpiod

package pigpiod

/*
#cgo CFLAGS: -pthread -W -Wall -Wno-unused-parameter -O2
#cgo LDFLAGS: -lpigpiod_if2 -lrt
#include <stdlib.h>
#include <pigpiod_if2.h>

extern int addEdgeCallback(int pi, unsigned gpio, unsigned edge, int index);
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/tick"
	"github.com/sweeney/rf433/internal/wave"
)

// Conn is a shared connection to a pigpio daemon. It implements both
// gpio.Controller and wave.Engine.
type Conn struct {
	id  int
	key string

	mu    sync.Mutex
	lines map[int]*Line
}

var (
	connsMu sync.Mutex
	conns   = make(map[string]*connRef)
)

type connRef struct {
	conn *Conn
	refs int
}

// Start connects to the daemon at address:port. Connections to the same
// daemon are shared and reference counted; each Start needs a Close.
func Start(address, port string) (*Conn, error) {
	connsMu.Lock()
	defer connsMu.Unlock()

	key := address + ":" + port
	if ref, ok := conns[key]; ok {
		ref.refs++
		return ref.conn, nil
	}

	caddr := C.CString(address)
	defer C.free(unsafe.Pointer(caddr))
	cport := C.CString(port)
	defer C.free(unsafe.Pointer(cport))

	id := C.pigpio_start(caddr, cport)
	if id < 0 {
		return nil, fmt.Errorf("connect to pigpiod at %s: %w", key, Errno(id))
	}
	c := &Conn{id: int(id), key: key, lines: make(map[int]*Line)}
	conns[key] = &connRef{conn: c, refs: 1}
	return c, nil
}

// Close drops one reference. The last Close releases every line and
// disconnects.
func (c *Conn) Close() error {
	connsMu.Lock()
	defer connsMu.Unlock()

	ref, ok := conns[c.key]
	if !ok || ref.conn != c {
		return nil
	}
	ref.refs--
	if ref.refs > 0 {
		return nil
	}
	delete(conns, c.key)

	c.mu.Lock()
	lines := make([]*Line, 0, len(c.lines))
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
	C.pigpio_stop(C.int(c.id))
	return errors.Join(errs...)
}

func check(r C.int) error {
	if r < 0 {
		return Errno(r)
	}
	return nil
}

// ConfigureLine sets the mode and pull of a BCM line.
func (c *Conn) ConfigureLine(offset int, dir gpio.Direction, pull gpio.Pull) (gpio.Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lines[offset]; ok {
		return nil, fmt.Errorf("line %d already configured", offset)
	}

	mode := C.uint(C.PI_INPUT)
	if dir == gpio.Output {
		mode = C.PI_OUTPUT
	}
	if err := check(C.set_mode(C.int(c.id), C.uint(offset), mode)); err != nil {
		return nil, fmt.Errorf("set mode of pin %d: %w", offset, err)
	}
	if err := check(C.set_pull_up_down(C.int(c.id), C.uint(offset), pud(pull))); err != nil {
		return nil, fmt.Errorf("set pull of pin %d: %w", offset, err)
	}

	l := &Line{conn: c, offset: offset, cb: -1}
	c.lines[offset] = l
	return l, nil
}

func pud(p gpio.Pull) C.uint {
	switch p {
	case gpio.PullUp:
		return C.PI_PUD_UP
	case gpio.PullDown:
		return C.PI_PUD_DOWN
	}
	return C.PI_PUD_OFF
}

// CurrentTick reads the daemon's microsecond tick, the same time base as
// edge callbacks.
func (c *Conn) CurrentTick() tick.Tick {
	return tick.Tick(C.get_current_tick(C.int(c.id)))
}

// AddPulses appends pulses to the waveform under construction.
func (c *Conn) AddPulses(pulses []wave.Pulse) (int, error) {
	if len(pulses) == 0 {
		return 0, wave.ErrNoPulses
	}
	ps := make([]C.gpioPulse_t, len(pulses))
	for i, p := range pulses {
		ps[i].gpioOn = C.uint32_t(p.On)
		ps[i].gpioOff = C.uint32_t(p.Off)
		ps[i].usDelay = C.uint32_t(p.Delay)
	}
	r := C.wave_add_generic(C.int(c.id), C.uint(len(ps)), &ps[0])
	if err := check(r); err != nil {
		return 0, fmt.Errorf("wave_add_generic: %w", err)
	}
	return int(r), nil
}

// Commit creates a waveform from the pending pulses.
func (c *Conn) Commit() (wave.ID, error) {
	r := C.wave_create(C.int(c.id))
	if err := check(r); err != nil {
		return 0, fmt.Errorf("wave_create: %w", err)
	}
	return wave.ID(r), nil
}

// Delete releases a waveform.
func (c *Conn) Delete(id wave.ID) error {
	if err := check(C.wave_delete(C.int(c.id), C.uint(id))); err != nil {
		return fmt.Errorf("wave_delete %d: %w", id, err)
	}
	return nil
}

// ChainSend starts a waveform chain.
func (c *Conn) ChainSend(chain []byte) error {
	if len(chain) == 0 {
		return wave.ErrEmptyChain
	}
	if len(chain) > wave.MaxChainLength {
		return wave.ErrChainTooLong
	}
	r := C.wave_chain(C.int(c.id), (*C.char)(unsafe.Pointer(&chain[0])), C.uint(len(chain)))
	if err := check(r); err != nil {
		return fmt.Errorf("wave_chain: %w", err)
	}
	return nil
}

// Busy reports whether a waveform is being transmitted.
func (c *Conn) Busy() (bool, error) {
	r := C.wave_tx_busy(C.int(c.id))
	if err := check(r); err != nil {
		return false, fmt.Errorf("wave_tx_busy: %w", err)
	}
	return r == 1, nil
}

// Stop aborts the current waveform transmission.
func (c *Conn) Stop() error {
	if err := check(C.wave_tx_stop(C.int(c.id))); err != nil {
		return fmt.Errorf("wave_tx_stop: %w", err)
	}
	return nil
}

// Line is one BCM line on a Conn.
type Line struct {
	conn   *Conn
	offset int

	mu     sync.Mutex
	cb     int
	index  int
	closed bool
}

// Offset returns the BCM line number.
func (l *Line) Offset() int { return l.offset }

// Read returns the line level.
func (l *Line) Read() (int, error) {
	r := C.gpio_read(C.int(l.conn.id), C.uint(l.offset))
	if err := check(r); err != nil {
		return 0, err
	}
	return int(r), nil
}

// Write sets the line level.
func (l *Line) Write(level int) error {
	v := C.uint(0)
	if level != 0 {
		v = 1
	}
	return check(C.gpio_write(C.int(l.conn.id), C.uint(l.offset), v))
}

// SetGlitchFilter ignores level changes shorter than d. Zero disables it.
func (l *Line) SetGlitchFilter(d time.Duration) error {
	us := C.uint(d / time.Microsecond)
	return check(C.set_glitch_filter(C.int(l.conn.id), C.uint(l.offset), us))
}

// Subscribe installs fn for edge reports. Watchdog reports are not
// delivered.
func (l *Line) Subscribe(edge gpio.Edge, fn gpio.EdgeHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cb >= 0 {
		return errors.New("pigpiod: line already subscribed")
	}
	mode := C.uint(C.EITHER_EDGE)
	switch edge {
	case gpio.RisingEdge:
		mode = C.RISING_EDGE
	case gpio.FallingEdge:
		mode = C.FALLING_EDGE
	}

	i := registry.register(fn)
	r := C.addEdgeCallback(C.int(l.conn.id), C.uint(l.offset), mode, C.int(i))
	if err := check(r); err != nil {
		registry.unregister(i)
		return fmt.Errorf("callback_ex on pin %d: %w", l.offset, err)
	}
	l.cb = int(r)
	l.index = i
	return nil
}

// Unsubscribe cancels the edge callback.
func (l *Line) Unsubscribe() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cb < 0 {
		return nil
	}
	err := check(C.callback_cancel(C.uint(l.cb)))
	registry.unregister(l.index)
	l.cb = -1
	return err
}

// Close cancels any callback and forgets the line.
func (l *Line) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.Unsubscribe()

	l.conn.mu.Lock()
	delete(l.conn.lines, l.offset)
	l.conn.mu.Unlock()
	return err
}

//export goEdgeCallback
func goEdgeCallback(pi C.int, pin C.uint, level C.uint, t C.uint32_t, index C.int) {
	registry.dispatch(int(index), uint(level), uint32(t))
}
