// Package rf433 decodes and encodes the pulse-width OOK codes used by cheap
// 433 MHz remotes and sockets.
//
// A code is framed by long gaps. Each bit is one on/off pulse pair: a short
// pulse followed by a long one is 0, long then short is 1. The receiver
// measures the short and long durations from the first bit of every
// transmission, so it copes with senders whose clocks drift.
//
// This package has no I/O of its own beyond the gpio and wave interfaces and
// does not log; dropped transmissions are counted in Stats.
package rf433

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/tick"
)

// Receiver defaults.
const (
	DefaultMinBits      = 8
	DefaultMaxBits      = 32
	DefaultGlitch       = 150 * time.Microsecond
	DefaultGapThreshold = 5000
	DefaultMinRatio     = 1.5
	DefaultShortSlack   = 30
	DefaultLongSlack    = 20
)

// MaxCodeBits is the widest code the accumulator holds.
const MaxCodeBits = 64

// ErrNotReady is returned when reading a result before one has completed.
var ErrNotReady = errors.New("rf433: no code ready")

// ReceiverConfig configures a Receiver. Zero fields take the defaults above.
type ReceiverConfig struct {
	// Pin is the input line offset.
	Pin int

	// MinBits and MaxBits bound the accepted bit count, inclusive.
	MinBits int
	MaxBits int

	// Glitch is the glitch filter applied to the line.
	Glitch time.Duration

	// GapThreshold is the edge length in microseconds above which an edge
	// is treated as a gap between transmissions.
	GapThreshold uint32

	// MinRatio is the long/short calibration ratio below which a
	// transmission is rejected as noise.
	MinRatio float64

	// ShortSlack and LongSlack are the percentage bands around the
	// calibrated short and long durations.
	ShortSlack uint32
	LongSlack  uint32
}

func (c *ReceiverConfig) applyDefaults() {
	if c.MinBits == 0 {
		c.MinBits = DefaultMinBits
	}
	if c.MaxBits == 0 {
		c.MaxBits = DefaultMaxBits
	}
	if c.Glitch == 0 {
		c.Glitch = DefaultGlitch
	}
	if c.GapThreshold == 0 {
		c.GapThreshold = DefaultGapThreshold
	}
	if c.MinRatio == 0 {
		c.MinRatio = DefaultMinRatio
	}
	if c.ShortSlack == 0 {
		c.ShortSlack = DefaultShortSlack
	}
	if c.LongSlack == 0 {
		c.LongSlack = DefaultLongSlack
	}
}

// Validate checks the configuration after defaults are applied.
func (c ReceiverConfig) Validate() error {
	c.applyDefaults()
	if c.MinBits < 1 || c.MaxBits > MaxCodeBits || c.MinBits > c.MaxBits {
		return fmt.Errorf("rf433: bit range %d..%d outside 1..%d", c.MinBits, c.MaxBits, MaxCodeBits)
	}
	if c.MinRatio < 1 {
		return fmt.Errorf("rf433: min ratio %.2f below 1", c.MinRatio)
	}
	if c.ShortSlack >= 100 || c.LongSlack >= 100 {
		return errors.New("rf433: slack percentages must be below 100")
	}
	if c.Glitch < 0 {
		return errors.New("rf433: negative glitch filter")
	}
	return nil
}

// Result is one decoded transmission.
type Result struct {
	Code uint64
	Bits int

	// Gap is the inter-transmission gap that preceded the code, in µs.
	Gap uint32

	// Short and Long are the average short and long pulse durations in µs.
	Short float64
	Long  float64
}

// ResultFunc is called once per accepted transmission.
type ResultFunc func(Result)

// Stats counts transmissions seen by the receiver.
type Stats struct {
	Decoded     int
	BadRatio    int
	OutOfBand   int
	BitsOutside int
}

// Receiver demodulates codes from the edges of one input line.
type Receiver struct {
	cfg  ReceiverConfig
	line gpio.Line

	mu     sync.Mutex
	fn     ResultFunc
	calls  sync.WaitGroup // callbacks in flight
	closed bool
	stats  Stats

	lastEdge tick.Tick
	inCode   bool
	edge     int
	bits     int
	code     uint64
	gap      uint32

	firstLen uint32
	evenLen  uint32
	sumShort uint64
	sumLong  uint64
	min0     uint64
	max0     uint64
	min1     uint64
	max1     uint64

	last  Result
	ready bool
}

// NewReceiver configures cfg.Pin as an input, applies the glitch filter, and
// starts decoding. fn may be nil; results are then only available through
// Ready and Details.
func NewReceiver(ctrl gpio.Controller, cfg ReceiverConfig, fn ResultFunc) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	line, err := ctrl.ConfigureLine(cfg.Pin, gpio.Input, gpio.PullNone)
	if err != nil {
		return nil, fmt.Errorf("configure rx pin %d: %w", cfg.Pin, err)
	}

	r := &Receiver{
		cfg:      cfg,
		line:     line,
		fn:       fn,
		lastEdge: ctrl.CurrentTick(),
	}

	if err := line.SetGlitchFilter(cfg.Glitch); err != nil {
		line.Close()
		return nil, fmt.Errorf("set glitch filter: %w", err)
	}
	if err := line.Subscribe(gpio.BothEdges, r.HandleEdge); err != nil {
		line.SetGlitchFilter(0)
		line.Close()
		return nil, fmt.Errorf("subscribe rx pin %d: %w", cfg.Pin, err)
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Receiver) Config() ReceiverConfig {
	return r.cfg
}

// HandleEdge advances the decoder by one edge. Edges must arrive in
// timestamp order; calls are serialized.
func (r *Receiver) HandleEdge(level int, t tick.Tick) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	res, fn, done := r.step(t)
	call := done && fn != nil
	if call {
		r.calls.Add(1)
	}
	r.mu.Unlock()

	if call {
		defer r.calls.Done()
		fn(res)
	}
}

// step must be called with mu held. It reports a result when a gap closes a
// valid transmission.
func (r *Receiver) step(t tick.Tick) (Result, ResultFunc, bool) {
	edgeLen := tick.Diff(r.lastEdge, t)
	r.lastEdge = t

	if edgeLen > r.cfg.GapThreshold {
		var res Result
		done := false
		if r.inCode {
			if r.cfg.MinBits <= r.bits && r.bits <= r.cfg.MaxBits {
				res = Result{
					Code:  r.code,
					Bits:  r.bits,
					Gap:   r.gap,
					Short: float64(r.sumShort) / float64(r.bits),
					Long:  float64(r.sumLong) / float64(r.bits),
				}
				r.last = res
				r.ready = true
				r.stats.Decoded++
				done = true
			} else {
				r.stats.BitsOutside++
			}
		}
		r.inCode = true
		r.gap = edgeLen
		r.edge = 0
		r.bits = 0
		r.code = 0
		return res, r.fn, done
	}

	if !r.inCode {
		return Result{}, nil, false
	}

	switch r.edge {
	case 0:
		r.firstLen = edgeLen
	case 1:
		r.calibrate(r.firstLen, edgeLen)
	}

	if r.edge%2 == 1 {
		bit := r.classify(r.evenLen, edgeLen)
		r.code <<= 1
		switch bit {
		case 1:
			r.code |= 1
		case 0:
		default:
			if r.inCode {
				r.stats.OutOfBand++
			}
			r.inCode = false
		}
	} else {
		r.evenLen = edgeLen
	}
	r.edge++
	return Result{}, nil, false
}

// calibrate derives the classification bands from the first pulse pair.
func (r *Receiver) calibrate(e0, e1 uint32) {
	short, long := order(e0, e1)
	r.sumShort = 0
	r.sumLong = 0
	r.bits = 0

	if short == 0 || float64(long)/float64(short) < r.cfg.MinRatio {
		r.stats.BadRatio++
		r.inCode = false
	}

	s, l := uint64(short), uint64(long)
	slack0 := s * uint64(r.cfg.ShortSlack) / 100
	slack1 := l * uint64(r.cfg.LongSlack) / 100
	r.min0 = s - slack0
	r.max0 = s + slack0
	r.min1 = l - slack1
	r.max1 = l + slack1
}

// classify returns 0 or 1 for a valid pair and 2 otherwise. The 0-band is
// checked first. The pair also feeds the running averages, valid or not.
func (r *Receiver) classify(e0, e1 uint32) int {
	short, long := order(e0, e1)
	if r.bits == 0 {
		r.sumShort = uint64(short)
		r.sumLong = uint64(long)
	} else {
		r.sumShort += uint64(short)
		r.sumLong += uint64(long)
	}
	r.bits++

	switch {
	case r.in0(e0) && r.in1(e1):
		return 0
	case r.in0(e1) && r.in1(e0):
		return 1
	}
	return 2
}

func (r *Receiver) in0(d uint32) bool { return r.min0 < uint64(d) && uint64(d) < r.max0 }
func (r *Receiver) in1(d uint32) bool { return r.min1 < uint64(d) && uint64(d) < r.max1 }

func order(a, b uint32) (uint32, uint32) {
	if a < b {
		return a, b
	}
	return b, a
}

// Ready reports whether a decoded result is waiting. It does not consume it.
func (r *Receiver) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// Code consumes the waiting result and returns its code.
func (r *Receiver) Code() (uint64, error) {
	res, err := r.Details()
	return res.Code, err
}

// Details consumes the waiting result.
func (r *Receiver) Details() (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return Result{}, ErrNotReady
	}
	r.ready = false
	return r.last, nil
}

// Stats returns the transmission counters.
func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close disables the glitch filter, stops edge delivery, detaches the
// callback and releases the line. It waits for a callback already running,
// so no callback starts or runs after Close returns; it must therefore not
// be called from the callback. It is safe to call more than once and while
// a transmission is being decoded.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.fn = nil
	r.inCode = false
	r.mu.Unlock()

	r.calls.Wait()

	var errs []error
	if err := r.line.Unsubscribe(); err != nil {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}
	if err := r.line.SetGlitchFilter(0); err != nil {
		errs = append(errs, fmt.Errorf("clear glitch filter: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line: %w", err))
	}
	return errors.Join(errs...)
}
