package rf433

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/wave"
)

// Transmitter defaults.
const (
	DefaultRepeats      = 6
	DefaultBits         = 24
	DefaultGap          = 9000
	DefaultShort        = 300
	DefaultLong         = 900
	DefaultPollInterval = 100 * time.Millisecond
)

// Repeat bounds, exclusive.
const (
	minRepeats = 1
	maxRepeats = 100
)

// Transmitter errors.
var (
	ErrBusy           = errors.New("rf433: send already in progress")
	ErrClosed         = errors.New("rf433: closed")
	ErrInvalidRepeats = errors.New("rf433: repeats must be between 2 and 99")
	ErrInvalidTiming  = errors.New("rf433: pulse durations must be positive")
	ErrInvalidBits    = errors.New("rf433: bit count must be between 1 and 64")
	ErrNoWaves        = errors.New("rf433: waveforms not built")
)

// TransmitterConfig configures a Transmitter. Zero fields take the defaults
// above.
type TransmitterConfig struct {
	// Pin is the output line offset; it must be below 32 to fit a pulse mask.
	Pin int

	// Repeats is how many times the code block is sent per Send.
	Repeats int

	// Bits is the code width, sent MSB first.
	Bits int

	// Gap, Short and Long are pulse durations in microseconds.
	Gap   uint32
	Short uint32
	Long  uint32

	// PollInterval is how often the engine busy flag is checked.
	PollInterval time.Duration
}

func (c *TransmitterConfig) applyDefaults() {
	if c.Repeats == 0 {
		c.Repeats = DefaultRepeats
	}
	if c.Bits == 0 {
		c.Bits = DefaultBits
	}
	if c.Gap == 0 {
		c.Gap = DefaultGap
	}
	if c.Short == 0 {
		c.Short = DefaultShort
	}
	if c.Long == 0 {
		c.Long = DefaultLong
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Validate checks the configuration after defaults are applied.
func (c TransmitterConfig) Validate() error {
	c.applyDefaults()
	if c.Pin < 0 || c.Pin > 31 {
		return fmt.Errorf("rf433: tx pin %d outside 0..31", c.Pin)
	}
	if !validRepeats(c.Repeats) {
		return ErrInvalidRepeats
	}
	if c.Bits < 1 || c.Bits > MaxCodeBits {
		return ErrInvalidBits
	}
	if c.PollInterval < 0 {
		return errors.New("rf433: negative poll interval")
	}
	return nil
}

func validRepeats(n int) bool {
	return minRepeats < n && n < maxRepeats
}

// TransmitterOption customises a Transmitter.
type TransmitterOption func(*Transmitter)

// WithClock sets the clock used for busy polling.
func WithClock(c clock.Clock) TransmitterOption {
	return func(t *Transmitter) { t.clock = c }
}

// Transmitter sends codes by chaining three prebuilt waveforms: a preamble
// (short on, gap off), bit 0 (short on, long off) and bit 1 (long on,
// short off). Only one Transmitter should drive an engine at a time.
type Transmitter struct {
	engine wave.Engine
	line   gpio.Line
	clock  clock.Clock

	mu       sync.Mutex
	cfg      TransmitterConfig
	preamble wave.ID
	bit0     wave.ID
	bit1     wave.ID
	built    bool
	sending  bool
	aborted  bool
	stop     chan struct{}
	closed   bool
}

// NewTransmitter configures cfg.Pin as an output driven low and builds the
// waveforms.
func NewTransmitter(ctrl gpio.Controller, engine wave.Engine, cfg TransmitterConfig, opts ...TransmitterOption) (*Transmitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	line, err := ctrl.ConfigureLine(cfg.Pin, gpio.Output, gpio.PullNone)
	if err != nil {
		return nil, fmt.Errorf("configure tx pin %d: %w", cfg.Pin, err)
	}
	if err := line.Write(0); err != nil {
		line.Close()
		return nil, fmt.Errorf("drive tx pin %d low: %w", cfg.Pin, err)
	}

	t := &Transmitter{
		engine: engine,
		line:   line,
		clock:  clock.New(),
		cfg:    cfg,
	}
	for _, o := range opts {
		o(t)
	}

	if err := t.buildWaves(); err != nil {
		line.Close()
		return nil, err
	}
	return t, nil
}

// Config returns the current configuration.
func (t *Transmitter) Config() TransmitterConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// buildWaves must be called with mu held or before t is shared. On failure
// any waveform already committed is deleted.
func (t *Transmitter) buildWaves() error {
	mask := wave.Bit(t.cfg.Pin)
	specs := []struct {
		name    string
		on, off uint32
	}{
		{"preamble", t.cfg.Short, t.cfg.Gap},
		{"bit 0", t.cfg.Short, t.cfg.Long},
		{"bit 1", t.cfg.Long, t.cfg.Short},
	}

	ids := make([]wave.ID, 0, len(specs))
	for _, s := range specs {
		id, err := t.makeWave(mask, s.on, s.off)
		if err != nil {
			for _, done := range ids {
				t.engine.Delete(done)
			}
			return fmt.Errorf("build %s wave: %w", s.name, err)
		}
		ids = append(ids, id)
	}

	t.preamble, t.bit0, t.bit1 = ids[0], ids[1], ids[2]
	t.built = true
	return nil
}

func (t *Transmitter) makeWave(mask, on, off uint32) (wave.ID, error) {
	if _, err := t.engine.AddPulses([]wave.Pulse{
		{On: mask, Delay: on},
		{Off: mask, Delay: off},
	}); err != nil {
		return 0, err
	}
	id, err := t.engine.Commit()
	if err != nil {
		return 0, err
	}
	if id >= wave.MaxID {
		t.engine.Delete(id)
		return 0, fmt.Errorf("%w: %d", wave.ErrIDOutOfRange, id)
	}
	return id, nil
}

// deleteWaves must be called with mu held. Each handle is released once.
func (t *Transmitter) deleteWaves() error {
	if !t.built {
		return nil
	}
	t.built = false

	var errs []error
	for _, id := range []wave.ID{t.preamble, t.bit0, t.bit1} {
		if err := t.engine.Delete(id); err != nil {
			errs = append(errs, fmt.Errorf("delete wave %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Chain returns the chain Send would submit for code: the preamble, a block
// of the code's bits MSB first followed by the preamble, repeated.
func (t *Transmitter) Chain(code uint64) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chain(code)
}

func (t *Transmitter) chain(code uint64) ([]byte, error) {
	if !t.built {
		return nil, ErrNoWaves
	}
	b := wave.NewChainBuilder().Wave(t.preamble).LoopStart()
	for i := t.cfg.Bits - 1; i >= 0; i-- {
		if code&(1<<uint(i)) != 0 {
			b.Wave(t.bit1)
		} else {
			b.Wave(t.bit0)
		}
	}
	return b.Wave(t.preamble).Repeat(t.cfg.Repeats).Bytes()
}

// Start submits code for transmission and returns a channel that receives
// one value when the engine goes idle: nil, or the engine error. Submission
// errors, including ErrBusy while a previous send is in flight, are
// returned directly.
func (t *Transmitter) Start(code uint64) (<-chan error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if t.sending {
		return nil, ErrBusy
	}
	chain, err := t.chain(code)
	if err != nil {
		return nil, err
	}
	if err := t.engine.ChainSend(chain); err != nil {
		return nil, fmt.Errorf("send chain: %w", err)
	}

	t.sending = true
	t.stop = make(chan struct{})
	done := make(chan error, 1)
	go t.wait(t.stop, done, t.cfg.PollInterval)
	return done, nil
}

// wait polls the engine until it is idle or stop is closed.
func (t *Transmitter) wait(stop <-chan struct{}, done chan<- error, interval time.Duration) {
	ticker := t.clock.Ticker(interval)
	defer ticker.Stop()

	// An aborted send reports ErrClosed even if the engine was already idle
	// when polled.
	finish := func(err error) {
		t.mu.Lock()
		if t.aborted {
			err = ErrClosed
		}
		t.sending = false
		t.aborted = false
		t.stop = nil
		t.mu.Unlock()
		done <- err
	}

	for {
		busy, err := t.engine.Busy()
		if err != nil {
			finish(fmt.Errorf("poll busy: %w", err))
			return
		}
		if !busy {
			finish(nil)
			return
		}
		select {
		case <-stop:
			finish(ErrClosed)
			return
		case <-ticker.C:
		}
	}
}

// Send transmits code and waits for completion. If ctx ends first, the
// engine is stopped and ctx's error returned.
func (t *Transmitter) Send(ctx context.Context, code uint64) error {
	done, err := t.Start(code)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		t.abort()
		if err := <-done; err != nil && !errors.Is(err, ErrClosed) {
			return err
		}
		return ctx.Err()
	}
}

// abort marks an in-flight send as aborted before stopping the engine.
func (t *Transmitter) abort() {
	t.mu.Lock()
	if t.stop != nil {
		t.aborted = true
		close(t.stop)
		t.stop = nil
	}
	t.mu.Unlock()

	t.engine.Stop()
}

// Busy reports whether a send is in flight.
func (t *Transmitter) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sending
}

// SetRepeats changes the repeat count; n must satisfy 1 < n < 100.
func (t *Transmitter) SetRepeats(n int) error {
	if !validRepeats(n) {
		return fmt.Errorf("%w: %d", ErrInvalidRepeats, n)
	}
	t.mu.Lock()
	t.cfg.Repeats = n
	t.mu.Unlock()
	return nil
}

// SetBits changes the code width; n must be between 1 and 64.
func (t *Transmitter) SetBits(n int) error {
	if n < 1 || n > MaxCodeBits {
		return fmt.Errorf("%w: %d", ErrInvalidBits, n)
	}
	t.mu.Lock()
	t.cfg.Bits = n
	t.mu.Unlock()
	return nil
}

// SetTimings replaces the pulse durations and rebuilds the waveforms.
// If the rebuild fails no waveforms remain and Send returns ErrNoWaves
// until a later SetTimings succeeds.
func (t *Transmitter) SetTimings(gap, short, long uint32) error {
	if gap == 0 || short == 0 || long == 0 {
		return ErrInvalidTiming
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.sending {
		return ErrBusy
	}
	if err := t.deleteWaves(); err != nil {
		return err
	}
	t.cfg.Gap, t.cfg.Short, t.cfg.Long = gap, short, long
	return t.buildWaves()
}

// Close stops any transmission in progress, deletes the waveforms and
// releases the line. It is safe to call more than once.
func (t *Transmitter) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sending := t.sending
	t.mu.Unlock()

	var errs []error
	if sending {
		t.abort()
	}

	t.mu.Lock()
	if err := t.deleteWaves(); err != nil {
		errs = append(errs, err)
	}
	t.mu.Unlock()

	if err := t.line.Write(0); err != nil {
		errs = append(errs, err)
	}
	if err := t.line.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
