package wave

import (
	"errors"
	"fmt"
)

// Chain control encoding. A chain entry is either a waveform ID or the
// escape byte followed by an opcode and its arguments.
const (
	Escape byte = 255

	OpLoopStart byte = 0 // 255 0
	OpRepeat    byte = 1 // 255 1 x y: repeat the open loop x+256y times
	OpDelay     byte = 2 // 255 2 x y: delay x+256y microseconds
	OpForever   byte = 3 // 255 3: repeat the open loop forever; must be last
)

// Chain limits, matching what the pigpio engine accepts.
const (
	MaxID          = 250
	MaxChainLength = 600
	MaxLoopDepth   = 4
	MaxCount       = 0xFFFF
)

// Chain errors.
var (
	ErrChainTooLong   = errors.New("wave: chain too long")
	ErrIDOutOfRange   = errors.New("wave: waveform id not chainable")
	ErrCountRange     = errors.New("wave: count out of range")
	ErrLoopDepth      = errors.New("wave: loops nested too deeply")
	ErrUnbalanced     = errors.New("wave: unbalanced loop")
	ErrTruncated      = errors.New("wave: truncated control sequence")
	ErrBadOpcode      = errors.New("wave: unknown control opcode")
	ErrForeverNotLast = errors.New("wave: loop forever must be the final entry")
)

// ChainBuilder assembles a chain. The first error sticks and is reported by
// Bytes.
type ChainBuilder struct {
	buf   []byte
	depth int
	ended bool
	err   error
}

// NewChainBuilder returns an empty builder.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{}
}

// Wave appends a waveform reference.
func (b *ChainBuilder) Wave(id ID) *ChainBuilder {
	if id >= MaxID {
		b.fail(fmt.Errorf("%w: %d", ErrIDOutOfRange, id))
		return b
	}
	return b.put(byte(id))
}

// LoopStart opens a block.
func (b *ChainBuilder) LoopStart() *ChainBuilder {
	if b.depth >= MaxLoopDepth {
		b.fail(ErrLoopDepth)
		return b
	}
	b.depth++
	return b.put(Escape, OpLoopStart)
}

// Repeat closes the open block, transmitting it n times.
func (b *ChainBuilder) Repeat(n int) *ChainBuilder {
	if n < 0 || n > MaxCount {
		b.fail(fmt.Errorf("%w: repeat %d", ErrCountRange, n))
		return b
	}
	if b.depth == 0 {
		b.fail(ErrUnbalanced)
		return b
	}
	b.depth--
	return b.put(Escape, OpRepeat, byte(n&0xFF), byte(n>>8))
}

// Delay inserts a pause of us microseconds.
func (b *ChainBuilder) Delay(us int) *ChainBuilder {
	if us < 0 || us > MaxCount {
		b.fail(fmt.Errorf("%w: delay %d", ErrCountRange, us))
		return b
	}
	return b.put(Escape, OpDelay, byte(us&0xFF), byte(us>>8))
}

// Forever closes the open block and repeats it until stopped. Nothing may
// follow it.
func (b *ChainBuilder) Forever() *ChainBuilder {
	if b.depth == 0 {
		b.fail(ErrUnbalanced)
		return b
	}
	b.depth--
	b.put(Escape, OpForever)
	b.ended = true
	return b
}

// Bytes returns the encoded chain.
func (b *ChainBuilder) Bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.depth != 0 && !b.ended {
		return nil, ErrUnbalanced
	}
	if len(b.buf) == 0 {
		return nil, ErrEmptyChain
	}
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out, nil
}

func (b *ChainBuilder) put(p ...byte) *ChainBuilder {
	if b.err != nil {
		return b
	}
	if b.ended {
		b.fail(ErrForeverNotLast)
		return b
	}
	if len(b.buf)+len(p) > MaxChainLength {
		b.fail(ErrChainTooLong)
		return b
	}
	b.buf = append(b.buf, p...)
	return b
}

func (b *ChainBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// StepKind tells the variants of Step apart.
type StepKind int

const (
	StepWave StepKind = iota
	StepDelay
	StepLoop
)

// Step is one node of a parsed chain.
type Step struct {
	Kind StepKind

	// Wave is set for StepWave.
	Wave ID

	// Delay is set for StepDelay, in microseconds.
	Delay uint32

	// Body, Count and Forever are set for StepLoop.
	Body    []Step
	Count   int
	Forever bool
}

// Parse decodes a chain into a tree of steps.
func Parse(chain []byte) ([]Step, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	if len(chain) > MaxChainLength {
		return nil, ErrChainTooLong
	}

	type frame struct{ steps []Step }
	stack := []frame{{}}
	top := func() *frame { return &stack[len(stack)-1] }

	for i := 0; i < len(chain); i++ {
		c := chain[i]
		if c != Escape {
			top().steps = append(top().steps, Step{Kind: StepWave, Wave: ID(c)})
			continue
		}
		if i+1 >= len(chain) {
			return nil, ErrTruncated
		}
		op := chain[i+1]
		i++
		switch op {
		case OpLoopStart:
			if len(stack) > MaxLoopDepth {
				return nil, ErrLoopDepth
			}
			stack = append(stack, frame{})
		case OpRepeat, OpDelay:
			if i+2 >= len(chain) {
				return nil, ErrTruncated
			}
			n := int(chain[i+1]) | int(chain[i+2])<<8
			i += 2
			if op == OpDelay {
				top().steps = append(top().steps, Step{Kind: StepDelay, Delay: uint32(n)})
				continue
			}
			if len(stack) == 1 {
				return nil, ErrUnbalanced
			}
			body := top().steps
			stack = stack[:len(stack)-1]
			top().steps = append(top().steps, Step{Kind: StepLoop, Body: body, Count: n})
		case OpForever:
			if len(stack) == 1 {
				return nil, ErrUnbalanced
			}
			if i != len(chain)-1 {
				return nil, ErrForeverNotLast
			}
			body := top().steps
			stack = stack[:len(stack)-1]
			top().steps = append(top().steps, Step{Kind: StepLoop, Body: body, Forever: true})
		default:
			return nil, fmt.Errorf("%w: %d", ErrBadOpcode, op)
		}
	}
	if len(stack) != 1 {
		return nil, ErrUnbalanced
	}
	return stack[0].steps, nil
}

// Waves returns the waveform IDs referenced by steps in transmission order,
// expanding each loop body once.
func Waves(steps []Step) []ID {
	var ids []ID
	for _, s := range steps {
		switch s.Kind {
		case StepWave:
			ids = append(ids, s.Wave)
		case StepLoop:
			ids = append(ids, Waves(s.Body)...)
		}
	}
	return ids
}
