package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/rf433/internal/tick"
)

func TestFakeLineRead(t *testing.T) {
	l := NewFakeLine(6)
	l.Samples = []int{1, 0, 1}

	for i, want := range []int{1, 0, 1, 1} {
		got, err := l.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %d, want %d", i, got, want)
		}
	}
}

func TestFakeLineNoSamples(t *testing.T) {
	l := NewFakeLine(6)
	if _, err := l.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeLineError(t *testing.T) {
	l := NewFakeLine(6)
	l.Samples = []int{1}
	l.Err = errors.New("simulated error")

	if _, err := l.Read(); err == nil || err.Error() != "simulated error" {
		t.Errorf("Read: unexpected error: %v", err)
	}
	if err := l.Write(1); err == nil {
		t.Error("Write: expected error")
	}
	if err := l.Subscribe(BothEdges, func(int, tick.Tick) {}); err == nil {
		t.Error("Subscribe: expected error")
	}
}

func TestFakeLineWritesAndGlitch(t *testing.T) {
	l := NewFakeLine(5)
	l.Write(1)
	l.Write(0)
	l.SetGlitchFilter(150 * time.Microsecond)
	l.SetGlitchFilter(0)

	if len(l.Writes) != 2 || l.Writes[0] != 1 || l.Writes[1] != 0 {
		t.Errorf("Writes: got %v, want [1 0]", l.Writes)
	}
	if len(l.GlitchFilters) != 2 || l.GlitchFilters[0] != 150*time.Microsecond || l.GlitchFilters[1] != 0 {
		t.Errorf("GlitchFilters: got %v", l.GlitchFilters)
	}
}

func TestFakeLineEmit(t *testing.T) {
	l := NewFakeLine(6)

	var got []tick.Tick
	if err := l.Subscribe(BothEdges, func(level int, at tick.Tick) {
		got = append(got, at)
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := l.Subscribe(BothEdges, func(int, tick.Tick) {}); err == nil {
		t.Error("second Subscribe should fail")
	}

	l.Emit(1, 10)
	l.Emit(0, 20)
	l.Unsubscribe()
	l.Emit(1, 30)

	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Errorf("delivered ticks: got %v, want [10 20]", got)
	}
	if l.Subscribed() {
		t.Error("should not be subscribed after Unsubscribe")
	}
	if l.SubscribedEdge != BothEdges {
		t.Errorf("SubscribedEdge: got %v", l.SubscribedEdge)
	}
}

func TestFakeLineClose(t *testing.T) {
	l := NewFakeLine(6)
	l.Subscribe(RisingEdge, func(int, tick.Tick) {})

	if err := l.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !l.Closed {
		t.Error("should be closed after Close()")
	}
	if l.Subscribed() {
		t.Error("Close should drop the handler")
	}
}

func TestFakeLineReset(t *testing.T) {
	l := NewFakeLine(6)
	l.Samples = []int{1, 0}
	l.Read()
	l.Write(1)

	l.Reset()

	v, _ := l.Read()
	if v != 1 {
		t.Errorf("after reset: got %d, want 1", v)
	}
	if len(l.Writes) != 0 {
		t.Errorf("after reset: expected no writes, got %v", l.Writes)
	}
}

func TestFakeControllerConfigureLine(t *testing.T) {
	c := NewFakeController()

	l, err := c.ConfigureLine(6, Input, PullDown)
	if err != nil {
		t.Fatalf("ConfigureLine: %v", err)
	}
	if l.Offset() != 6 {
		t.Errorf("Offset: got %d, want 6", l.Offset())
	}
	fl := c.Line(6)
	if fl.Direction != Input || fl.Pull != PullDown {
		t.Errorf("recorded config: got %v/%v", fl.Direction, fl.Pull)
	}

	if _, err := c.ConfigureLine(6, Input, PullDown); err == nil {
		t.Error("expected error configuring a line already in use")
	}

	l.Close()
	if _, err := c.ConfigureLine(6, Output, PullNone); err != nil {
		t.Errorf("reconfigure after close: %v", err)
	}
}

func TestFakeControllerTick(t *testing.T) {
	c := NewFakeController()
	c.SetTick(4242)
	if c.CurrentTick() != 4242 {
		t.Errorf("CurrentTick: got %d, want 4242", c.CurrentTick())
	}
}

func TestFakeControllerConfigureError(t *testing.T) {
	c := NewFakeController()
	c.ConfigureError = errors.New("no chip")
	if _, err := c.ConfigureLine(6, Input, PullNone); err == nil {
		t.Error("expected ConfigureError to be returned")
	}
}

func TestEdgeString(t *testing.T) {
	tests := map[Edge]string{RisingEdge: "rising", FallingEdge: "falling", BothEdges: "both", Edge(0): "unknown"}
	for e, want := range tests {
		if e.String() != want {
			t.Errorf("%d: got %q, want %q", int(e), e.String(), want)
		}
	}
}
