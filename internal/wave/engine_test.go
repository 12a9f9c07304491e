package wave

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/rf433/internal/gpio"
)

func TestFakeEngineLifecycle(t *testing.T) {
	f := NewFakeEngine()

	n, err := f.AddPulses([]Pulse{{On: 1, Delay: 10}, {Off: 1, Delay: 10}})
	if err != nil || n != 2 {
		t.Fatalf("AddPulses: n=%d err=%v", n, err)
	}
	id, err := f.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if f.Live() != 1 {
		t.Errorf("Live: got %d, want 1", f.Live())
	}
	if _, err := f.Commit(); !errors.Is(err, ErrNoPulses) {
		t.Errorf("empty Commit: got %v", err)
	}

	f.BusyPolls = 2
	if err := f.ChainSend([]byte{byte(id)}); err != nil {
		t.Fatalf("ChainSend: %v", err)
	}
	for i, want := range []bool{true, true, false} {
		busy, _ := f.Busy()
		if busy != want {
			t.Errorf("poll %d: got %v, want %v", i, busy, want)
		}
	}

	if err := f.Delete(id); err != nil {
		t.Errorf("Delete: %v", err)
	}
	if err := f.Delete(id); !errors.Is(err, ErrUnknownID) {
		t.Errorf("second Delete: got %v", err)
	}
	if f.DeleteCount(id) != 2 {
		t.Errorf("DeleteCount: got %d, want 2", f.DeleteCount(id))
	}
}

func TestFakeEngineCommitFailAfter(t *testing.T) {
	f := NewFakeEngine()
	f.CommitError = errors.New("out of wave slots")
	f.CommitFailAfter = 1

	f.AddPulses([]Pulse{{Delay: 1}})
	if _, err := f.Commit(); err != nil {
		t.Fatalf("first Commit should succeed: %v", err)
	}
	f.AddPulses([]Pulse{{Delay: 1}})
	if _, err := f.Commit(); err == nil {
		t.Error("second Commit should fail")
	}
}

func TestSoftEngineRejectsForeignLines(t *testing.T) {
	e := NewSoftEngine(clock.New(), gpio.NewFakeLine(5))
	if _, err := e.AddPulses([]Pulse{{On: Bit(6), Delay: 1}}); err == nil {
		t.Error("expected error for a line the engine does not drive")
	}
}

func TestSoftEnginePlaysChain(t *testing.T) {
	line := gpio.NewFakeLine(5)
	e := NewSoftEngine(clock.New(), line)

	e.AddPulses([]Pulse{{On: Bit(5), Delay: 5}, {Off: Bit(5), Delay: 5}})
	id, err := e.Commit()
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	chain, _ := NewChainBuilder().LoopStart().Wave(id).Repeat(3).Bytes()
	if err := e.ChainSend(chain); err != nil {
		t.Fatalf("ChainSend: %v", err)
	}

	waitIdle(t, e)

	want := []int{1, 0, 1, 0, 1, 0}
	if len(line.Writes) != len(want) {
		t.Fatalf("Writes: got %v, want %v", line.Writes, want)
	}
	for i := range want {
		if line.Writes[i] != want[i] {
			t.Errorf("write %d: got %d, want %d", i, line.Writes[i], want[i])
		}
	}
}

func TestSoftEngineUnknownWave(t *testing.T) {
	e := NewSoftEngine(clock.New(), gpio.NewFakeLine(5))
	if err := e.ChainSend([]byte{3}); !errors.Is(err, ErrUnknownID) {
		t.Errorf("got %v, want ErrUnknownID", err)
	}
}

func TestSoftEngineStopForever(t *testing.T) {
	line := gpio.NewFakeLine(5)
	e := NewSoftEngine(clock.New(), line)

	e.AddPulses([]Pulse{{On: Bit(5), Delay: 50}, {Off: Bit(5), Delay: 50}})
	id, _ := e.Commit()
	chain, _ := NewChainBuilder().LoopStart().Wave(id).Forever().Bytes()

	if err := e.ChainSend(chain); err != nil {
		t.Fatalf("ChainSend: %v", err)
	}
	if err := e.ChainSend(chain); !errors.Is(err, ErrBusy) {
		t.Errorf("second ChainSend: got %v, want ErrBusy", err)
	}
	if busy, _ := e.Busy(); !busy {
		t.Error("expected engine to be busy")
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if busy, err := e.Busy(); busy || err != nil {
		t.Errorf("after Stop: busy=%v err=%v", busy, err)
	}
	// Stop when idle is a no-op.
	if err := e.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSoftEngineDeleteAndReuseID(t *testing.T) {
	e := NewSoftEngine(clock.New(), gpio.NewFakeLine(5))
	e.AddPulses([]Pulse{{Delay: 1}})
	a, _ := e.Commit()
	if err := e.Delete(a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	e.AddPulses([]Pulse{{Delay: 1}})
	b, _ := e.Commit()
	if a != b {
		t.Errorf("expected freed id %d to be reused, got %d", a, b)
	}
	if err := e.Delete(99); !errors.Is(err, ErrUnknownID) {
		t.Errorf("Delete unknown: got %v", err)
	}
}

func waitIdle(t *testing.T, e Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		busy, err := e.Busy()
		if err != nil {
			t.Fatalf("Busy: %v", err)
		}
		if !busy {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("engine still busy after 2s")
}
