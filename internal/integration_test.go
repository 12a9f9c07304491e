package internal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sweeney/rf433/internal/gpio"
	"github.com/sweeney/rf433/internal/logic"
	"github.com/sweeney/rf433/internal/mqtt"
	"github.com/sweeney/rf433/internal/rf433"
	"github.com/sweeney/rf433/internal/status"
	"github.com/sweeney/rf433/internal/tick"
	"github.com/sweeney/rf433/internal/wave"
)

const (
	pinRX = 6
	pinTX = 5
)

// rig wires a transmitter and a receiver to fakes, with the detector and
// publisher behind the receiver as in the daemon.
type rig struct {
	t        *testing.T
	ctrl     *gpio.FakeController
	engine   *wave.FakeEngine
	tx       *rf433.Transmitter
	rx       *rf433.Receiver
	detector *logic.Detector
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker

	now  time.Time
	step time.Duration
	at   tick.Tick
}

func newRig(t *testing.T, step time.Duration) *rig {
	t.Helper()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &rig{
		t:        t,
		ctrl:     gpio.NewFakeController(),
		engine:   wave.NewFakeEngine(),
		detector: logic.NewDetector(500*time.Millisecond, start),
		pub:      mqtt.NewFakePublisher(),
		tracker:  status.NewTracker(start, status.Config{RXPin: pinRX, TXPin: pinTX}),
		now:      start,
		step:     step,
	}

	var err error
	r.tx, err = rf433.NewTransmitter(r.ctrl, r.engine, rf433.TransmitterConfig{Pin: pinTX, Repeats: 3})
	if err != nil {
		t.Fatalf("NewTransmitter: %v", err)
	}
	t.Cleanup(func() { r.tx.Close() })

	// Decodes arrive synchronously from Emit on the test goroutine.
	r.rx, err = rf433.NewReceiver(r.ctrl, rf433.ReceiverConfig{Pin: pinRX, MinBits: 24, MaxBits: 24}, func(res rf433.Result) {
		r.now = r.now.Add(r.step)
		event, ok := r.detector.Process(logic.Input{
			Code:  res.Code,
			Bits:  res.Bits,
			Gap:   res.Gap,
			Short: res.Short,
			Long:  res.Long,
			Time:  r.now,
		})
		if !ok {
			return
		}
		r.tracker.RecordEvent(event)
		if err := r.pub.Publish(event); err != nil {
			t.Errorf("publish: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	t.Cleanup(func() { r.rx.Close() })

	if err := r.pub.SubscribeSend(r.send); err != nil {
		t.Fatalf("SubscribeSend: %v", err)
	}
	return r
}

// send transmits req and replays the chain the engine received onto the
// receiver's line, as the radio link would.
func (r *rig) send(req mqtt.SendRequest) {
	if req.Repeats != 0 {
		if err := r.tx.SetRepeats(req.Repeats); err != nil {
			r.t.Errorf("SetRepeats: %v", err)
			return
		}
	}
	done, err := r.tx.Start(req.Code)
	if err != nil {
		r.t.Errorf("Start: %v", err)
		return
	}
	if err := <-done; err != nil {
		r.t.Errorf("send: %v", err)
		return
	}
	r.now = r.now.Add(r.step)
	sent := r.detector.Sent(req.Code, r.tx.Config().Bits, r.now)
	r.tracker.RecordEvent(sent)
	r.pub.Publish(sent)

	r.replay(r.engine.Chains[len(r.engine.Chains)-1])
}

func (r *rig) replay(chain []byte) {
	steps, err := wave.Parse(chain)
	if err != nil {
		r.t.Fatalf("Parse: %v", err)
	}
	pulses, err := wave.Render(steps, r.engine.Waves)
	if err != nil {
		r.t.Fatalf("Render: %v", err)
	}

	line := r.ctrl.Line(pinRX)
	mask := wave.Bit(pinTX)
	level := 0
	pending := uint32(20000) // idle before the transmission
	for _, p := range pulses {
		next := level
		if p.On&mask != 0 {
			next = 1
		}
		if p.Off&mask != 0 {
			next = 0
		}
		if next != level {
			r.at = r.at.Add(pending)
			line.Emit(next, r.at)
			pending = 0
			level = next
		}
		pending += p.Delay
	}
	r.at = r.at.Add(pending)
	line.Emit(1, r.at)
	r.at = r.at.Add(20000)
	line.Emit(0, r.at)
}

func (r *rig) deliver(payload string) {
	r.t.Helper()
	if err := r.pub.Deliver([]byte(payload)); err != nil {
		r.t.Fatalf("Deliver(%s): %v", payload, err)
	}
}

// TestIntegrationSendRequestRoundTrip sends a code requested over MQTT and
// decodes it back through the receiver.
func TestIntegrationSendRequestRoundTrip(t *testing.T) {
	r := newRig(t, 50*time.Millisecond)

	r.deliver("0x1511")

	// One SENT, then three decodes of which two are repeats.
	if len(r.pub.Events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(r.pub.Events), r.pub.Events)
	}
	sent, code := r.pub.Events[0], r.pub.Events[1]
	if sent.Type != logic.EventSent || sent.Code != 0x1511 || sent.Bits != 24 {
		t.Errorf("unexpected SENT event: %+v", sent)
	}
	if code.Type != logic.EventCode || code.Code != 0x1511 || code.Bits != 24 {
		t.Errorf("unexpected CODE event: %+v", code)
	}
	if code.Short != 300 || code.Long != 900 {
		t.Errorf("timings: got %.1f/%.1f, want 300/900", code.Short, code.Long)
	}

	counts := r.detector.Counts()
	if counts != (logic.EventCounts{Codes: 1, Repeats: 2, Sent: 1}) {
		t.Errorf("unexpected counts: %+v", counts)
	}
	if s := r.rx.Stats(); s.Decoded != 3 || s.BadRatio != 0 || s.OutOfBand != 0 {
		t.Errorf("unexpected receiver stats: %+v", s)
	}
}

func TestIntegrationCodePayloadFormat(t *testing.T) {
	r := newRig(t, 50*time.Millisecond)
	r.deliver(`{"code": 5393}`)

	if len(r.pub.Payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(r.pub.Payloads))
	}

	var p mqtt.Payload
	if err := json.Unmarshal(r.pub.Payloads[1], &p); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if p.RF433.Event != "CODE" || p.RF433.Code != 5393 || p.RF433.Hex != "0x1511" || p.RF433.Bits != 24 {
		t.Errorf("unexpected payload: %s", r.pub.Payloads[1])
	}
	if p.RF433.Gap != 9000 {
		t.Errorf("gap: got %d, want 9000", p.RF433.Gap)
	}
}

func TestIntegrationSeparatePressesReported(t *testing.T) {
	// Decodes a second apart are outside the holdoff.
	r := newRig(t, time.Second)

	r.deliver(`{"code": 42, "repeats": 2}`)
	r.deliver(`{"code": 42, "repeats": 2}`)

	var codes int
	for _, e := range r.pub.Events {
		if e.Type == logic.EventCode {
			codes++
		}
	}
	if codes != 4 {
		t.Errorf("expected 4 CODE events, got %d", codes)
	}
}

func TestIntegrationInvalidRequestIgnored(t *testing.T) {
	r := newRig(t, 50*time.Millisecond)

	if err := r.pub.Deliver([]byte("press the button")); err == nil {
		t.Error("expected parse error")
	}
	if len(r.engine.Chains) != 0 {
		t.Errorf("nothing should be transmitted, got %d chains", len(r.engine.Chains))
	}
	if len(r.pub.Events) != 0 {
		t.Errorf("expected no events, got %d", len(r.pub.Events))
	}
}

func TestIntegrationStatusReflectsTraffic(t *testing.T) {
	r := newRig(t, 50*time.Millisecond)
	r.deliver("7")

	rx := r.rx.Stats()
	r.tracker.Update(r.detector.Counts(), status.ReceiverStats{
		Decoded:     rx.Decoded,
		BadRatio:    rx.BadRatio,
		OutOfBand:   rx.OutOfBand,
		BitsOutside: rx.BitsOutside,
	})

	var sj status.StatusJSON
	if err := json.Unmarshal(status.FormatJSON(r.tracker.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status
	if s.LastCode == nil || s.LastCode.Code != 7 || s.LastCode.Hex != "0x7" {
		t.Errorf("last_code: got %+v", s.LastCode)
	}
	if s.LastSent == nil || s.LastSent.Code != 7 {
		t.Errorf("last_sent: got %+v", s.LastSent)
	}
	if s.Counts.Codes != 1 || s.Counts.Sent != 1 || s.Receiver.Decoded != 3 {
		t.Errorf("counts: got %+v / %+v", s.Counts, s.Receiver)
	}
}
