package logic

import "time"

// DefaultHoldoff is how long a repeated decode of the same code is treated
// as part of the same button press.
const DefaultHoldoff = 500 * time.Millisecond

// Detector collapses the repeated copies of a code that a remote sends for
// one button press into a single event.
type Detector struct {
	holdoff       time.Duration
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time

	// Last sighting, updated on every decode including repeats.
	seen     bool
	lastCode uint64
	lastBits int
	lastSeen time.Time
}

// NewDetector creates a detector with the given holdoff.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(holdoff time.Duration, startTime time.Time) *Detector {
	return &Detector{
		holdoff:       holdoff,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process takes one decode and returns the event to emit, if any.
// A decode matching the previous code and bit count within holdoff of the
// previous sighting is a repeat: it extends the window and returns false.
func (d *Detector) Process(input Input) (Event, bool) {
	repeat := d.seen &&
		input.Code == d.lastCode &&
		input.Bits == d.lastBits &&
		input.Time.Sub(d.lastSeen) < d.holdoff

	d.seen = true
	d.lastCode = input.Code
	d.lastBits = input.Bits
	d.lastSeen = input.Time

	if repeat {
		d.eventCounts.Repeats++
		return Event{}, false
	}

	d.eventCounts.Codes++
	return Event{
		Timestamp: input.Time,
		Type:      EventCode,
		Code:      input.Code,
		Bits:      input.Bits,
		Gap:       input.Gap,
		Short:     input.Short,
		Long:      input.Long,
	}, true
}

// Sent records a transmitted code and returns its event.
func (d *Detector) Sent(code uint64, bits int, now time.Time) Event {
	d.eventCounts.Sent++
	return Event{Timestamp: now, Type: EventSent, Code: code, Bits: bits}
}

// Counts returns the counters since startup.
func (d *Detector) Counts() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
