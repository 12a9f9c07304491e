// Package status provides a thread-safe status tracker for the rf433 daemon.
// It is read by HTTP handlers and the metrics collector.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/rf433/internal/logic"
)

// ReceiverStats counts transmissions the receiver dropped. This is a local
// copy to avoid importing internal/rf433 from status.
type ReceiverStats struct {
	Decoded     int
	BadRatio    int
	OutOfBand   int
	BitsOutside int
}

// Config contains daemon configuration for display.
type Config struct {
	Backend     string
	RXPin       int // -1 = receiver disabled
	TXPin       int // -1 = transmitter disabled
	MinBits     int
	MaxBits     int
	TxBits      int
	Repeats     int
	HoldoffMs   int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	LastCode      *logic.Event
	LastSent      *logic.Event
	Counts        logic.EventCounts
	SendErrors    int
	Receiver      ReceiverStats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the event counts and receiver statistics.
// Called from runLoop after every decode and on every tick.
func (t *Tracker) Update(counts logic.EventCounts, rx ReceiverStats) {
	t.mu.Lock()
	t.snap.Counts = counts
	t.snap.Receiver = rx
	t.mu.Unlock()
}

// RecordEvent stores e as the last received or sent code.
func (t *Tracker) RecordEvent(e logic.Event) {
	t.mu.Lock()
	switch e.Type {
	case logic.EventSent:
		t.snap.LastSent = &e
	default:
		t.snap.LastCode = &e
	}
	t.mu.Unlock()
}

// RecordSendError counts a failed transmission.
func (t *Tracker) RecordSendError() {
	t.mu.Lock()
	t.snap.SendErrors++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
