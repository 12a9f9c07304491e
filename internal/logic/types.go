// Package logic turns raw receiver decodes into code events.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// EventType identifies an event to be published.
type EventType string

const (
	EventCode EventType = "CODE"
	EventSent EventType = "SENT"
)

// Event is a code seen on air, or a code this process transmitted.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Code      uint64
	Bits      int

	// Gap, Short and Long are the receiver timings in microseconds. They
	// are zero for sent codes.
	Gap   uint32
	Short float64
	Long  float64
}

// Input is one decode from the receiver.
type Input struct {
	Code  uint64
	Bits  int
	Gap   uint32
	Short float64
	Long  float64
	Time  time.Time
}

// EventCounts tracks decodes since startup.
type EventCounts struct {
	// Codes counts emitted code events.
	Codes int
	// Repeats counts decodes collapsed into an earlier event.
	Repeats int
	// Sent counts codes transmitted.
	Sent int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
