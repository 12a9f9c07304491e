// Package mqtt publishes code events to a broker and accepts send requests.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/rf433/internal/logic"
)

// Topic is the MQTT topic for received and sent codes.
const Topic = "rf433/codes"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "rf433/system"

// TopicSend is the MQTT topic the daemon subscribes to for codes to transmit.
const TopicSend = "rf433/send"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a code event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SendHandler is called for each valid send request.
type SendHandler func(req SendRequest)

// Subscriber delivers send requests from the broker.
type Subscriber interface {
	// SubscribeSend installs fn for requests on TopicSend. The subscription
	// survives reconnects.
	SubscribeSend(fn SendHandler) error
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	RF433 CodePayload `json:"rf433"`
}

// CodePayload contains the code event details.
type CodePayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Code      uint64  `json:"code"`
	Hex       string  `json:"hex"`
	Bits      int     `json:"bits"`
	Gap       uint32  `json:"gap,omitempty"`
	T0        float64 `json:"t0,omitempty"`
	T1        float64 `json:"t1,omitempty"`
}

// FormatPayload creates the JSON payload for a code event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		RF433: CodePayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Code:      event.Code,
			Hex:       fmt.Sprintf("0x%X", event.Code),
			Bits:      event.Bits,
			Gap:       event.Gap,
			T0:        event.Short,
			T1:        event.Long,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, SHUTDOWN) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// SendRequest asks the daemon to transmit a code. Zero Bits and Repeats
// mean the transmitter's configured values.
type SendRequest struct {
	Code    uint64 `json:"code"`
	Bits    int    `json:"bits,omitempty"`
	Repeats int    `json:"repeats,omitempty"`
}

// ErrEmptyRequest is returned for a blank send payload.
var ErrEmptyRequest = errors.New("mqtt: empty send request")

// ErrMissingCode is returned for a JSON send request without a code.
var ErrMissingCode = errors.New("mqtt: send request has no code")

// ParseSendRequest decodes a send payload: either a JSON object such as
// {"code": 1234, "repeats": 10} or a bare number in decimal or 0x hex.
func ParseSendRequest(payload []byte) (SendRequest, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return SendRequest{}, ErrEmptyRequest
	}

	if strings.HasPrefix(s, "{") {
		var raw struct {
			Code    *uint64 `json:"code"`
			Bits    int     `json:"bits"`
			Repeats int     `json:"repeats"`
		}
		if err := json.Unmarshal([]byte(s), &raw); err != nil {
			return SendRequest{}, fmt.Errorf("parse send request: %w", err)
		}
		if raw.Code == nil {
			return SendRequest{}, ErrMissingCode
		}
		req := SendRequest{Code: *raw.Code, Bits: raw.Bits, Repeats: raw.Repeats}
		if req.Bits < 0 || req.Bits > 64 {
			return SendRequest{}, fmt.Errorf("parse send request: bits %d outside 1..64", req.Bits)
		}
		if req.Repeats < 0 {
			return SendRequest{}, fmt.Errorf("parse send request: negative repeats")
		}
		return req, nil
	}

	code, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return SendRequest{}, fmt.Errorf("parse send request: %w", err)
	}
	return SendRequest{Code: code}, nil
}
