package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/rf433/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	LastCode      *CodeJSON    `json:"last_code,omitempty"`
	LastSent      *CodeJSON    `json:"last_sent,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Receiver      ReceiverJSON `json:"receiver"`
	Config        ConfigJSON   `json:"config"`
}

// CodeJSON is the JSON representation of a code event.
type CodeJSON struct {
	Code      uint64  `json:"code"`
	Hex       string  `json:"hex"`
	Bits      int     `json:"bits"`
	Timestamp string  `json:"timestamp"`
	Gap       uint32  `json:"gap,omitempty"`
	T0        float64 `json:"t0,omitempty"`
	T1        float64 `json:"t1,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Codes      int `json:"codes"`
	Repeats    int `json:"repeats"`
	Sent       int `json:"sent"`
	SendErrors int `json:"send_errors"`
}

// ReceiverJSON is the JSON representation of receiver drop statistics.
type ReceiverJSON struct {
	Decoded     int `json:"decoded"`
	BadRatio    int `json:"bad_ratio"`
	OutOfBand   int `json:"out_of_band"`
	BitsOutside int `json:"bits_outside"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	RXPin       int    `json:"rx_pin"`
	TXPin       int    `json:"tx_pin"`
	MinBits     int    `json:"min_bits"`
	MaxBits     int    `json:"max_bits"`
	TxBits      int    `json:"tx_bits"`
	Repeats     int    `json:"repeats"`
	HoldoffMs   int64  `json:"holdoff_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

func codeJSON(e *logic.Event) *CodeJSON {
	if e == nil {
		return nil
	}
	return &CodeJSON{
		Code:      e.Code,
		Hex:       fmt.Sprintf("0x%X", e.Code),
		Bits:      e.Bits,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
		Gap:       e.Gap,
		T0:        e.Short,
		T1:        e.Long,
	}
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		LastCode:      codeJSON(snap.LastCode),
		LastSent:      codeJSON(snap.LastSent),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Codes:      snap.Counts.Codes,
			Repeats:    snap.Counts.Repeats,
			Sent:       snap.Counts.Sent,
			SendErrors: snap.SendErrors,
		},
		Receiver: ReceiverJSON{
			Decoded:     snap.Receiver.Decoded,
			BadRatio:    snap.Receiver.BadRatio,
			OutOfBand:   snap.Receiver.OutOfBand,
			BitsOutside: snap.Receiver.BitsOutside,
		},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			RXPin:       snap.Config.RXPin,
			TXPin:       snap.Config.TXPin,
			MinBits:     snap.Config.MinBits,
			MaxBits:     snap.Config.MaxBits,
			TxBits:      snap.Config.TxBits,
			Repeats:     snap.Config.Repeats,
			HoldoffMs:   snap.Config.HoldoffMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
