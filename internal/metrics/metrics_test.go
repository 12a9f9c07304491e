package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/rf433/internal/logic"
	"github.com/sweeney/rf433/internal/status"
)

func fixedSnapshot() status.Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return status.Snapshot{
		Counts:        logic.EventCounts{Codes: 3, Repeats: 17, Sent: 2},
		SendErrors:    1,
		Receiver:      status.ReceiverStats{Decoded: 20, BadRatio: 4, OutOfBand: 5, BitsOutside: 6},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
	}
}

func TestCollector(t *testing.T) {
	c := New(fixedSnapshot)

	want := `
# HELP rf433_codes_total Code events emitted after repeat suppression.
# TYPE rf433_codes_total counter
rf433_codes_total 3
# HELP rf433_mqtt_connected Whether the MQTT client is connected.
# TYPE rf433_mqtt_connected gauge
rf433_mqtt_connected 1
# HELP rf433_receiver_decoded_total Frames decoded by the receiver.
# TYPE rf433_receiver_decoded_total counter
rf433_receiver_decoded_total 20
# HELP rf433_receiver_dropped_total Frames dropped by the receiver.
# TYPE rf433_receiver_dropped_total counter
rf433_receiver_dropped_total{reason="bad_ratio"} 4
rf433_receiver_dropped_total{reason="bits_outside"} 6
rf433_receiver_dropped_total{reason="out_of_band"} 5
# HELP rf433_repeats_total Decodes suppressed as repeats of the previous code.
# TYPE rf433_repeats_total counter
rf433_repeats_total 17
# HELP rf433_send_errors_total Transmissions that failed.
# TYPE rf433_send_errors_total counter
rf433_send_errors_total 1
# HELP rf433_sent_total Codes transmitted.
# TYPE rf433_sent_total counter
rf433_sent_total 2
# HELP rf433_uptime_seconds Seconds since the daemon started.
# TYPE rf433_uptime_seconds gauge
rf433_uptime_seconds 900
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(want)))
}

func TestCollectorDisconnected(t *testing.T) {
	c := New(func() status.Snapshot {
		s := fixedSnapshot()
		s.MQTTConnected = false
		return s
	})

	want := `
# HELP rf433_mqtt_connected Whether the MQTT client is connected.
# TYPE rf433_mqtt_connected gauge
rf433_mqtt_connected 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(want), "rf433_mqtt_connected"))
}

func TestCollectorOneSnapshotPerScrape(t *testing.T) {
	calls := 0
	c := New(func() status.Snapshot {
		calls++
		return fixedSnapshot()
	})

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 8)
	require.Equal(t, 1, calls)
}

func TestCollectorReadsTracker(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	c := New(tr.Snapshot)

	tr.Update(logic.EventCounts{Codes: 9}, status.ReceiverStats{})
	tr.RecordSendError()

	want := `
# HELP rf433_codes_total Code events emitted after repeat suppression.
# TYPE rf433_codes_total counter
rf433_codes_total 9
# HELP rf433_send_errors_total Transmissions that failed.
# TYPE rf433_send_errors_total counter
rf433_send_errors_total 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(want), "rf433_codes_total", "rf433_send_errors_total"))
}
