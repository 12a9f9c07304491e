// Package metrics exports daemon state to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/rf433/internal/status"
)

const namespace = "rf433"

// SnapshotFunc returns the current daemon state.
type SnapshotFunc func() status.Snapshot

// Collector implements prometheus.Collector. Each scrape takes one snapshot,
// so all values in a scrape are consistent with each other.
type Collector struct {
	snapshot SnapshotFunc

	codes      *prometheus.Desc
	repeats    *prometheus.Desc
	sent       *prometheus.Desc
	sendErrors *prometheus.Desc
	decoded    *prometheus.Desc
	dropped    *prometheus.Desc
	connected  *prometheus.Desc
	uptime     *prometheus.Desc
}

// New returns a Collector reading from fn.
func New(fn SnapshotFunc) *Collector {
	return &Collector{
		snapshot: fn,
		codes: prometheus.NewDesc(namespace+"_codes_total",
			"Code events emitted after repeat suppression.", nil, nil),
		repeats: prometheus.NewDesc(namespace+"_repeats_total",
			"Decodes suppressed as repeats of the previous code.", nil, nil),
		sent: prometheus.NewDesc(namespace+"_sent_total",
			"Codes transmitted.", nil, nil),
		sendErrors: prometheus.NewDesc(namespace+"_send_errors_total",
			"Transmissions that failed.", nil, nil),
		decoded: prometheus.NewDesc(namespace+"_receiver_decoded_total",
			"Frames decoded by the receiver.", nil, nil),
		dropped: prometheus.NewDesc(namespace+"_receiver_dropped_total",
			"Frames dropped by the receiver.", []string{"reason"}, nil),
		connected: prometheus.NewDesc(namespace+"_mqtt_connected",
			"Whether the MQTT client is connected.", nil, nil),
		uptime: prometheus.NewDesc(namespace+"_uptime_seconds",
			"Seconds since the daemon started.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.codes
	ch <- c.repeats
	ch <- c.sent
	ch <- c.sendErrors
	ch <- c.decoded
	ch <- c.dropped
	ch <- c.connected
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.snapshot()

	counter := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(c.codes, snap.Counts.Codes)
	counter(c.repeats, snap.Counts.Repeats)
	counter(c.sent, snap.Counts.Sent)
	counter(c.sendErrors, snap.SendErrors)
	counter(c.decoded, snap.Receiver.Decoded)
	counter(c.dropped, snap.Receiver.BadRatio, "bad_ratio")
	counter(c.dropped, snap.Receiver.OutOfBand, "out_of_band")
	counter(c.dropped, snap.Receiver.BitsOutside, "bits_outside")

	var up float64
	if snap.MQTTConnected {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(c.connected, prometheus.GaugeValue, up)
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, snap.Uptime().Seconds())
}
