package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/rf433/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"hex": func(v uint64) string {
		return fmt.Sprintf("0x%X", v)
	},
	"pin": func(p int) string {
		if p < 0 {
			return "disabled"
		}
		return fmt.Sprintf("GPIO%d", p)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>RF433</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.code { font-weight: bold; }
.none { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>RF433</h1>

<h2>Codes</h2>
<table>
<tr><th>Last received</th>{{with .LastCode}}<td id="last-code" class="code">{{hex .Code}} ({{.Bits}} bits) at {{.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td>{{else}}<td id="last-code" class="none">none</td>{{end}}</tr>
{{with .LastCode}}<tr><th>Timings</th><td>gap {{.Gap}}us, t0 {{printf "%.0f" .Short}}us, t1 {{printf "%.0f" .Long}}us</td></tr>{{end}}
<tr><th>Last sent</th>{{with .LastSent}}<td id="last-sent" class="code">{{hex .Code}} ({{.Bits}} bits) at {{.Timestamp.UTC.Format "2006-01-02T15:04:05Z"}}</td>{{else}}<td id="last-sent" class="none">none</td>{{end}}</tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Codes</th><td>{{.Counts.Codes}}</td></tr>
<tr><th>Repeats</th><td>{{.Counts.Repeats}}</td></tr>
<tr><th>Sent</th><td>{{.Counts.Sent}}</td></tr>
<tr><th>Send errors</th><td>{{.SendErrors}}</td></tr>
</table>

<h2>Receiver</h2>
<table>
<tr><th>Decoded</th><td>{{.Receiver.Decoded}}</td></tr>
<tr><th>Bad ratio</th><td>{{.Receiver.BadRatio}}</td></tr>
<tr><th>Out of band</th><td>{{.Receiver.OutOfBand}}</td></tr>
<tr><th>Bit count outside range</th><td>{{.Receiver.BitsOutside}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>RX</th><td>{{pin .Config.RXPin}} ({{.Config.MinBits}}-{{.Config.MaxBits}} bits)</td></tr>
<tr><th>TX</th><td>{{pin .Config.TXPin}} ({{.Config.TxBits}} bits, {{.Config.Repeats}} repeats)</td></tr>
<tr><th>Holdoff</th><td>{{.Config.HoldoffMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
