package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ledlink/internal/status"
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
	"ago": func(now, t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return now.Sub(t).Truncate(time.Second).String() + " ago"
	},
	"ms": func(d time.Duration) int64 { return d.Milliseconds() },
	"stamp": func(t time.Time) string {
		return t.UTC().Format("15:04:05")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>LED Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.hung { color: red; font-weight: bold; }
</style>
</head>
<body>
<h1>LED Controller</h1>

<h2>Pattern</h2>
<table>
<tr><th>Active</th><td id="pattern" class="{{if eq .Pattern "NONE"}}off{{else}}on{{end}}">{{.Pattern}}</td></tr>
<tr><th>Last command</th><td>{{ago .Now .LastCommand}}</td></tr>
</table>

<h2>Link</h2>
<table>
<tr><th>Peer</th><td id="link" class="{{if .LinkDegraded}}disconnected{{else}}connected{{end}}">{{if .LinkDegraded}}degraded{{else}}ok{{end}}</td></tr>
<tr><th>Last pong</th><td>{{ago .Now .LastPong}}</td></tr>
<tr><th>Port</th><td>{{.Config.Port}} @ {{.Config.Baud}}</td></tr>
<tr><th>Probe</th><td>{{.Config.ProbeIntervalMs}}ms + jitter {{.Config.ProbeJitterMs}}ms, timeout {{.Config.ResponseTimeoutMs}}ms</td></tr>
<tr><th>Receive overruns</th><td>{{.Overruns}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Commands</th><td>{{.Counts.Commands}}</td></tr>
<tr><th>Invalid patterns</th><td>{{.Counts.InvalidPatterns}}</td></tr>
<tr><th>PING / PONG</th><td>{{.Counts.Pings}} / {{.Counts.Pongs}}</td></tr>
<tr><th>Probes sent</th><td>{{.Counts.Probes}}</td></tr>
<tr><th>Degraded / restored</th><td>{{.Counts.Degrades}} / {{.Counts.Restores}}</td></tr>
<tr><th>Buffer overflows</th><td>{{.Counts.Overflows}}</td></tr>
<tr><th>Transmit failures</th><td>{{.Counts.TransmitFailures}}</td></tr>
<tr><th>Watchdog alerts</th><td>{{.Counts.WatchdogAlerts}}</td></tr>
</table>

<h2>Watchdog</h2>
<table>
{{range .Tasks}}<tr><th>{{.Name}} ({{.ID}})</th><td class="{{if gt .Elapsed .Timeout}}hung{{end}}">{{ms .Elapsed}}ms / {{ms .Timeout}}ms, {{.Alerts}} alerts</td></tr>
{{else}}<tr><td>no tasks registered</td></tr>
{{end}}</table>

{{if .Recent}}<h2>Recent Events</h2>
<table>
{{range .Recent}}<tr><th>{{stamp .Timestamp}}</th><td>{{.Type}}{{if .Pattern}} {{.Pattern}}{{end}}{{if .Task}} {{.Task}}{{end}}{{if .Detail}} ({{.Detail}}){{end}}</td></tr>
{{end}}</table>
{{end}}
<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Blink period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
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
