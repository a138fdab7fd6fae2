package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/weatherstation/internal/logic"
	"github.com/sweeney/weatherstation/internal/status"
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
	"value": logic.FormatValue,
	"signed": func(n int) string {
		if n > 0 {
			return fmt.Sprintf("+%d", n)
		}
		return fmt.Sprintf("%d", n)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Weather Station</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: #b00; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Weather Station<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>
{{range .Locations}}
<h2>{{.Title}}</h2>
<table>
<tr><th>Temperature</th><td id="{{.Name}}-temperature">{{.View.Temperature}} &deg;C</td></tr>
<tr><th>Humidity</th><td id="{{.Name}}-humidity">{{.View.Humidity}} %</td></tr>
<tr><th>Day high</th><td id="{{.Name}}-day_high">{{value .View.DayHigh}} &deg;C</td></tr>
<tr><th>Day low</th><td id="{{.Name}}-day_low">{{value .View.DayLow}} &deg;C</td></tr>
<tr><th>Updated</th><td id="{{.Name}}-timestamp">{{if .View.Timestamp}}{{.View.Timestamp}}{{else}}never{{end}}</td></tr>
</table>
{{end}}
<h2>Sun</h2>
<table>
<tr><th>Sunrise</th><td id="sunrise">{{.Snapshot.Sun.Sunrise}}</td></tr>
<tr><th>Sunset</th><td id="sunset">{{.Snapshot.Sun.Sunset}}</td></tr>
<tr><th>vs last week</th><td id="delta_week">{{signed .Snapshot.Sun.DeltaWeek}} min</td></tr>
<tr><th>vs midwinter</th><td id="delta_midwinter">{{signed .Snapshot.Sun.DeltaMidwinter}} min</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td id="connection" class="{{if .Connected}}connected{{else}}disconnected{{end}}">{{.Snapshot.Connection}}</td></tr>
<tr><th>Broker</th><td>{{.Snapshot.Config.Broker}}</td></tr>
{{if .Snapshot.LastError}}<tr><th>Last error</th><td class="error">{{.Snapshot.LastError}}</td></tr>{{end}}
</table>
<form method="post" action="/connect" style="display:inline"><button>Connect</button></form>
<form method="post" action="/disconnect" style="display:inline"><button>Disconnect</button></form>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.Snapshot.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/readings/greenhouse">greenhouse history</a> &middot; <a href="/readings/brewery">brewery history</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function set(id, text) {
    var el = document.getElementById(id);
    if (el) { el.textContent = text; }
  }

  function signed(n) {
    return (n > 0 ? "+" : "") + n;
  }

  function connect() {
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var st = JSON.parse(ev.data).status;
        ["greenhouse", "brewery"].forEach(function(name) {
          var v = st[name];
          set(name + "-temperature", v.temperature + " \u00b0C");
          set(name + "-humidity", v.humidity + " %");
          set(name + "-day_high", v.day_high + " \u00b0C");
          set(name + "-day_low", v.day_low + " \u00b0C");
          set(name + "-timestamp", v.timestamp || "never");
        });
        set("sunrise", st.sun.sunrise);
        set("sunset", st.sun.sunset);
        set("delta_week", signed(st.sun.delta_week_minutes) + " min");
        set("delta_midwinter", signed(st.sun.delta_midwinter_minutes) + " min");
        var c = document.getElementById("connection");
        c.textContent = st.mqtt.connection;
        c.className = st.mqtt.connected ? "connected" : "disconnected";
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

type locationData struct {
	Name  string
	Title string
	View  status.LocationView
}

type pageData struct {
	Snapshot  status.Snapshot
	Locations []locationData
	Connected bool
	Uptime    time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot, now time.Time) error {
	data := pageData{
		Snapshot:  snap,
		Connected: snap.Connection == status.Connected,
		Uptime:    now.Sub(snap.StartTime),
	}
	for _, loc := range logic.Locations {
		name := loc.String()
		data.Locations = append(data.Locations, locationData{
			Name:  name,
			Title: strings.ToUpper(name[:1]) + name[1:],
			View:  snap.View(loc),
		})
	}
	return indexTmpl.Execute(w, data)
}
