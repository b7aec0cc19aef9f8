// Package metrics holds the daemon's operational counters and serves them
// in the Prometheus text exposition format.
//
// All fields are updated atomically so the status server can read them from
// its own goroutine while the event loop writes.
//
// # Metric catalogue
//
//	facron_events_total                 – counter: filesystem events read from the backend
//	facron_matches_total                – counter: mask groups that matched an event
//	facron_commands_launched_total      – counter: commands handed to the launcher
//	facron_launch_errors_total          – counter: launcher failures
//	facron_mark_errors_total            – counter: failed watch add/remove calls
//	facron_config_reloads_total         – counter: successful reloads
//	facron_config_reload_errors_total   – counter: reloads that kept the previous configuration
//	facron_config_discarded_lines_total – counter: malformed configuration lines skipped
//
// Gauges are not stored here. The component that owns the value registers a
// read function with GaugeFunc; the daemon registers facron_up and
// facron_config_entries.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Metrics holds every counter and gauge. The zero value is ready to use.
type Metrics struct {
	// Counters
	Events               atomic.Int64
	Matches              atomic.Int64
	CommandsLaunched     atomic.Int64
	LaunchErrors         atomic.Int64
	MarkErrors           atomic.Int64
	ConfigReloads        atomic.Int64
	ConfigReloadErrors   atomic.Int64
	ConfigDiscardedLines atomic.Int64

	mu     sync.Mutex
	gauges []gauge
}

type gauge struct {
	name string
	help string
	read func() int64
}

// New allocates a Metrics with all values at zero.
func New() *Metrics {
	return &Metrics{}
}

type metricLine struct {
	help  string
	kind  string // "counter" or "gauge"
	name  string
	value int64
}

// GaugeFunc registers a gauge whose value is read from fn at every scrape.
// Registering a name again replaces the earlier function.
func (m *Metrics) GaugeFunc(name, help string, fn func() int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.gauges {
		if m.gauges[i].name == name {
			m.gauges[i] = gauge{name, help, fn}
			return
		}
	}
	m.gauges = append(m.gauges, gauge{name, help, fn})
}

func (m *Metrics) snapshot() []metricLine {
	lines := []metricLine{
		{
			help:  "Total number of filesystem events read from the watch backend.",
			kind:  "counter",
			name:  "facron_events_total",
			value: m.Events.Load(),
		},
		{
			help:  "Total number of mask groups that matched an event.",
			kind:  "counter",
			name:  "facron_matches_total",
			value: m.Matches.Load(),
		},
		{
			help:  "Total number of commands handed to the launcher.",
			kind:  "counter",
			name:  "facron_commands_launched_total",
			value: m.CommandsLaunched.Load(),
		},
		{
			help:  "Total number of commands the launcher failed to start.",
			kind:  "counter",
			name:  "facron_launch_errors_total",
			value: m.LaunchErrors.Load(),
		},
		{
			help:  "Total number of watch add or remove calls that failed.",
			kind:  "counter",
			name:  "facron_mark_errors_total",
			value: m.MarkErrors.Load(),
		},
		{
			help:  "Total number of successful configuration reloads.",
			kind:  "counter",
			name:  "facron_config_reloads_total",
			value: m.ConfigReloads.Load(),
		},
		{
			help:  "Total number of reloads that failed and kept the previous configuration.",
			kind:  "counter",
			name:  "facron_config_reload_errors_total",
			value: m.ConfigReloadErrors.Load(),
		},
		{
			help:  "Total number of malformed configuration lines that were skipped.",
			kind:  "counter",
			name:  "facron_config_discarded_lines_total",
			value: m.ConfigDiscardedLines.Load(),
		},
	}

	m.mu.Lock()
	gauges := append([]gauge(nil), m.gauges...)
	m.mu.Unlock()
	for _, g := range gauges {
		lines = append(lines, metricLine{help: g.help, kind: "gauge", name: g.name, value: g.read()})
	}
	return lines
}

// Handler returns an [http.Handler] that writes all metrics in the
// Prometheus text exposition format. HEAD gets the headers only.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := render(m.snapshot())
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			_, _ = w.Write([]byte(body))
		}
	})
}

func render(lines []metricLine) string {
	var b strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n%s %d\n",
			l.name, l.help, l.name, l.kind, l.name, l.value)
	}
	return b.String()
}
