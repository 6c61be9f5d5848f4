// Package metrics collects and exposes Prometheus metrics for spawnkit.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all spawnkit-specific Prometheus metrics. It satisfies
// the manager's metrics sink interface; the manager updates it from its
// loop goroutine only.
type Collector struct {
	registry *prometheus.Registry

	SpawnTotal   prometheus.Counter
	ExitTotal    *prometheus.CounterVec
	RestartTotal prometheus.Counter

	Running        prometheus.Gauge
	TrackerPending prometheus.Gauge
}

// New creates and registers all spawnkit metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	// Register default Go runtime metrics.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,

		SpawnTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spawnkit_process_spawn_total",
				Help: "Total number of child processes spawned.",
			},
		),

		ExitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spawnkit_process_exit_total",
				Help: "Total number of child process exits.",
			},
			[]string{"once"},
		),

		RestartTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "spawnkit_process_restart_total",
				Help: "Total number of automatic respawns after an unexpected exit.",
			},
		),

		Running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spawnkit_process_running",
				Help: "Number of currently running child processes.",
			},
		),

		TrackerPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "spawnkit_tracker_pending",
				Help: "Number of reaped processes awaiting exit or forced kill.",
			},
		),
	}

	reg.MustRegister(
		c.SpawnTotal,
		c.ExitTotal,
		c.RestartTotal,
		c.Running,
		c.TrackerPending,
	)

	return c
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// IncSpawn increments the spawn counter.
func (c *Collector) IncSpawn() {
	c.SpawnTotal.Inc()
}

// IncExit increments the exit counter, labelled by whether the process
// was a run-once commit.
func (c *Collector) IncExit(once bool) {
	label := "false"
	if once {
		label = "true"
	}
	c.ExitTotal.WithLabelValues(label).Inc()
}

// IncRestart increments the respawn counter.
func (c *Collector) IncRestart() {
	c.RestartTotal.Inc()
}

// SetRunning sets the running-process gauge.
func (c *Collector) SetRunning(n int) {
	c.Running.Set(float64(n))
}

// SetTrackerPending sets the pending-escalation gauge.
func (c *Collector) SetTrackerPending(n int) {
	c.TrackerPending.Set(float64(n))
}
