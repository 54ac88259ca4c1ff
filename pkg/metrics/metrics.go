package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// Metrics holds the prometheus collectors for the control loop.
type Metrics struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	surplus        prometheus.Gauge
	tickDuration   prometheus.Histogram
	actions        *prometheus.CounterVec
	actionFailures *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry along
// with the go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sunrudder_ticks_total",
			Help: "Total control cycles run.",
		}),
		surplus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sunrudder_surplus_watts",
			Help: "Available PV surplus measured at the start of the last cycle.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sunrudder_tick_duration_seconds",
			Help:    "Duration of a control cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunrudder_actions_total",
			Help: "Device actions attempted by device and action.",
		}, []string{"device", "action"}),
		actionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sunrudder_action_failures_total",
			Help: "Device actions that returned an error, by device.",
		}, []string{"device"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.surplus,
		m.tickDuration,
		m.actions,
		m.actionFailures,
	)
	return m
}

// ObserveTick records one completed control cycle.
func (m *Metrics) ObserveTick(surplus float64, d time.Duration) {
	m.ticks.Inc()
	m.surplus.Set(surplus)
	m.tickDuration.Observe(d.Seconds())
}

// ObserveAction counts an executed action and whether it failed.
func (m *Metrics) ObserveAction(action types.DeviceAction, err error) {
	m.actions.WithLabelValues(string(action.Device), string(action.Action)).Inc()
	if err != nil {
		m.actionFailures.WithLabelValues(string(action.Device)).Inc()
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
