package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks dispatches and publish outcomes.
// Each instance owns its registry so several can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	Dispatches       prometheus.Counter
	DispatchDuration prometheus.Histogram
	LateWakeups      prometheus.Counter
	Fallbacks        prometheus.Counter
	CalendarDegraded *prometheus.CounterVec
	PublishOutcomes  *prometheus.CounterVec
	NightMode        prometheus.Gauge
	NextWakeSeconds  prometheus.Gauge
}

// New creates a Metrics instance with all scheduler metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Dispatches: f.NewCounter(prometheus.CounterOpts{
			Name: "clock_dispatches_total",
			Help: "Total number of evaluate-and-publish runs",
		}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "clock_dispatch_duration_seconds",
			Help:    "Duration of a dispatch including directory calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		LateWakeups: f.NewCounter(prometheus.CounterOpts{
			Name: "clock_late_wakeups_total",
			Help: "Wake-ups past the grace period that were coalesced into one run",
		}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "clock_estimator_fallbacks_total",
			Help: "Estimates that fell back to the fixed delay",
		}),
		CalendarDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clock_calendar_degraded_total",
			Help: "Classifications that fell back to the weekend rule",
		}, []string{"region"}),
		PublishOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "clock_publish_outcomes_total",
			Help: "Publish attempts by region and outcome",
		}, []string{"region", "outcome"}),
		NightMode: f.NewGauge(prometheus.GaugeOpts{
			Name: "clock_night_mode",
			Help: "1 while night mode is active",
		}),
		NextWakeSeconds: f.NewGauge(prometheus.GaugeOpts{
			Name: "clock_next_wake_timestamp_seconds",
			Help: "Unix time of the next scheduled wake-up",
		}),
	}
}

// ObserveDispatch records one dispatch started at start.
func (m *Metrics) ObserveDispatch(start time.Time) {
	m.Dispatches.Inc()
	m.DispatchDuration.Observe(time.Since(start).Seconds())
}

// ObservePublish records the outcome of one region's publish.
func (m *Metrics) ObservePublish(region, outcome string) {
	m.PublishOutcomes.WithLabelValues(region, outcome).Inc()
}

// SetMode exposes the current operating mode.
func (m *Metrics) SetMode(night bool) {
	if night {
		m.NightMode.Set(1)
		return
	}
	m.NightMode.Set(0)
}

// SetNextWake exposes the next scheduled wake-up.
func (m *Metrics) SetNextWake(t time.Time) {
	m.NextWakeSeconds.Set(float64(t.Unix()))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
