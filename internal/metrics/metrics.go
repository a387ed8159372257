package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for munin-update.
type Metrics struct {
	registry                 *prometheus.Registry
	cycleDurationSeconds     prometheus.Histogram
	hostDurationSeconds      *prometheus.HistogramVec
	collectFailuresTotal     *prometheus.CounterVec
	hostsSelectedGauge       prometheus.Gauge
	lastSuccessfulCycleGauge prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "munin_update_cycle_duration_seconds",
			Help:    "Duration of full update cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		hostDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "munin_update_host_duration_seconds",
			Help:    "Duration of per-host collection in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		collectFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "munin_update_collect_failures_total",
			Help: "Total per-host collection failures.",
		}, []string{"host"}),
		hostsSelectedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "munin_update_hosts_selected",
			Help: "Hosts selected for the last update cycle.",
		}),
		lastSuccessfulCycleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "munin_update_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last successful cycle.",
		}),
	}

	registry.MustRegister(
		m.cycleDurationSeconds,
		m.hostDurationSeconds,
		m.collectFailuresTotal,
		m.hostsSelectedGauge,
		m.lastSuccessfulCycleGauge,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycleDuration records the duration of a completed cycle.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
}

// ObserveHostDuration records the collection duration for one host.
func (m *Metrics) ObserveHostDuration(host string, duration time.Duration) {
	if m == nil {
		return
	}
	m.hostDurationSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// IncCollectFailures increments the failure counter for one host.
func (m *Metrics) IncCollectFailures(host string) {
	if m == nil {
		return
	}
	m.collectFailuresTotal.WithLabelValues(host).Inc()
}

// SetHostsSelected sets the selected-hosts gauge.
func (m *Metrics) SetHostsSelected(value int) {
	if m == nil {
		return
	}
	m.hostsSelectedGauge.Set(float64(value))
}

// SetLastSuccessfulCycleTimestamp sets the last successful cycle time.
func (m *Metrics) SetLastSuccessfulCycleTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulCycleGauge.Set(float64(t.Unix()))
}
