package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jindalchat"

// Completion outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFallback = "fallback"
)

// Metrics holds the chat pipeline collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	messagesStored   *prometheus.CounterVec
	completions      *prometheus.CounterVec
	jobsScheduled    *prometheus.CounterVec
	responseDuration prometheus.Histogram
}

// New registers the collectors on a fresh registry along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		messagesStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages appended to the store, by role.",
		}, []string{"role"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Assistant replies produced, by outcome.",
		}, []string{"outcome"}),
		jobsScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_scheduled_total",
			Help:      "Response jobs accepted by the scheduler, by backend.",
		}, []string{"backend"}),
		responseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "Time spent producing and storing one assistant reply.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	reg.MustRegister(
		m.messagesStored,
		m.completions,
		m.jobsScheduled,
		m.responseDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) MessageStored(role string) {
	if m == nil {
		return
	}
	m.messagesStored.WithLabelValues(role).Inc()
}

func (m *Metrics) Completion(outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobScheduled(backend string) {
	if m == nil {
		return
	}
	m.jobsScheduled.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveResponse(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.responseDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}
