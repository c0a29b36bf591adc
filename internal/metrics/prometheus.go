package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"elamath/internal/domain"
)

// Metrics contains all Prometheus metrics for the assistant
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline metrics
	QuestionsAnswered prometheus.Counter
	StageDuration     *prometheus.HistogramVec
	StageDegraded     *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		QuestionsAnswered: factory.NewCounter(prometheus.CounterOpts{
			Name: "elamath_questions_answered_total",
			Help: "Total number of questions that reached the synthesis stage",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "elamath_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		StageDegraded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "elamath_stage_degraded_total",
			Help: "Number of times a stage fell back to a placeholder",
		}, []string{"stage"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "elamath_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "elamath_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveStage records one pipeline stage.
func (m *Metrics) ObserveStage(stage domain.Stage, elapsed time.Duration, degraded bool) {
	m.StageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	if degraded {
		m.StageDegraded.WithLabelValues(string(stage)).Inc()
	}
	if stage == domain.StageSynthesis {
		m.QuestionsAnswered.Inc()
	}
}

func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
