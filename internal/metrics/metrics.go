package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Chat metrics
	chatRequestsTotal    *prometheus.CounterVec
	chatRequestDuration  *prometheus.HistogramVec
	streamFragments      *prometheus.CounterVec
	conversationsCreated prometheus.Counter
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),

		chatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_chat_requests_total",
				Help: "Total number of chat requests dispatched, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),

		chatRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_chat_request_duration_seconds",
				Help:    "Chat request duration in seconds, by provider",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),

		streamFragments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_stream_fragments_total",
				Help: "Total number of streaming text fragments relayed, by provider",
			},
			[]string{"provider"},
		),

		conversationsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "parley_conversations_created_total",
				Help: "Total number of conversations created",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)
	reg.MustRegister(r.chatRequestsTotal)
	reg.MustRegister(r.chatRequestDuration)
	reg.MustRegister(r.streamFragments)
	reg.MustRegister(r.conversationsCreated)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	r.httpRequestsTotal.WithLabelValues(method, path, statusToString(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordChatRequest records a dispatched chat request.
func (r *Registry) RecordChatRequest(provider, outcome string, duration float64) {
	r.chatRequestsTotal.WithLabelValues(provider, outcome).Inc()
	r.chatRequestDuration.WithLabelValues(provider).Observe(duration)
}

// RecordStreamFragments adds relayed fragment counts for a provider.
func (r *Registry) RecordStreamFragments(provider string, n int) {
	if n > 0 {
		r.streamFragments.WithLabelValues(provider).Add(float64(n))
	}
}

// RecordConversationCreated counts a new conversation.
func (r *Registry) RecordConversationCreated() {
	r.conversationsCreated.Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
