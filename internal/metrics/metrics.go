// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "awaybot"

// Ingress outcomes, one per filter stage.
const (
	OutcomeEmpty       = "empty"
	OutcomeGroup       = "group_skipped"
	OutcomeIgnored     = "ignored"
	OutcomeOwner       = "owner_activity"
	OutcomeNotEligible = "not_eligible"
	OutcomeReplied     = "replied"
	OutcomeSendFailed  = "send_failed"
	OutcomeDropped     = "dropped"
)

// Metrics groups every collector the application updates.
type Metrics struct {
	registry   prometheus.Gatherer
	registerer prometheus.Registerer

	InboundEvents *prometheus.CounterVec
	RepliesSent   *prometheus.CounterVec
	AIRequests    *prometheus.CounterVec
	AILatency     *prometheus.HistogramVec
	HTTPRequests  *prometheus.CounterVec
	TaskRuns      *prometheus.CounterVec

	// TrackedConversations is nil until TrackConversations is called.
	TrackedConversations prometheus.GaugeFunc
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry:   g,
		registerer: reg,
		InboundEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound chat events by source channel and ingress outcome.",
		}, []string{"source", "outcome"}),
		RepliesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_sent_total",
			Help:      "Automated replies delivered by source channel.",
		}, []string{"source"}),
		AIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_requests_total",
			Help:      "Completion requests by backend and result.",
		}, []string{"backend", "result"}),
		AILatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_request_duration_seconds",
			Help:      "Completion request latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"backend"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route and status code.",
		}, []string{"route", "code"}),
		TaskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_task_runs_total",
			Help:      "Scheduled task executions by task and result.",
		}, []string{"task", "result"}),
	}
}

// TrackConversations exports count as the number of tracked conversations,
// read on every scrape. It must be called at most once.
func (m *Metrics) TrackConversations(count func() int) {
	m.TrackedConversations = promauto.With(m.registerer).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tracked_conversations",
		Help:      "Conversations with recorded owner activity.",
	}, func() float64 { return float64(count()) })
}

// Handler serves the registered collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveAI records one completion attempt.
func (m *Metrics) ObserveAI(backend, result string, elapsed time.Duration) {
	m.AIRequests.WithLabelValues(backend, result).Inc()
	m.AILatency.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// Event records the ingress outcome of one inbound event.
func (m *Metrics) Event(source, outcome string) {
	m.InboundEvents.WithLabelValues(source, outcome).Inc()
}
