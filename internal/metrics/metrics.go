// Package metrics holds the Prometheus collectors for the app.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	quotaDecisions  *prometheus.CounterVec
	dialogueParses  *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	webhookEvents   *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		quotaDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writinggym_quota_decisions_total",
				Help: "Quota checks by plan and outcome",
			},
			[]string{"plan", "outcome"},
		),
		dialogueParses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writinggym_dialogue_parses_total",
				Help: "Speech requests by detected mode",
			},
			[]string{"mode"},
		),
		upstreamCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writinggym_upstream_calls_total",
				Help: "Calls to AI and speech providers by result",
			},
			[]string{"provider", "result"},
		),
		upstreamLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "writinggym_upstream_duration_seconds",
				Help:    "Latency of calls to AI and speech providers",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
			},
			[]string{"provider"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writinggym_webhook_events_total",
				Help: "Payment webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "writinggym_http_requests_total",
				Help: "HTTP requests by method and status",
			},
			[]string{"method", "status"},
		),
	}
}

// Quota records an entitlement check. outcome is "allowed", "blocked" or
// "error", or "record_error" when a usage event could not be stored after
// the call succeeded.
func (m *Metrics) Quota(plan, outcome string) {
	m.quotaDecisions.WithLabelValues(plan, outcome).Inc()
}

// DialogueParse records whether speech text was voiced as dialogue or narration.
func (m *Metrics) DialogueParse(mode string) {
	m.dialogueParses.WithLabelValues(mode).Inc()
}

// Upstream records one provider call and how long it took.
func (m *Metrics) Upstream(provider string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.upstreamCalls.WithLabelValues(provider, result).Inc()
	m.upstreamLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Webhook(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) HTTPRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
