// Package metrics holds the gateway's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wabiz"

// Metrics is registered on its own registry so several daemons (or tests) can
// live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	WebhookPayloads *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
	StoreWrites     *prometheus.CounterVec
	LivePushes      *prometheus.CounterVec
	LiveConnections prometheus.Gauge
	BroadcastSends  *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		WebhookPayloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_payloads_total",
			Help:      "Webhook POST bodies received, by outcome.",
		}, []string{"outcome"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Normalized webhook events, by kind.",
		}, []string{"kind"}),
		StoreWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Conversation store writes, by operation and outcome.",
		}, []string{"op", "outcome"}),
		LivePushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_pushes_total",
			Help:      "Live connection pushes, by event and outcome.",
		}, []string{"event", "outcome"}),
		LiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_connections",
			Help:      "Open live connections.",
		}),
		BroadcastSends: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_sends_total",
			Help:      "Broadcast template sends, by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status_code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Outcome maps an error to the "ok"/"error" label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
