// Package monitoring exposes Prometheus metrics for searches, rankings and
// HTTP traffic.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector holds all Prometheus metrics for the application
type MetricsCollector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Searches        *prometheus.CounterVec
	Rankings        *prometheus.CounterVec
	RankingDuration *prometheus.HistogramVec
	StaleDiscards   prometheus.Counter
	Fallbacks       prometheus.Counter
	Suggestions     *prometheus.CounterVec
	ToolInvocations *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
}

// NewMetricsCollector creates a collector with its own registry
func NewMetricsCollector(namespace string) *MetricsCollector {
	registry := prometheus.NewRegistry()

	mc := &MetricsCollector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "term_searches_total",
				Help:      "Total number of catalog searches",
			},
			[]string{"status"},
		),
		Rankings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rankings_total",
				Help:      "Total number of completed ranking requests",
			},
			[]string{"source", "status"},
		),
		RankingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ranking_duration_seconds",
				Help:      "Ranking request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		StaleDiscards: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ranking_stale_discards_total",
				Help:      "Ranking results discarded because a newer request superseded them",
			},
		),
		Fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ranking_fallbacks_total",
				Help:      "Rankings served by the reference table after a backend failure",
			},
		),
		Suggestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suggestions_total",
				Help:      "Total number of suggestion requests",
			},
			[]string{"status"},
		),
		ToolInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of MCP tool invocations",
			},
			[]string{"tool", "status"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of live intake sessions",
			},
		),
	}

	registry.MustRegister(
		mc.HTTPRequests,
		mc.HTTPDuration,
		mc.Searches,
		mc.Rankings,
		mc.RankingDuration,
		mc.StaleDiscards,
		mc.Fallbacks,
		mc.Suggestions,
		mc.ToolInvocations,
		mc.ActiveSessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return mc
}

// Registry returns the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the registry in the Prometheus exposition format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request
func (mc *MetricsCollector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	mc.HTTPRequests.WithLabelValues(method, route, status).Inc()
	mc.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordSearch records a catalog search outcome
func (mc *MetricsCollector) RecordSearch(success bool) {
	mc.Searches.WithLabelValues(statusLabel(success)).Inc()
}

// RecordRanking records a ranking outcome
func (mc *MetricsCollector) RecordRanking(source string, duration time.Duration, success bool) {
	mc.Rankings.WithLabelValues(source, statusLabel(success)).Inc()
	mc.RankingDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordStaleDiscard records a superseded ranking result
func (mc *MetricsCollector) RecordStaleDiscard() {
	mc.StaleDiscards.Inc()
}

// RecordFallback records a reference-table fallback
func (mc *MetricsCollector) RecordFallback() {
	mc.Fallbacks.Inc()
}

// RecordSuggestion records a suggestion outcome
func (mc *MetricsCollector) RecordSuggestion(success bool) {
	mc.Suggestions.WithLabelValues(statusLabel(success)).Inc()
}

// RecordToolInvocation records an MCP tool call
func (mc *MetricsCollector) RecordToolInvocation(tool string, success bool) {
	mc.ToolInvocations.WithLabelValues(tool, statusLabel(success)).Inc()
}

// SetActiveSessions updates the live session gauge
func (mc *MetricsCollector) SetActiveSessions(n int) {
	mc.ActiveSessions.Set(float64(n))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
