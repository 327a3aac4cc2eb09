// Package metrics defines the Prometheus collectors exported on /metrics.
//
// Every Record/Set helper is safe to call on a nil *Metrics so that
// components built without a registry (tests, CLI tools) need no guards.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Routing metrics
	RouteOutcomesTotal *prometheus.CounterVec

	// Outbound platform API metrics
	OutboundRequestsTotal   *prometheus.CounterVec
	OutboundDurationSeconds *prometheus.HistogramVec

	// Context store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreDurationSeconds   *prometheus.HistogramVec
	SingleflightDedupTotal *prometheus.CounterVec

	// NLU metrics
	NLUQueriesTotal    *prometheus.CounterVec
	NLUDurationSeconds *prometheus.HistogramVec

	// HTTP metrics
	HTTPErrorsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimiterDropped    *prometheus.CounterVec
	RateLimiterActiveKeys *prometheus.GaugeVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		WebhookRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_webhook_updates_total",
				Help: "Total number of processed webhook updates by platform and status",
			},
			[]string{"platform", "status"}, // status: replied, silent, ignored, rate_limited, error
		),

		WebhookDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calamars_webhook_duration_seconds",
				Help:    "Update processing duration in seconds by platform",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"platform"},
		),

		RouteOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_route_outcomes_total",
				Help: "Total number of router lookups by outcome",
			},
			[]string{"outcome"}, // outcome: matched, unmatched
		),

		OutboundRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_outbound_requests_total",
				Help: "Total number of platform API calls by platform and status",
			},
			[]string{"platform", "status"}, // status: success, error
		),

		OutboundDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calamars_outbound_duration_seconds",
				Help:    "Platform API call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"platform"},
		),

		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_context_store_operations_total",
				Help: "Total number of context store operations by backend, operation and status",
			},
			[]string{"backend", "op", "status"}, // status: success, error
		),

		StoreDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calamars_context_store_duration_seconds",
				Help:    "Context store operation duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"backend", "op"},
		),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_singleflight_dedup_total",
				Help: "Total number of deduplicated requests (requests that waited instead of executing)",
			},
			[]string{"module"},
		),

		NLUQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_nlu_queries_total",
				Help: "Total number of NLU driver queries by driver and status",
			},
			[]string{"driver", "status"}, // status: success, error, rate_limited
		),

		NLUDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calamars_nlu_duration_seconds",
				Help:    "NLU driver query duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
			},
			[]string{"driver"},
		),

		HTTPErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_http_errors_total",
				Help: "Total HTTP errors by type and module",
			},
			[]string{"error_type", "module"}, // error_type: invalid_signature, bad_request, forbidden
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calamars_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter"}, // limiter: chat, nlu
		),

		RateLimiterActiveKeys: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "calamars_rate_limiter_active_keys",
				Help: "Number of keys currently tracked by a keyed rate limiter",
			},
			[]string{"limiter"},
		),
	}
}

// RecordWebhook records one processed update
func (m *Metrics) RecordWebhook(platform, status string, duration float64) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(platform, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(platform).Observe(duration)
}

// RecordRoute records whether the router produced a result
func (m *Metrics) RecordRoute(matched bool) {
	if m == nil {
		return
	}
	outcome := "unmatched"
	if matched {
		outcome = "matched"
	}
	m.RouteOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordOutbound records a platform API call
func (m *Metrics) RecordOutbound(platform string, err error, duration float64) {
	if m == nil {
		return
	}
	m.OutboundRequestsTotal.WithLabelValues(platform, statusOf(err)).Inc()
	m.OutboundDurationSeconds.WithLabelValues(platform).Observe(duration)
}

// RecordStoreOp records a context store operation
func (m *Metrics) RecordStoreOp(backend, op string, err error, duration float64) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(backend, op, statusOf(err)).Inc()
	m.StoreDurationSeconds.WithLabelValues(backend, op).Observe(duration)
}

// RecordSingleflightDedup records a deduplicated request
func (m *Metrics) RecordSingleflightDedup(module string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordNLUQuery records an NLU driver call. A zero duration skips the histogram
// (used for queries rejected before reaching the driver).
func (m *Metrics) RecordNLUQuery(driver, status string, duration float64) {
	if m == nil {
		return
	}
	m.NLUQueriesTotal.WithLabelValues(driver, status).Inc()
	if duration > 0 {
		m.NLUDurationSeconds.WithLabelValues(driver).Observe(duration)
	}
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(errorType, module string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, module).Inc()
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}

// SetRateLimiterActiveKeys sets the number of tracked keys for a limiter
func (m *Metrics) SetRateLimiterActiveKeys(limiter string, count int) {
	if m == nil {
		return
	}
	m.RateLimiterActiveKeys.WithLabelValues(limiter).Set(float64(count))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
