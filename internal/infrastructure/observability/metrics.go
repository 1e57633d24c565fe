package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Payment lifecycle metrics
	InitiationsTotal   *prometheus.CounterVec
	CallbacksTotal     *prometheus.CounterVec
	SkippedTerminal    *prometheus.CounterVec
	AmbiguousReference prometheus.Counter

	// Gateway metrics
	GatewayRequestDuration *prometheus.HistogramVec
	GatewayErrors          *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Worker metrics
	OutboxPublished   *prometheus.CounterVec
	SweepReconciled   *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	StalePendingFound prometheus.Gauge
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		InitiationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "initiations_total",
				Help:      "Total number of payment initiations by gateway, record kind and result",
			},
			[]string{"gateway", "kind", "result"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_total",
				Help:      "Total number of gateway callbacks and IPNs by gateway and outcome",
			},
			[]string{"gateway", "outcome"},
		),
		SkippedTerminal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_terminal_updates_total",
				Help:      "Callbacks dropped because the record already reached a terminal payment status",
			},
			[]string{"gateway"},
		),
		AmbiguousReference: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ambiguous_references_total",
				Help:      "Merchant references that could not be resolved to exactly one existing record",
			},
		),
		GatewayRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Outbound gateway request duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"gateway", "operation"},
		),
		GatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_errors_total",
				Help:      "Total number of gateway request failures by gateway and error type",
			},
			[]string{"gateway", "error_type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Total number of outbox events published by status",
			},
			[]string{"status"},
		),
		SweepReconciled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_reconciled_total",
				Help:      "Stale pending payments resolved by the reconciliation sweep, by outcome",
			},
			[]string{"gateway", "outcome"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sweep_duration_seconds",
				Help:      "Reconciliation sweep duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		StalePendingFound: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stale_pending_found",
				Help:      "Stale pending payments found in the last sweep",
			},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.InitiationsTotal,
		m.CallbacksTotal,
		m.SkippedTerminal,
		m.AmbiguousReference,
		m.GatewayRequestDuration,
		m.GatewayErrors,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.OutboxPublished,
		m.SweepReconciled,
		m.SweepDuration,
		m.StalePendingFound,
	)

	return m
}
