package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Purchase metrics
	PurchasesTotal   *prometheus.CounterVec
	PurchaseDuration *prometheus.HistogramVec
	ActivePurchases  prometheus.Gauge
	AttemptsTotal    *prometheus.CounterVec
	CascadeDepth     *prometheus.HistogramVec
	ThreeDSSteps     *prometheus.CounterVec
	FraudVerdicts    *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Call gate metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Postback metrics
	PostbacksTotal   *prometheus.CounterVec
	PostbackAttempts *prometheus.HistogramVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		PurchasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_total",
				Help:      "Total number of purchases by payment type and final status",
			},
			[]string{"payment_type", "status"},
		),
		PurchaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "purchase_duration_seconds",
				Help:      "Time from initiation to terminal state in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"payment_type", "status"},
		),
		ActivePurchases: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_purchases",
				Help:      "Number of purchases currently in flight",
			},
		),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "biller_attempts_total",
				Help:      "Total number of biller attempts by biller and outcome",
			},
			[]string{"biller", "outcome"},
		),
		CascadeDepth: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cascade_depth",
				Help:      "Number of candidates consumed before a purchase finalized",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			},
			[]string{"status"},
		),
		ThreeDSSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "three_ds_steps_total",
				Help:      "Total number of 3DS steps by step and result",
			},
			[]string{"step", "result"},
		),
		FraudVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fraud_verdicts_total",
				Help:      "Total number of fraud verdicts by strategy and verdict",
			},
			[]string{"strategy", "verdict"},
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
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"dependency"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of gated calls by dependency and result",
			},
			[]string{"dependency", "result"},
		),
		PostbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "postbacks_total",
				Help:      "Total number of postback deliveries by terminal status",
			},
			[]string{"status"},
		),
		PostbackAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "postback_attempts",
				Help:      "Attempts used per postback delivery",
				Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
			},
			[]string{"status"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.PurchasesTotal,
		m.PurchaseDuration,
		m.ActivePurchases,
		m.AttemptsTotal,
		m.CascadeDepth,
		m.ThreeDSSteps,
		m.FraudVerdicts,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.PostbacksTotal,
		m.PostbackAttempts,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
	)

	return m
}
