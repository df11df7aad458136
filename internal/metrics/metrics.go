// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckoutTotal counts checkout attempts by payment method and outcome
	// (created, free, rejected, gateway_error).
	CheckoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_requests_total",
			Help: "Checkout attempts by payment method and outcome.",
		},
		[]string{"method", "outcome"},
	)

	// SettlementRuns counts settlement invocations by result (won, noop,
	// not_found).
	SettlementRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_runs_total",
			Help: "Settlement pipeline invocations by result.",
		},
		[]string{"result"},
	)

	// SettlementStepFailures counts side-effect steps that failed and were
	// logged-and-skipped.
	SettlementStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_step_failures_total",
			Help: "Settlement side-effect step failures by step name.",
		},
		[]string{"step"},
	)

	// GatewayRequestDuration observes payment gateway initiation latency.
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Payment gateway initiation latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// RefundsTotal counts refund attempts by outcome (refunded, gateway_failed,
	// invalid).
	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund attempts by outcome.",
		},
		[]string{"outcome"},
	)
)
