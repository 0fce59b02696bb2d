package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for monitoring the coordinator:
var (
	AuthorizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "troop_authorizations_total",
			Help: "Number of authorization requests, by outcome.",
		},
		[]string{"outcome"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "troop_settlements_total",
			Help: "Number of receipt settlements, by outcome.",
		},
		[]string{"outcome"},
	)

	CreditSettledSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "troop_credit_settled_seconds_total",
			Help: "Total credit-seconds charged through settlements.",
		},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "troop_rate_limit_rejections_total",
			Help: "Number of requests rejected by the rate limiter, by tier.",
		},
		[]string{"tier"},
	)

	ReservationsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "troop_reservations_swept_total",
			Help: "Number of expired reservations refunded by the sweep.",
		},
	)

	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "troop_breaker_transitions_total",
			Help: "Number of circuit breaker state transitions, by target and new state.",
		},
		[]string{"target", "state"},
	)

	NodesLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "troop_nodes_live",
			Help: "Number of worker nodes with a live lease.",
		},
	)
)
