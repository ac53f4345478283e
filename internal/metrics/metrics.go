// Package metrics exposes Prometheus counters for the matching engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "campus_match"

var (
	MatchesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "matches_created_total",
		Help:      "Mutual matches materialized.",
	})

	PairingRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pairing_requests_total",
		Help:      "Blind-date pairing requests by outcome.",
	}, []string{"outcome"})

	PairingTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pairing_timeouts_total",
		Help:      "Queue entries removed after the wait ceiling.",
	})

	Conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conflicts_total",
		Help:      "Transient write conflicts by operation.",
	}, []string{"operation"})

	SessionsTerminated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_terminated_total",
		Help:      "Sessions moved to a terminal status.",
	}, []string{"status"})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Messages appended to session logs.",
	})

	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_failures_total",
		Help:      "Failed realtime publishes and notifications.",
	}, []string{"channel"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		MatchesCreated,
		PairingRequests,
		PairingTimeouts,
		Conflicts,
		SessionsTerminated,
		MessagesSent,
		DeliveryFailures,
		HTTPRequests,
	)
}
