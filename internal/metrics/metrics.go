// Package metrics declares the Prometheus metrics emitted across the server.
//
// Naming convention: namespace_subsystem_name, namespace is always "alias".
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "alias", Subsystem: "websocket", Name: "connections_active",
		Help: "Current number of active WebSocket connections.",
	})

	WebSocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "websocket", Name: "events_total",
		Help: "Total inbound frames processed, by tag and outcome.",
	}, []string{"type", "status"})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "alias", Subsystem: "room", Name: "rooms_active",
		Help: "Current number of live rooms.",
	})

	RoomParticipants = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alias", Subsystem: "room", Name: "participants_count",
		Help: "Number of participants in each room.",
	}, []string{"room_code"})

	RoomsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "room", Name: "reaped_total",
		Help: "Total rooms removed by the abandonment reaper.",
	})

	BroadcastDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "broadcast", Name: "envelopes_dropped_total",
		Help: "Envelopes dropped because a subscriber's channel was full.",
	}, []string{"channel"})

	GameRoundsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "game", Name: "rounds_total",
		Help: "Total rounds started, by room.",
	}, []string{"room_code"})

	GameWordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "game", Name: "words_processed_total",
		Help: "Total words resolved, by result.",
	}, []string{"result"})

	CorpusQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alias", Subsystem: "corpus", Name: "query_duration_seconds",
		Help:    "Duration of word corpus queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alias", Subsystem: "circuit_breaker", Name: "state",
		Help: "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open).",
	}, []string{"service"})

	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "circuit_breaker", Name: "failures_total",
		Help: "Total calls short-circuited by an open breaker, by dependency.",
	}, []string{"service"})

	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "rate_limit", Name: "exceeded_total",
		Help: "Total requests rejected by a rate limiter.",
	}, []string{"endpoint", "reason"})

	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alias", Subsystem: "rate_limit", Name: "requests_total",
		Help: "Total requests evaluated by a rate limiter, admitted or not.",
	}, []string{"endpoint"})
)
