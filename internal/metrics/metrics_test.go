package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestActiveWebSocketConnectionsGauge(t *testing.T) {
	ActiveWebSocketConnections.Set(0)
	ActiveWebSocketConnections.Inc()
	if got := testutil.ToFloat64(ActiveWebSocketConnections); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	ActiveWebSocketConnections.Dec()
	if got := testutil.ToFloat64(ActiveWebSocketConnections); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestWebSocketEventsCounterVec(t *testing.T) {
	WebSocketEvents.WithLabelValues("join_room", "ok").Inc()
	if got := testutil.ToFloat64(WebSocketEvents.WithLabelValues("join_room", "ok")); got < 1 {
		t.Errorf("expected at least 1, got %v", got)
	}
}

func TestRoomParticipantsGaugeVec(t *testing.T) {
	RoomParticipants.WithLabelValues("ROOM01").Set(3)
	if got := testutil.ToFloat64(RoomParticipants.WithLabelValues("ROOM01")); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestBroadcastDroppedCounterVec(t *testing.T) {
	BroadcastDropped.WithLabelValues("direct").Inc()
	if got := testutil.ToFloat64(BroadcastDropped.WithLabelValues("direct")); got < 1 {
		t.Errorf("expected at least 1, got %v", got)
	}
}

func TestCorpusQueryDurationHistogramDoesNotPanic(t *testing.T) {
	CorpusQueryDuration.WithLabelValues("ok").Observe(0.05)
}

func TestCircuitBreakerStateGaugeVec(t *testing.T) {
	CircuitBreakerState.WithLabelValues("word_corpus").Set(1)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("word_corpus")); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestRateLimitCounters(t *testing.T) {
	RateLimitRequests.WithLabelValues("global").Inc()
	RateLimitExceeded.WithLabelValues("global", "ip").Inc()
	if got := testutil.ToFloat64(RateLimitRequests.WithLabelValues("global")); got < 1 {
		t.Errorf("expected at least 1, got %v", got)
	}
	if got := testutil.ToFloat64(RateLimitExceeded.WithLabelValues("global", "ip")); got < 1 {
		t.Errorf("expected at least 1, got %v", got)
	}
}
