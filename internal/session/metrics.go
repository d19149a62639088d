package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/moorthiguru33/omegle-clone-sub000/internal/peer"
)

var (
	StatusTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omegle_session_status_transitions_total",
		Help: "Session status transitions by target status",
	}, []string{"status"})

	RoomsMatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "omegle_session_rooms_matched_total",
		Help: "Rooms assigned by the matchmaking server",
	})

	NegotiationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omegle_session_negotiation_failures_total",
		Help: "Failed offer/answer/candidate operations by kind",
	}, []string{"kind"})

	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "omegle_session_chat_messages_total",
		Help: "Chat messages by direction",
	}, []string{"direction"})

	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "omegle_session_online_users",
		Help: "Last user count broadcast by the server",
	})

	TimeToConnect = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "omegle_session_time_to_connect_seconds",
		Help:    "Time from room assignment to first remote track",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})
)

func recordTransition(s Status) {
	StatusTransitionsTotal.WithLabelValues(s.String()).Inc()
}

func recordNegotiationFailure(err error) {
	kind := "other"
	switch {
	case errors.Is(err, peer.ErrInvalidState):
		kind = "invalid_state"
	case errors.Is(err, peer.ErrApplyFailed):
		kind = "apply_failed"
	}
	NegotiationFailuresTotal.WithLabelValues(kind).Inc()
}
