package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Push channel
	PushFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cldzlive_push_frames_total",
			Help: "Inbound push frames by type",
		},
		[]string{"type"}, // chat_live_message, chat_user_message, unknown, malformed
	)

	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cldzlive_reconnect_attempts_total",
			Help: "Scheduled push channel reconnects",
		},
	)

	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cldzlive_connection_state",
			Help: "Current push channel state (0 idle .. 5 terminated)",
		},
	)

	// Poll channel
	PollRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cldzlive_poll_requests_total",
			Help: "Poll requests by result",
		},
		[]string{"result"}, // ok, error, malformed
	)

	PollItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cldzlive_poll_items_total",
			Help: "Polled items by ledger decision",
		},
		[]string{"decision"}, // admitted, skipped
	)

	// Rendering
	FramesEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cldzlive_frames_embedded_total",
			Help: "Complete markup documents isolated into frames",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
