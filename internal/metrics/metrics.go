package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palaver_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palaver_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Conversation metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palaver_messages_appended_total",
			Help: "Total messages appended to conversation logs",
		},
		[]string{"kind"},
	)

	ReceiptsMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palaver_receipts_marked_total",
			Help: "Total read receipts recorded",
		},
	)

	TypingWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palaver_typing_writes_total",
			Help: "Total typing flag writes",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palaver_presence_transitions_total",
			Help: "Total presence state transitions",
		},
		[]string{"state"}, // "online" or "offline"
	)

	GroupMembersAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palaver_group_members_added_total",
			Help: "Total members added to group conversations",
		},
	)

	// Gateway metrics
	GatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "palaver_gateway_connections",
			Help: "Currently open websocket connections",
		},
	)

	// Store metrics
	StoreWriteLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palaver_store_write_latency_seconds",
			Help:    "Realtime store write latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DeferredWritesFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palaver_deferred_writes_fired_total",
			Help: "Total deferred fallback writes applied by the sweeper",
		},
	)

	WriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "palaver_write_retries_total",
			Help: "Total transient write retries",
		},
	)
)
