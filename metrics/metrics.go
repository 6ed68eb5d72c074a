package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Playback pipeline metrics
	UnitsDecodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiod_units_decoded_total",
			Help: "Total number of playback units decoded into frames",
		},
	)

	UnitsRenderedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiod_units_rendered_total",
			Help: "Total number of playback units written to the output device",
		},
	)

	BytesRenderedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiod_bytes_rendered_total",
			Help: "Total number of sample bytes written to the output device",
		},
	)

	RangeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiod_range_failures_total",
			Help: "Total number of play ranges aborted by a decode or render failure",
		},
		[]string{"stage"},
	)

	EngineStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiod_engine_status",
			Help: "Current transport status (0 stopped, 1 playing, 2 paused)",
		},
	)

	// Wire protocol metrics
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiod_messages_sent_total",
			Help: "Total number of protocol messages written",
		},
		[]string{"channel"},
	)

	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiod_messages_received_total",
			Help: "Total number of protocol messages read",
		},
		[]string{"channel"},
	)

	MalformedHeadersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiod_malformed_headers_total",
			Help: "Total number of headers discarded as malformed",
		},
	)

	ConnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audiod_connect_attempts_total",
			Help: "Total number of client connection attempts",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audiod_active_sessions",
			Help: "Number of connected remote controllers",
		},
	)
)
