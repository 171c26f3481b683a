package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reaction Metrics
var (
	// ReactionsTotal tracks reaction attempts by entity kind, polarity and result
	ReactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_reactions_total",
			Help: "Reaction attempts by entity kind, polarity and result",
		},
		[]string{"kind", "polarity", "result"},
	)

	// ReactionDuration tracks end-to-end reaction latency in seconds
	ReactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibe_reaction_duration_seconds",
			Help:    "Reaction recording duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"kind"},
	)

	// CASConflictsTotal counts count-update conflicts that forced a retry
	CASConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_cas_conflicts_total",
			Help: "Optimistic count update conflicts by entity kind",
		},
		[]string{"kind"},
	)
)

// Board Metrics
var (
	BoardQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vibe_board_queue_length",
			Help: "Pending board sync jobs",
		},
	)

	// BoardSyncLag tracks time between enqueue and a board job finishing, in seconds
	BoardSyncLag = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibe_board_sync_lag_seconds",
			Help:    "Delay between enqueueing a board job and finishing it",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"kind"},
	)

	// BoardJobsTotal tracks board sync jobs by kind and result (applied/skipped/dropped/failed)
	BoardJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_board_jobs_total",
			Help: "Board sync jobs by entity kind and result",
		},
		[]string{"kind", "result"},
	)

	BoardRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_board_rebuilds_total",
			Help: "Board rebuilds by entity kind and status",
		},
		[]string{"kind", "status"},
	)

	// BoardReadsTotal tracks ranked reads by source (board/database)
	BoardReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_board_reads_total",
			Help: "Ranked list reads by entity kind and source",
		},
		[]string{"kind", "source"},
	)
)

// Outbox Relay Metrics
var (
	// RelayEventsTotal tracks relayed outbox events by type and result (published/retried/failed)
	RelayEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_relay_events_total",
			Help: "Outbox events handled by the relay by event type and result",
		},
		[]string{"type", "result"},
	)

	// RelayLag tracks time between event creation and publication in seconds
	RelayLag = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vibe_relay_lag_seconds",
			Help:    "Delay between outbox insert and successful publish",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vibe_http_requests_total",
			Help: "HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vibe_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)
