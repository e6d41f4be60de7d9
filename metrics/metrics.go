// Package metrics provides Prometheus metrics for the session client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "session"

var (
	// RefreshTotal counts refresh flights by outcome (success, failure, no_token).
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Token refresh flights by outcome",
		},
		[]string{"outcome"},
	)

	// RefreshSharedTotal counts callers that joined a refresh already in flight.
	RefreshSharedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_shared_total",
			Help:      "Callers served by a refresh started by another caller",
		},
	)

	// PipelineReplaysTotal counts 401 replays by outcome (refreshed, reused, refresh_error, not_replayable).
	PipelineReplaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_replays_total",
			Help:      "Requests replayed after a 401",
		},
		[]string{"outcome"},
	)

	// CacheRequestsTotal counts cache reads by result (hit, miss, anonymous, discarded).
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Read-through cache lookups",
		},
		[]string{"result"},
	)

	// CacheInvalidationsTotal counts invalidations by scope (resource, all).
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidations_total",
			Help:      "Cache invalidations",
		},
		[]string{"scope"},
	)
)
