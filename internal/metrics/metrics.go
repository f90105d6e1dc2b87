// Package metrics exposes Prometheus collectors for the publication engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	TicksTotal          prometheus.Counter
	TickDuration        prometheus.Histogram
	JobsPublishedTotal  *prometheus.CounterVec
	JobsFailedTotal     *prometheus.CounterVec
	ClaimConflictsTotal prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheReloadsTotal   *prometheus.CounterVec
}

// New creates the collectors and registers them with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_scheduler_ticks_total",
			Help: "Completed scheduler ticks.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_scheduler_tick_duration_seconds",
			Help:    "Wall time of one scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		JobsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_jobs_published_total",
			Help: "Jobs dispatched successfully, by platform.",
		}, []string{"platform"}),
		JobsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_jobs_failed_total",
			Help: "Jobs that reached the failed state, by platform and error kind.",
		}, []string{"platform", "kind"}),
		ClaimConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_claim_conflicts_total",
			Help: "Claims lost to a concurrent tick, engine instance, or cancellation.",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_credential_cache_hits_total",
			Help: "Credential lookups served from the cache.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_credential_cache_misses_total",
			Help: "Credential lookups that fell through to the store.",
		}),
		CacheReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_credential_cache_reloads_total",
			Help: "Full cache reloads, by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.JobsPublishedTotal,
		m.JobsFailedTotal,
		m.ClaimConflictsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheReloadsTotal,
	)
	return m
}

// NewUnregistered creates collectors without registering them. Tests use
// this to avoid global registry collisions.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
