// Package metrics registers the Prometheus collectors the pipeline exposes,
// grounded on boskos/metrics/metrics.go's and ghproxy/ghmetrics's
// NewCounter/NewGauge + MustRegister style and "component_noun" naming
// convention.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TokensAcquiredTotal counts successful Acquire calls against the
	// token pool, labeled by the provider the token belongs to.
	TokensAcquiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildfeatures_tokenpool_acquired_total",
		Help: "Number of tokens successfully acquired from the pool.",
	}, []string{"provider"})

	// TokensAllRateLimitedTotal counts AllRateLimited errors raised by the
	// pool.
	TokensAllRateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildfeatures_tokenpool_all_rate_limited_total",
		Help: "Number of times Acquire found every token on cooldown.",
	}, []string{"provider"})

	// TokenCooldownSeconds observes how long a token's cooldown was set for,
	// split by whether it was a primary or secondary rate limit.
	TokenCooldownSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildfeatures_tokenpool_cooldown_seconds",
		Help:    "Cooldown duration applied to a token.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"}) // kind = primary|secondary

	// ChordGroupsCompletedTotal counts chord callbacks that fired, labeled
	// by stage (fetch|ingestion|processing) and whether any group member
	// failed.
	ChordGroupsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildfeatures_orchestrator_chord_completed_total",
		Help: "Number of chord callbacks that ran to completion.",
	}, []string{"stage", "had_failures"})

	// ResourceLockWaitSeconds observes how long callers waited to acquire a
	// distributed clone/worktree lock.
	ResourceLockWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "buildfeatures_resource_lock_wait_seconds",
		Help:    "Time spent waiting to acquire a distributed resource lock.",
		Buckets: prometheus.DefBuckets,
	}, []string{"lock_kind"}) // lock_kind = clone|worktree

	// DAGNodeOutcomesTotal counts feature DAG node executions by outcome.
	DAGNodeOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildfeatures_featuredag_node_outcomes_total",
		Help: "Feature DAG node executions by node name and outcome.",
	}, []string{"node", "status"}) // status = success|failed|skipped

	// IngestionBuildsTotal counts IngestionBuild records by terminal status.
	IngestionBuildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "buildfeatures_ingestion_builds_total",
		Help: "IngestionBuild records reaching a terminal status.",
	}, []string{"status"})
)

// Register registers every collector with the default Prometheus registry.
// Safe to call once at process start; mirrors boskos/metrics's
// init-then-MustRegister sequencing.
func Register() {
	prometheus.MustRegister(
		TokensAcquiredTotal,
		TokensAllRateLimitedTotal,
		TokenCooldownSeconds,
		ChordGroupsCompletedTotal,
		ResourceLockWaitSeconds,
		DAGNodeOutcomesTotal,
		IngestionBuildsTotal,
	)
}
