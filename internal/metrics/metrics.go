// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the recommendation control plane:
// - request outcomes and latency per strategy
// - provider chain hops, breakers and rate limiting
// - cost guard decisions and admission control
// - result cache, invalidation and warming
// - ops HTTP surface and config reloads

var (
	// Recommendation Request Metrics
	RecommendationRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_requests_total",
			Help: "Total number of recommendation requests by resolved strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // outcome: llm, fallback, cache_hit, toggle_off, busy, error
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recoplane_request_duration_seconds",
			Help:    "End-to-end recommendation latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"strategy"},
	)

	RecommendationItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recoplane_response_items",
			Help:    "Number of items returned per recommendation response",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_stage_failures_total",
			Help: "Enhancement stages that failed and passed their input through",
		},
		[]string{"stage"}, // enhancer, calibrator, hybrid, mixer
	)

	// Provider Chain Metrics
	ProviderHopDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recoplane_provider_hop_duration_seconds",
			Help:    "Duration of a single provider attempt in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 1.8, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	ProviderHops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_provider_hops_total",
			Help: "Total provider attempts by outcome",
		},
		[]string{"provider", "outcome"}, // outcome: success, error code
	)

	ChainFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_chain_fallbacks_total",
			Help: "Requests that ended on the deterministic fallback, by reason",
		},
		[]string{"chain", "reason"},
	)

	ProviderRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_provider_rate_limited_total",
			Help: "Provider hops skipped by the per-node rate limiter",
		},
		[]string{"provider", "scope"}, // scope: node, user
	)

	ProviderTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_provider_tokens_total",
			Help: "Tokens consumed by successful provider calls",
		},
		[]string{"model", "kind"}, // kind: prompt, completion
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Cost Guard Metrics
	BudgetDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_budget_decisions_total",
			Help: "Cost guard decisions by action and reason",
		},
		[]string{"action", "reason"},
	)

	BudgetEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_budget_events_total",
			Help: "Cost guard events such as CHECK_ERROR and RECORD_ERROR",
		},
		[]string{"event"},
	)

	BudgetSpendUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_budget_spend_usd_total",
			Help: "Estimated LLM spend recorded by the cost guard in USD",
		},
		[]string{"chain"},
	)

	// Admission Control Metrics
	AdmissionRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_admission_rejections_total",
			Help: "Provider calls refused because a semaphore could not be acquired in time",
		},
		[]string{"scope"}, // global, user
	)

	AdmissionInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recoplane_admission_in_flight",
			Help: "Provider calls currently holding a global permit",
		},
	)

	AdmissionTrackedUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recoplane_admission_tracked_users",
			Help: "Per-user semaphores currently held in the LRU pool",
		},
	)

	// Result Cache Metrics
	ResultCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoplane_result_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	ResultCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoplane_result_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	ResultCacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_result_cache_evictions_total",
			Help: "Result cache entries removed outside of TTL expiry",
		},
		[]string{"reason"}, // corrupt, mismatch
	)

	CacheStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_cache_store_errors_total",
			Help: "Errors returned by the shared cache/counter store",
		},
		[]string{"operation"},
	)

	MemoryStoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recoplane_memory_store_entries",
			Help: "Current number of entries in the in-process store",
		},
	)

	MemoryStoreEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recoplane_memory_store_evictions_total",
			Help: "Entries evicted from the in-process store by capacity",
		},
	)

	// Invalidation Metrics
	InvalidationEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_invalidation_events_total",
			Help: "Cache invalidation hook invocations",
		},
		[]string{"hook"},
	)

	InvalidatedKeys = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_invalidated_keys_total",
			Help: "Keys deleted by invalidation hooks",
		},
		[]string{"hook"},
	)

	// Cache Warmer Metrics
	WarmerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_warmer_runs_total",
			Help: "Cache warming runs by outcome",
		},
		[]string{"outcome"}, // success, partial, skipped, error
	)

	WarmerUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_warmer_users_total",
			Help: "Users processed by the cache warmer",
		},
		[]string{"result"}, // warmed, failed
	)

	WarmerRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recoplane_warmer_run_duration_seconds",
			Help:    "Duration of cache warming runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 1800},
		},
	)

	WarmerLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recoplane_warmer_last_success_timestamp",
			Help: "Unix timestamp of the last successful warming run",
		},
	)

	// Configuration Metrics
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recoplane_config_reloads_total",
			Help: "Configuration reload attempts by outcome",
		},
		[]string{"outcome"}, // applied, rejected
	)

	// Ops API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests to the ops surface",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Ops HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// Breaker state values for CircuitBreakerState.
const (
	BreakerClosed   = 0
	BreakerHalfOpen = 1
	BreakerOpen     = 2
)

// RecordRecommendation records the outcome and latency of one request.
func RecordRecommendation(strategy, outcome string, items int, duration time.Duration) {
	RecommendationRequests.WithLabelValues(strategy, outcome).Inc()
	RecommendationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	RecommendationItems.Observe(float64(items))
}

// RecordStageFailure counts an enhancement stage that recovered and passed through.
func RecordStageFailure(stage string) {
	StageFailures.WithLabelValues(stage).Inc()
}

// RecordProviderHop records one provider attempt. outcome is "success" or the
// provider error code.
func RecordProviderHop(provider, outcome string, duration time.Duration) {
	ProviderHopDuration.WithLabelValues(provider).Observe(duration.Seconds())
	ProviderHops.WithLabelValues(provider, outcome).Inc()
}

// RecordChainFallback records a request that fell back to the local ranking.
func RecordChainFallback(chainID, reason string) {
	ChainFallbacks.WithLabelValues(chainID, truncateLabel(reason)).Inc()
}

// RecordRateLimited records a hop refused by a node rate limiter.
func RecordRateLimited(provider, scope string) {
	ProviderRateLimited.WithLabelValues(provider, scope).Inc()
}

// RecordTokens records token usage of a successful provider call.
func RecordTokens(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		ProviderTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ProviderTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordBreakerTransition updates the state gauge and the transition counter.
func RecordBreakerTransition(name, from, to string, toValue float64) {
	CircuitBreakerState.WithLabelValues(name).Set(toValue)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordBreakerRequest records a request result through a breaker.
func RecordBreakerRequest(name, result string) {
	CircuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordBudgetDecision records a cost guard decision.
func RecordBudgetDecision(action, reason string) {
	BudgetDecisions.WithLabelValues(action, reason).Inc()
}

// RecordBudgetEvent records a cost guard event.
func RecordBudgetEvent(event string) {
	BudgetEvents.WithLabelValues(event).Inc()
}

// RecordBudgetSpend adds estimated spend for a chain.
func RecordBudgetSpend(chainID string, usd float64) {
	if usd > 0 {
		BudgetSpendUSD.WithLabelValues(chainID).Add(usd)
	}
}

// RecordAdmissionRejected records a semaphore acquire timeout.
func RecordAdmissionRejected(scope string) {
	AdmissionRejections.WithLabelValues(scope).Inc()
}

// TrackInFlight tracks provider calls holding a global permit.
func TrackInFlight(inc bool) {
	if inc {
		AdmissionInFlight.Inc()
	} else {
		AdmissionInFlight.Dec()
	}
}

// RecordResultCache records a result cache lookup.
func RecordResultCache(hit bool) {
	if hit {
		ResultCacheHits.Inc()
	} else {
		ResultCacheMisses.Inc()
	}
}

// RecordResultCacheEviction records an entry removed because it could not be used.
func RecordResultCacheEviction(reason string) {
	ResultCacheEvictions.WithLabelValues(reason).Inc()
}

// RecordStoreError records an error from the shared store.
func RecordStoreError(operation string) {
	CacheStoreErrors.WithLabelValues(operation).Inc()
}

// RecordInvalidation records an invalidation hook and the keys it removed.
func RecordInvalidation(hook string, keys int) {
	InvalidationEvents.WithLabelValues(hook).Inc()
	if keys > 0 {
		InvalidatedKeys.WithLabelValues(hook).Add(float64(keys))
	}
}

// RecordWarmerRun records a finished warming run.
func RecordWarmerRun(outcome string, warmed, failed int, duration time.Duration) {
	WarmerRuns.WithLabelValues(outcome).Inc()
	WarmerRunDuration.Observe(duration.Seconds())
	if warmed > 0 {
		WarmerUsers.WithLabelValues("warmed").Add(float64(warmed))
	}
	if failed > 0 {
		WarmerUsers.WithLabelValues("failed").Add(float64(failed))
	}
	if outcome == "success" || outcome == "partial" {
		WarmerLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// RecordConfigReload records a configuration reload attempt.
func RecordConfigReload(applied bool) {
	if applied {
		ConfigReloads.WithLabelValues("applied").Inc()
	} else {
		ConfigReloads.WithLabelValues("rejected").Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// truncateLabel bounds free-form label values.
func truncateLabel(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}
