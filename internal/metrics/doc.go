// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered on the default registry through promauto and
exposed by the ops router at /metrics. Callers use the Record* helpers rather
than touching vectors directly so label sets stay consistent.

# Available Metrics

Request Metrics:
  - recoplane_requests_total: Requests by strategy and outcome (counter)
    Outcomes: llm, fallback, cache_hit, toggle_off, busy, error
  - recoplane_request_duration_seconds: End-to-end latency (histogram)
  - recoplane_response_items: Items per response (histogram)
  - recoplane_stage_failures_total: Enhancement stages that passed through (counter)

Provider Chain Metrics:
  - recoplane_provider_hop_duration_seconds: Per-attempt latency (histogram)
  - recoplane_provider_hops_total: Attempts by provider and outcome code (counter)
  - recoplane_chain_fallbacks_total: Fallbacks by chain and reason (counter)
  - recoplane_provider_rate_limited_total: Hops refused by node limiters (counter)
  - recoplane_provider_tokens_total: Tokens by model and kind (counter)

Circuit Breaker Metrics:
  - circuit_breaker_state: Current state (gauge), 0=closed, 1=half-open, 2=open
  - circuit_breaker_requests_total: Results through a breaker (counter)
  - circuit_breaker_state_transitions_total: Transitions (counter)

Cost and Admission Metrics:
  - recoplane_budget_decisions_total: APPROVE / REDUCE_CANDIDATES / EMERGENCY_FALLBACK
  - recoplane_budget_events_total: CHECK_ERROR, RECORD_ERROR
  - recoplane_budget_spend_usd_total: Estimated spend per chain
  - recoplane_admission_rejections_total: Semaphore timeouts by scope
  - recoplane_admission_in_flight, recoplane_admission_tracked_users (gauges)

Cache Metrics:
  - recoplane_result_cache_hits_total / _misses_total
  - recoplane_result_cache_evictions_total: Corrupt or mismatched entries removed
  - recoplane_cache_store_errors_total: Store errors by operation
  - recoplane_memory_store_entries, recoplane_memory_store_evictions_total
  - recoplane_invalidation_events_total, recoplane_invalidated_keys_total

Warmer Metrics:
  - recoplane_warmer_runs_total, recoplane_warmer_users_total
  - recoplane_warmer_run_duration_seconds, recoplane_warmer_last_success_timestamp

Ops Metrics:
  - http_requests_total, http_request_duration_seconds
  - recoplane_config_reloads_total

# Example PromQL

	# Fallback ratio over 5 minutes
	sum(rate(recoplane_requests_total{outcome="fallback"}[5m]))
	  / sum(rate(recoplane_requests_total[5m]))

	# p95 provider latency
	histogram_quantile(0.95, sum(rate(recoplane_provider_hop_duration_seconds_bucket[5m])) by (le, provider))
*/
package metrics
