// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRecommendation(t *testing.T) {
	tests := []struct {
		strategy string
		outcome  string
		items    int
	}{
		{"HYBRID", "llm", 10},
		{"FSRS", "fallback", 5},
		{"AI", "cache_hit", 10},
		{"AI", "toggle_off", 0},
	}

	for _, tt := range tests {
		t.Run(tt.strategy+"_"+tt.outcome, func(t *testing.T) {
			before := testutil.ToFloat64(RecommendationRequests.WithLabelValues(tt.strategy, tt.outcome))
			RecordRecommendation(tt.strategy, tt.outcome, tt.items, 25*time.Millisecond)
			after := testutil.ToFloat64(RecommendationRequests.WithLabelValues(tt.strategy, tt.outcome))
			if after-before != 1 {
				t.Errorf("expected counter to increase by 1, got %v", after-before)
			}
		})
	}
}

func TestRecordProviderHop(t *testing.T) {
	before := testutil.ToFloat64(ProviderHops.WithLabelValues("openai", "TIMEOUT"))
	RecordProviderHop("openai", "TIMEOUT", 1800*time.Millisecond)
	RecordProviderHop("openai", "success", 400*time.Millisecond)

	if got := testutil.ToFloat64(ProviderHops.WithLabelValues("openai", "TIMEOUT")) - before; got != 1 {
		t.Errorf("TIMEOUT hops = %v, want 1", got)
	}
}

func TestRecordChainFallback_TruncatesReason(t *testing.T) {
	long := strings.Repeat("x", 120)
	RecordChainFallback("main", long)

	if got := testutil.ToFloat64(ChainFallbacks.WithLabelValues("main", long[:50])); got < 1 {
		t.Errorf("expected truncated reason label to be recorded, got %v", got)
	}
}

func TestRecordTokens_SkipsZero(t *testing.T) {
	beforePrompt := testutil.ToFloat64(ProviderTokens.WithLabelValues("gpt-4o-mini", "prompt"))
	beforeCompletion := testutil.ToFloat64(ProviderTokens.WithLabelValues("gpt-4o-mini", "completion"))

	RecordTokens("gpt-4o-mini", 300, 0)

	if got := testutil.ToFloat64(ProviderTokens.WithLabelValues("gpt-4o-mini", "prompt")) - beforePrompt; got != 300 {
		t.Errorf("prompt tokens delta = %v, want 300", got)
	}
	if got := testutil.ToFloat64(ProviderTokens.WithLabelValues("gpt-4o-mini", "completion")) - beforeCompletion; got != 0 {
		t.Errorf("completion tokens delta = %v, want 0", got)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	RecordBreakerTransition("provider:openai", "closed", "open", BreakerOpen)

	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("provider:openai")); got != BreakerOpen {
		t.Errorf("state gauge = %v, want %v", got, BreakerOpen)
	}

	RecordBreakerTransition("provider:openai", "open", "half-open", BreakerHalfOpen)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("provider:openai")); got != BreakerHalfOpen {
		t.Errorf("state gauge = %v, want %v", got, BreakerHalfOpen)
	}
}

func TestRecordResultCache(t *testing.T) {
	hits := testutil.ToFloat64(ResultCacheHits)
	misses := testutil.ToFloat64(ResultCacheMisses)

	RecordResultCache(true)
	RecordResultCache(false)
	RecordResultCache(false)

	if got := testutil.ToFloat64(ResultCacheHits) - hits; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ResultCacheMisses) - misses; got != 2 {
		t.Errorf("misses delta = %v, want 2", got)
	}
}

func TestRecordBudgetSpend_IgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(BudgetSpendUSD.WithLabelValues("budget-test"))
	RecordBudgetSpend("budget-test", 0)
	RecordBudgetSpend("budget-test", -1)
	RecordBudgetSpend("budget-test", 0.25)

	if got := testutil.ToFloat64(BudgetSpendUSD.WithLabelValues("budget-test")) - before; got != 0.25 {
		t.Errorf("spend delta = %v, want 0.25", got)
	}
}

func TestTrackInFlight(t *testing.T) {
	before := testutil.ToFloat64(AdmissionInFlight)
	TrackInFlight(true)
	TrackInFlight(true)
	TrackInFlight(false)

	if got := testutil.ToFloat64(AdmissionInFlight) - before; got != 1 {
		t.Errorf("in-flight delta = %v, want 1", got)
	}
}

func TestRecordWarmerRun(t *testing.T) {
	RecordWarmerRun("partial", 8, 2, 3*time.Second)

	if testutil.ToFloat64(WarmerLastSuccess) == 0 {
		t.Error("expected last success timestamp to be set for a partial run")
	}
	if testutil.ToFloat64(WarmerUsers.WithLabelValues("failed")) < 2 {
		t.Error("expected failed users to be counted")
	}
}

func TestRecordConfigReload(t *testing.T) {
	applied := testutil.ToFloat64(ConfigReloads.WithLabelValues("applied"))
	rejected := testutil.ToFloat64(ConfigReloads.WithLabelValues("rejected"))

	RecordConfigReload(true)
	RecordConfigReload(false)

	if testutil.ToFloat64(ConfigReloads.WithLabelValues("applied"))-applied != 1 {
		t.Error("applied reload not counted")
	}
	if testutil.ToFloat64(ConfigReloads.WithLabelValues("rejected"))-rejected != 1 {
		t.Error("rejected reload not counted")
	}
}

// TestMetricGathering tests that metrics can be gathered using testutil
func TestMetricGathering(t *testing.T) {
	RecordAPIRequest("GET", "/healthz", "200", time.Millisecond)
	RecordInvalidation("review_completed", 3)

	problems, err := testutil.GatherAndLint(prometheus.DefaultGatherer)
	if err != nil {
		t.Logf("Lint errors (may be expected): %v", err)
	}
	for _, p := range problems {
		t.Logf("Metric lint problem: %s", p.Text)
	}
}
