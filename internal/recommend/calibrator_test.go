// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func calibrationConfig() *config.CalibrationConfig {
	cfg := config.Default().Calibration
	return &cfg
}

func richProfile() *UserProfile {
	p := NewUserProfile("u1")
	p.OverallMastery = 0.6
	p.DomainSkills = map[string]DomainSkill{
		"graph":  {Samples: 30, SkillScore: 0.2, Strength: StrengthWeak},
		"arrays": {Samples: 30, SkillScore: 0.9, Strength: StrengthStrong},
	}
	p.DifficultyPref = &DifficultyPreference{Easy: 0.2, Medium: 0.6, Hard: 0.2}
	return p
}

func TestCalibrateDisabledPassesThrough(t *testing.T) {
	c := NewCalibrator(zerolog.Nop())
	cfg := calibrationConfig()
	cfg.Enabled = false

	items := []RecommendationItem{{ProblemID: 1, Confidence: 0.33, Reason: "x"}}
	out := c.Calibrate(cfg, nil, items, nil, nil, nil)
	if len(out) != 1 || out[0].Confidence != 0.33 || out[0].Reason != "x" {
		t.Errorf("disabled calibrator changed items: %+v", out)
	}

	if empty := c.Calibrate(calibrationConfig(), nil, nil, nil, nil, nil); empty == nil || len(empty) != 0 {
		t.Errorf("empty input = %#v", empty)
	}
}

func TestCalibrateRewardsEvidence(t *testing.T) {
	c := NewCalibrator(zerolog.Nop())
	cfg := calibrationConfig()

	rich := ProblemCandidate{
		ID:                   1,
		Tags:                 []string{"Graph"},
		Difficulty:           DifficultyMedium,
		UrgencyScore:         f64(0.8),
		RetentionProbability: f64(0.4),
		DaysOverdue:          iptr(2),
		Attempts:             iptr(10),
		RecentAccuracy:       f64(0.7),
	}
	bare := ProblemCandidate{ID: 2}
	byID := map[int64]ProblemCandidate{1: rich, 2: bare}
	meta := &LLMMeta{Provider: "openai", ResponseTime: time.Second, InputTokens: 100, OutputTokens: 50, Complete: true}

	items := []RecommendationItem{
		{ProblemID: 1, Score: 0.8, Confidence: 0.9},
		{ProblemID: 2, Score: 0.8, Confidence: 0.9},
	}
	out := c.Calibrate(cfg, nil, items, byID, richProfile(), meta)
	if len(out) != 2 {
		t.Fatalf("items = %d, want 2", len(out))
	}
	if out[0].Confidence <= out[1].Confidence {
		t.Errorf("well-evidenced item %v should outrank bare item %v", out[0].Confidence, out[1].Confidence)
	}
	for _, it := range out {
		if it.Confidence < 0 || it.Confidence > 1 {
			t.Errorf("confidence out of range: %v", it.Confidence)
		}
	}
}

func TestCalibrateLabelsAndThreshold(t *testing.T) {
	c := NewCalibrator(zerolog.Nop())
	cfg := calibrationConfig()
	cfg.AppendLabels = true

	items := []RecommendationItem{{ProblemID: 1, Reason: "Practice graphs" + LabelHigh}}
	out := c.Calibrate(cfg, nil, items, nil, nil, nil)
	if len(out) != 1 {
		t.Fatalf("items = %d", len(out))
	}
	if strings.Count(out[0].Reason, "Confidence]") != 1 {
		t.Errorf("reason should carry exactly one label: %q", out[0].Reason)
	}
	if !strings.HasPrefix(out[0].Reason, "Practice graphs [") {
		t.Errorf("reason = %q", out[0].Reason)
	}

	cfg.Thresholds.MinimumShow = 0.99
	if out := c.Calibrate(cfg, nil, items, nil, nil, nil); len(out) != 0 {
		t.Errorf("items below minimum_show should be dropped, got %d", len(out))
	}
}

func TestCalibrateIsIdempotent(t *testing.T) {
	c := NewCalibrator(zerolog.Nop())
	cfg := calibrationConfig()
	cfg.AppendLabels = true

	byID := map[int64]ProblemCandidate{
		1: {ID: 1, Tags: []string{"graph"}, Difficulty: DifficultyMedium, UrgencyScore: f64(0.7), Attempts: iptr(4), RecentAccuracy: f64(0.5)},
		2: {ID: 2, Tags: []string{"array"}, UrgencyScore: f64(0.2), RetentionProbability: f64(0.9)},
		3: {ID: 3},
	}
	meta := &LLMMeta{Provider: "openai", ResponseTime: 800 * time.Millisecond, InputTokens: 400, OutputTokens: 200, Complete: true}
	items := []RecommendationItem{
		{ProblemID: 1, Score: 0.9, Confidence: 0.95, Reason: "weak graph area"},
		{ProblemID: 2, Score: 0.4, Confidence: 0.2, Reason: "keep arrays fresh"},
		{ProblemID: 3, Score: 0.1, Confidence: 0.5, Reason: "unknown problem"},
	}

	once := c.Calibrate(cfg, nil, items, byID, richProfile(), meta)
	twice := c.Calibrate(cfg, nil, once, byID, richProfile(), meta)
	if len(once) != len(twice) {
		t.Fatalf("recalibration changed length: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].ProblemID != twice[i].ProblemID || !almostEqual(once[i].Confidence, twice[i].Confidence) ||
			once[i].Reason != twice[i].Reason || once[i].Score != twice[i].Score {
			t.Errorf("item %d: %+v -> %+v", i, once[i], twice[i])
		}
	}
}

func TestLLMQuality(t *testing.T) {
	c := NewCalibrator(zerolog.Nop())
	cfg := calibrationConfig()

	if got := c.llmQuality(cfg, nil); got != 0.5 {
		t.Errorf("nil meta = %v, want 0.5", got)
	}

	meta := &LLMMeta{Provider: "openai", ResponseTime: time.Second, InputTokens: 100, OutputTokens: 50, Complete: true}
	// 0.2*0.9 + 0.3*0.5 + 0.3*0.9 + 0.2
	if got := c.llmQuality(cfg, meta); !almostEqual(got, 0.8) {
		t.Errorf("llmQuality = %v, want 0.8", got)
	}

	cfg.ProviderReliability = map[string]float64{"openai": 0.5}
	if got := c.llmQuality(cfg, meta); !almostEqual(got, 0.68) {
		t.Errorf("configured reliability: llmQuality = %v, want 0.68", got)
	}

	if got := providerReliability(calibrationConfig(), "SomethingNew"); got != unknownProviderReliability {
		t.Errorf("unknown provider reliability = %v", got)
	}
}

func TestCalibrationComponents(t *testing.T) {
	profile := richProfile()

	t.Run("profile completeness", func(t *testing.T) {
		if got := profileCompleteness(nil); got != 0.1 {
			t.Errorf("nil = %v", got)
		}
		if got := profileCompleteness(profile); !almostEqual(got, 1.0) {
			t.Errorf("rich = %v, want 1", got)
		}
	})

	t.Run("fsrs data quality", func(t *testing.T) {
		if got := fsrsDataQuality(nil); got != 0.1 {
			t.Errorf("nil = %v", got)
		}
		c := &ProblemCandidate{UrgencyScore: f64(0.5), Attempts: iptr(5)}
		if got := fsrsDataQuality(c); !almostEqual(got, 0.4) {
			t.Errorf("partial = %v, want 0.4", got)
		}
	})

	t.Run("profile relevance", func(t *testing.T) {
		weakAndMedium := &ProblemCandidate{Tags: []string{"graph"}, Difficulty: DifficultyMedium}
		if got := profileRelevance(weakAndMedium, profile, DefaultTagDomains); !almostEqual(got, 0.9) {
			t.Errorf("weak domain with preferred difficulty = %v, want 0.9", got)
		}
		if got := profileRelevance(&ProblemCandidate{}, nil, DefaultTagDomains); got != 0.5 {
			t.Errorf("no profile = %v", got)
		}

		bfs := &ProblemCandidate{Tags: []string{"BFS"}, Difficulty: DifficultyMedium}
		if got := profileRelevance(bfs, profile, DefaultTagDomains); !almostEqual(got, 0.3) {
			t.Errorf("unmapped tag = %v, want 0.3", got)
		}
		custom := ResolveTagDomains(map[string]string{"Bfs": "graph"})
		if got := profileRelevance(bfs, profile, custom); !almostEqual(got, 0.9) {
			t.Errorf("configured mapping = %v, want 0.9", got)
		}
	})

	t.Run("consensus", func(t *testing.T) {
		c := &ProblemCandidate{UrgencyScore: f64(0.8)}
		if got := consensus(RecommendationItem{Score: 0.8}, c); got != 1 {
			t.Errorf("agreement = %v", got)
		}
		if got := consensus(RecommendationItem{Score: 0.1}, c); got != 0 {
			t.Errorf("disagreement = %v", got)
		}
		if got := consensus(RecommendationItem{Score: 0.1}, nil); got != 0.5 {
			t.Errorf("unknown = %v", got)
		}
	})

	t.Run("labels", func(t *testing.T) {
		th := calibrationConfig().Thresholds
		for conf, want := range map[float64]string{0.9: LabelHigh, 0.7: LabelMedium, 0.5: LabelLow, 0.1: LabelVeryLow} {
			if got := confidenceLabel(th, conf); got != want {
				t.Errorf("label(%v) = %q, want %q", conf, got, want)
			}
		}
		if got := stripConfidenceLabel("Go" + LabelLow); got != "Go" {
			t.Errorf("strip = %q", got)
		}
	})
}

func TestMetaFromResult(t *testing.T) {
	if MetaFromResult(nil) != nil {
		t.Error("nil result should give nil meta")
	}
	m := MetaFromResult(&ProviderResult{Provider: "openai", Latency: time.Second, PromptTokens: 3, CompletionTokens: 4, Complete: true})
	if m.Provider != "openai" || m.InputTokens != 3 || m.OutputTokens != 4 || !m.Complete {
		t.Errorf("meta = %+v", m)
	}
}
