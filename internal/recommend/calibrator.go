// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

// Confidence labels appended to reasons when calibration.append_labels is on.
const (
	LabelHigh    = " [High Confidence]"
	LabelMedium  = " [Medium Confidence]"
	LabelLow     = " [Low Confidence]"
	LabelVeryLow = " [Very Low Confidence]"
)

var confidenceLabels = []string{LabelHigh, LabelMedium, LabelLow, LabelVeryLow}

// defaultProviderReliability applies when calibration.provider_reliability
// has no entry for a provider.
var defaultProviderReliability = map[string]float64{
	"openai":    0.9,
	"anthropic": 0.9,
	"deepseek":  0.8,
}

const unknownProviderReliability = 0.7

// LLMMeta describes the provider answer the items came from.
type LLMMeta struct {
	Provider     string
	ResponseTime time.Duration
	InputTokens  int
	OutputTokens int
	Complete     bool
}

// MetaFromResult builds calibration metadata from a provider result.
func MetaFromResult(r *ProviderResult) *LLMMeta {
	if r == nil {
		return nil
	}
	return &LLMMeta{
		Provider:     r.Provider,
		ResponseTime: r.Latency,
		InputTokens:  r.PromptTokens,
		OutputTokens: r.CompletionTokens,
		Complete:     r.Complete,
	}
}

type confidenceComponents struct {
	llm        float64
	fsrs       float64
	profile    float64
	historical float64
	consensus  float64
	context    float64
}

// Calibrator replaces provider confidence with a weighted blend of response
// quality, scheduling data quality, profile relevance, historical accuracy
// and agreement between the provider score and scheduler urgency.
type Calibrator struct {
	logger zerolog.Logger
}

// NewCalibrator creates a calibrator.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCalibrator(logger zerolog.Logger) *Calibrator {
	return &Calibrator{logger: logger.With().Str("component", "calibrator").Logger()}
}

// Calibrate returns items with calibrated confidence, dropping those below
// the minimum-to-show threshold. Only Confidence (and the label suffix of
// Reason) changes; Score is an input, so calibrating twice gives the same
// result. domains maps tags to knowledge domains; nil selects
// DefaultTagDomains. With calibration disabled items pass through unchanged.
func (c *Calibrator) Calibrate(cfg *config.CalibrationConfig, domains map[string]string, items []RecommendationItem, candidates map[int64]ProblemCandidate, profile *UserProfile, meta *LLMMeta) []RecommendationItem {
	if len(items) == 0 {
		return []RecommendationItem{}
	}
	if cfg == nil || !cfg.Enabled {
		return items
	}
	if len(domains) == 0 {
		domains = DefaultTagDomains
	}

	llmQuality := c.llmQuality(cfg, meta)
	contextQuality := clamp01(0.3*profileCompleteness(profile) + 0.4*llmQuality + 0.3*cfg.SystemHealth)

	out := make([]RecommendationItem, 0, len(items))
	dropped := 0
	for _, it := range items {
		cand, ok := candidates[it.ProblemID]
		var cp *ProblemCandidate
		if ok {
			cp = &cand
		}

		comp := confidenceComponents{
			llm:        llmQuality,
			fsrs:       fsrsDataQuality(cp),
			profile:    profileRelevance(cp, profile, domains),
			historical: historicalAccuracy(cp),
			consensus:  consensus(it, cp),
			context:    contextQuality,
		}
		conf := combine(cfg.Weights, comp)
		if conf < cfg.Thresholds.MinimumShow {
			dropped++
			continue
		}

		it.Confidence = conf
		it.Reason = stripConfidenceLabel(it.Reason)
		if cfg.AppendLabels {
			it.Reason += confidenceLabel(cfg.Thresholds, conf)
		}
		out = append(out, it)
	}

	if dropped > 0 {
		c.logger.Debug().
			Int("dropped", dropped).
			Float64("minimum_show", cfg.Thresholds.MinimumShow).
			Msg("Low-confidence items filtered")
	}
	return out
}

func combine(w config.CalibrationWeights, c confidenceComponents) float64 {
	return clamp01(w.LLM*c.llm +
		w.FSRS*c.fsrs +
		w.Profile*c.profile +
		w.Historical*c.historical +
		w.Consensus*c.consensus +
		w.Context*c.context)
}

func (c *Calibrator) llmQuality(cfg *config.CalibrationConfig, meta *LLMMeta) float64 {
	if meta == nil {
		return 0.5
	}

	var q float64
	if meta.ResponseTime > 0 {
		q += 0.2 * max(0, 1-float64(meta.ResponseTime.Milliseconds())/10000)
	}
	if meta.InputTokens > 0 || meta.OutputTokens > 0 {
		q += 0.3 * min(1, float64(meta.OutputTokens)/float64(max(1, meta.InputTokens)))
	}
	if meta.Provider != "" {
		q += 0.3 * providerReliability(cfg, meta.Provider)
	}
	if meta.Complete {
		q += 0.2
	}
	return clamp01(q)
}

func providerReliability(cfg *config.CalibrationConfig, provider string) float64 {
	name := strings.ToLower(provider)
	if r, ok := cfg.ProviderReliability[name]; ok {
		return r
	}
	if r, ok := defaultProviderReliability[name]; ok {
		return r
	}
	return unknownProviderReliability
}

func profileCompleteness(p *UserProfile) float64 {
	if p == nil {
		return 0.1
	}
	var s float64
	if len(p.WeakDomains()) > 0 {
		s += 0.25
	}
	if len(p.StrongDomains()) > 0 {
		s += 0.25
	}
	if p.DifficultyPref != nil {
		s += 0.2
	}
	if p.OverallMastery > 0 {
		s += 0.3
	}
	return s
}

func fsrsDataQuality(c *ProblemCandidate) float64 {
	if c == nil {
		return 0.1
	}
	var q float64
	if floatOr(c.UrgencyScore, 0) > 0 {
		q += 0.3
	}
	if c.RetentionProbability != nil {
		q += 0.2
	}
	if c.DaysOverdue != nil {
		q += 0.1
	}
	if c.Attempts != nil {
		q += 0.2 * min(1, float64(*c.Attempts)/10)
	}
	if c.RecentAccuracy != nil {
		q += 0.2
	}
	return clamp01(q)
}

// profileRelevance rewards candidates in weak domains (and, independently,
// strong domains) and those at the learner's dominant difficulty.
func profileRelevance(c *ProblemCandidate, p *UserProfile, mapping map[string]string) float64 {
	if c == nil || p == nil {
		return 0.5
	}

	var r float64
	domains := candidateDomains(c.Tags, mapping)
	if overlaps(domains, p.WeakDomains()) {
		r += 0.6
	}
	if overlaps(domains, p.StrongDomains()) {
		r += 0.4
	}
	if c.Difficulty != "" && p.DifficultyPref != nil && c.Difficulty == p.DifficultyPref.Dominant() {
		r += 0.3
	}
	return clamp01(r)
}

func historicalAccuracy(c *ProblemCandidate) float64 {
	if c == nil || c.RecentAccuracy == nil {
		return 0.5
	}
	return clamp01(*c.RecentAccuracy)
}

// consensus compares the item score with scheduler urgency. Confidence is
// never consulted.
func consensus(it RecommendationItem, c *ProblemCandidate) float64 {
	if c == nil || c.UrgencyScore == nil {
		return 0.5
	}
	diff := it.Score - *c.UrgencyScore
	if diff < 0 {
		diff = -diff
	}
	return max(0, 1-2*diff)
}

func confidenceLabel(t config.CalibrationThresholds, conf float64) string {
	switch {
	case conf >= t.High:
		return LabelHigh
	case conf >= t.Medium:
		return LabelMedium
	case conf >= t.Low:
		return LabelLow
	default:
		return LabelVeryLow
	}
}

func stripConfidenceLabel(reason string) string {
	for _, l := range confidenceLabels {
		if strings.HasSuffix(reason, l) {
			return strings.TrimSuffix(reason, l)
		}
	}
	return reason
}

// candidateDomains returns the lowercased tags plus the domains they map to.
func candidateDomains(tags []string, mapping map[string]string) map[string]struct{} {
	out := make(map[string]struct{}, len(tags)*2)
	for _, t := range tags {
		lt := strings.ToLower(t)
		out[lt] = struct{}{}
		if d, ok := mapping[lt]; ok && d != otherDomain {
			out[d] = struct{}{}
		}
	}
	return out
}

func overlaps(set map[string]struct{}, values []string) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
