// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

// Insight tags appended to reasons for the dominant hybrid signal.
const (
	InsightFSRS            = " [High FSRS urgency]"
	InsightPersonalization = " [Strong personal match]"
	InsightSimilarity      = " [Similar to your learning pattern]"
)

var hybridInsights = []string{InsightFSRS, InsightPersonalization, InsightSimilarity}

const insightThreshold = 0.7

var difficultyLevel = map[Difficulty]int{
	DifficultyEasy:   1,
	DifficultyMedium: 2,
	DifficultyHard:   3,
}

// HybridRanker re-scores provider items by blending the provider score with
// scheduler urgency, profile similarity and personalization.
type HybridRanker struct {
	logger zerolog.Logger
}

// NewHybridRanker creates a hybrid ranker.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHybridRanker(logger zerolog.Logger) *HybridRanker {
	return &HybridRanker{logger: logger.With().Str("component", "hybrid_ranker").Logger()}
}

type hybridScored struct {
	item            RecommendationItem
	score           float64
	fsrs            float64
	similarity      float64
	personalization float64
}

// Rank returns items re-scored and sorted by the hybrid score, tagged with
// source HYBRID. Items without a known candidate keep their provider score.
// domains maps tags to knowledge domains; nil selects DefaultTagDomains.
func (h *HybridRanker) Rank(cfg *config.HybridConfig, domains map[string]string, items []RecommendationItem, candidates map[int64]ProblemCandidate, profile *UserProfile) []RecommendationItem {
	if len(items) == 0 {
		return []RecommendationItem{}
	}
	if cfg == nil || !cfg.Enabled {
		return items
	}

	if len(domains) == 0 {
		domains = DefaultTagDomains
	}

	w := cfg.Weights
	scored := make([]hybridScored, 0, len(items))
	for _, it := range items {
		c, ok := candidates[it.ProblemID]
		if !ok {
			h.logger.Warn().Int64("problem_id", it.ProblemID).Msg("Candidate not found, keeping provider score")
			scored = append(scored, hybridScored{item: it, score: clamp01(it.Score)})
			continue
		}

		hs := hybridScored{
			item:            it,
			fsrs:            fsrsSignal(&c),
			similarity:      similaritySignal(&c, profile, domains),
			personalization: personalizationSignal(&c, profile),
		}
		hs.score = clamp01(w.LLM*clamp01(it.Score) +
			w.FSRS*hs.fsrs +
			w.Similarity*hs.similarity +
			w.Personalization*hs.personalization)
		scored = append(scored, hs)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	out := make([]RecommendationItem, len(scored))
	for i, hs := range scored {
		it := hs.item
		it.Score = hs.score
		it.Source = SourceHybrid
		if it.Reason != "" {
			it.Reason = stripInsight(it.Reason) + insight(hs)
		}
		out[i] = it
	}
	return out
}

// fsrsSignal = .6 urgency + .3 forgetting risk + .1 overdue weeks (capped).
func fsrsSignal(c *ProblemCandidate) float64 {
	var s float64
	if c.UrgencyScore != nil {
		s += 0.6 * *c.UrgencyScore
	}
	if c.RetentionProbability != nil {
		s += 0.3 * (1 - *c.RetentionProbability)
	}
	if d := intOr(c.DaysOverdue, 0); d > 0 {
		s += 0.1 * min(1, float64(d)/7)
	}
	return clamp01(s)
}

func similaritySignal(c *ProblemCandidate, p *UserProfile, mapping map[string]string) float64 {
	if p == nil {
		return 0.5
	}
	if len(c.Tags) == 0 {
		return 0
	}
	domains := candidateDomains(c.Tags, mapping)
	return clamp01(0.6*jaccard(domains, p.WeakDomains()) + 0.4*jaccard(domains, p.StrongDomains()))
}

func personalizationSignal(c *ProblemCandidate, p *UserProfile) float64 {
	if p == nil {
		return 0.5
	}

	var s float64
	if c.Difficulty != "" && p.DifficultyPref != nil {
		s += 0.5 * difficultyMatch(c.Difficulty, p.DifficultyPref.Dominant())
	}
	if len(c.Tags) > 0 {
		s += 0.3 * tagAffinity(c.Tags, p)
	}
	if c.RecentAccuracy != nil {
		target := clamp(p.OverallMastery-0.1, 0.3, 0.8)
		diff := *c.RecentAccuracy - target
		if diff < 0 {
			diff = -diff
		}
		s += 0.2 * max(0, 1-2*diff)
	}
	return clamp01(s)
}

func difficultyMatch(candidate, preferred Difficulty) float64 {
	a, okA := difficultyLevel[candidate]
	b, okB := difficultyLevel[preferred]
	if !okA || !okB {
		return 0
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return max(0, 1-0.3*float64(d))
}

// tagAffinity averages the profile's affinity for the candidate's tags,
// neutral when none is known.
func tagAffinity(tags []string, p *UserProfile) float64 {
	var sum float64
	n := 0
	for _, t := range tags {
		if a, ok := p.TagAffinity[strings.ToLower(t)]; ok {
			sum += a
			n++
		}
	}
	if n == 0 {
		return 0.5
	}
	return clamp01(sum / float64(n))
}

func jaccard(set map[string]struct{}, values []string) float64 {
	if len(set) == 0 && len(values) == 0 {
		return 0
	}
	inter := 0
	union := len(set)
	for _, v := range values {
		if _, ok := set[v]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func insight(hs hybridScored) string {
	switch {
	case hs.fsrs > insightThreshold:
		return InsightFSRS
	case hs.personalization > insightThreshold:
		return InsightPersonalization
	case hs.similarity > insightThreshold:
		return InsightSimilarity
	default:
		return ""
	}
}

// stripInsight removes a previous insight tag and confidence label. The
// calibrator runs after the hybrid ranker and re-appends the label.
func stripInsight(reason string) string {
	reason = stripConfidenceLabel(reason)
	for _, tag := range hybridInsights {
		if strings.HasSuffix(reason, tag) {
			return strings.TrimSuffix(reason, tag)
		}
	}
	return reason
}
