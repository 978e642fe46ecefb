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

// Mix buckets reported in RecommendationItem.MixBucket.
const (
	BucketWeakness    = "WEAKNESS_FOCUS"
	BucketProgressive = "PROGRESSIVE"
	BucketCoverage    = "COVERAGE"
	BucketExamPrep    = "EXAM_PREP"
	BucketRefresh     = "MASTERY_REFRESH"
	BucketFill        = "FILL"
)

// refreshAccuracy is the recent accuracy above which a problem counts as
// mastered.
const refreshAccuracy = 0.7

// bucketOrder is the allocation order; earlier buckets claim shared items.
var bucketOrder = [...]string{BucketWeakness, BucketProgressive, BucketCoverage, BucketExamPrep, BucketRefresh}

// objectiveShares are the bucket quotas per objective as fractions of the
// limit. Quotas are floored; the remainder is filled in ranked order.
var objectiveShares = map[Objective]map[string]float64{
	ObjectiveWeaknessFocus:         {BucketWeakness: 0.6, BucketProgressive: 0.2, BucketCoverage: 0.2},
	ObjectiveProgressiveDifficulty: {BucketProgressive: 0.5, BucketWeakness: 0.3, BucketCoverage: 0.2},
	ObjectiveTopicCoverage:         {BucketCoverage: 0.5, BucketProgressive: 0.3, BucketWeakness: 0.2},
	ObjectiveExamPrep:              {BucketExamPrep: 0.6, BucketWeakness: 0.25, BucketRefresh: 0.15},
	ObjectiveRefreshMastered:       {BucketRefresh: 0.6, BucketCoverage: 0.25, BucketProgressive: 0.15},
}

// Mixer reshapes ranked items toward the request's learning objective by
// filling per-objective quotas of weakness, progressive difficulty, topic
// coverage, exam prep and mastery refresh items.
type Mixer struct {
	logger zerolog.Logger
}

// NewMixer creates a mixer.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewMixer(logger zerolog.Logger) *Mixer {
	return &Mixer{logger: logger.With().Str("component", "mixer").Logger()}
}

// Mix returns at most rctx.Limit of items, chosen by the quotas of
// rctx.Objective and re-sorted by score. Requests without an objective, and
// a disabled mixer, pass items through unchanged. Mix never adds problems
// that are not in items.
func (m *Mixer) Mix(cfg *config.MixConfig, domains map[string]string, items []RecommendationItem, candidates map[int64]ProblemCandidate, rctx *RequestContext) []RecommendationItem {
	if len(items) == 0 || rctx == nil || rctx.Objective == "" || cfg == nil || !cfg.Enabled {
		return items
	}
	shares, ok := objectiveShares[rctx.Objective]
	if !ok {
		return items
	}
	limit := rctx.Limit
	if limit <= 0 {
		limit = len(items)
	}
	if len(domains) == 0 {
		domains = DefaultTagDomains
	}

	buckets := categorize(items, candidates, domains, rctx)
	used := make(map[int64]struct{}, limit)
	out := make([]RecommendationItem, 0, limit)
	counts := make(map[string]int, len(bucketOrder)+1)

	take := func(it RecommendationItem, bucket string) {
		used[it.ProblemID] = struct{}{}
		it.MixBucket = bucket
		out = append(out, it)
		counts[bucket]++
	}

	for _, bucket := range bucketOrder {
		quota := int(float64(limit)*shares[bucket] + 1e-9)
		if quota <= 0 {
			continue
		}
		pool := buckets[bucket]
		if bucket == BucketCoverage {
			pool = roundRobinByTopic(pool, candidates)
		} else {
			pool = byScore(pool)
		}
		for _, it := range pool {
			if quota == 0 || len(out) >= limit {
				break
			}
			if _, dup := used[it.ProblemID]; dup {
				continue
			}
			take(it, bucket)
			quota--
		}
	}

	for _, it := range items {
		if len(out) >= limit {
			break
		}
		if _, dup := used[it.ProblemID]; dup {
			continue
		}
		take(it, BucketFill)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	m.logger.Debug().
		Str("objective", string(rctx.Objective)).
		Int("input", len(items)).
		Int("weakness", counts[BucketWeakness]).
		Int("progressive", counts[BucketProgressive]).
		Int("coverage", counts[BucketCoverage]).
		Int("exam_prep", counts[BucketExamPrep]).
		Int("refresh", counts[BucketRefresh]).
		Int("fill", counts[BucketFill]).
		Msg("Recommendations mixed")
	return out
}

// categorize assigns items to every bucket they qualify for. Items without
// a known candidate only qualify for the fill.
func categorize(items []RecommendationItem, candidates map[int64]ProblemCandidate, domains map[string]string, rctx *RequestContext) map[string][]RecommendationItem {
	profile := rctx.Profile
	var weak, strong []string
	if profile != nil {
		weak, strong = profile.WeakDomains(), profile.StrongDomains()
	}
	target := rctx.DesiredDifficulty
	if target == "" && profile != nil && profile.DifficultyPref != nil {
		target = profile.DifficultyPref.Dominant()
	}

	out := make(map[string][]RecommendationItem, len(bucketOrder))
	for _, it := range items {
		c, ok := candidates[it.ProblemID]
		if !ok {
			continue
		}
		cd := candidateDomains(c.Tags, domains)

		if overlaps(cd, weak) {
			out[BucketWeakness] = append(out[BucketWeakness], it)
		}
		if progressive(c.Difficulty, target) {
			out[BucketProgressive] = append(out[BucketProgressive], it)
		}
		out[BucketCoverage] = append(out[BucketCoverage], it)
		if c.Attempts != nil {
			out[BucketExamPrep] = append(out[BucketExamPrep], it)
		}
		if floatOr(c.RecentAccuracy, 0) >= refreshAccuracy || overlaps(cd, strong) {
			out[BucketRefresh] = append(out[BucketRefresh], it)
		}
	}
	return out
}

// progressive accepts the target difficulty and one step above it. Unknown
// difficulties qualify.
func progressive(d, target Difficulty) bool {
	a, okA := difficultyLevel[d]
	b, okB := difficultyLevel[target]
	if !okA || !okB {
		return true
	}
	return a == b || a == b+1
}

func byScore(items []RecommendationItem) []RecommendationItem {
	out := make([]RecommendationItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// roundRobinByTopic interleaves items across topics so the coverage quota
// spans as many topics as it can. Topics keep the order in which they first
// appear; items keep their order within a topic.
func roundRobinByTopic(items []RecommendationItem, candidates map[int64]ProblemCandidate) []RecommendationItem {
	var topics []string
	byTopic := make(map[string][]RecommendationItem)
	for _, it := range items {
		t := topicOf(candidates[it.ProblemID])
		if _, seen := byTopic[t]; !seen {
			topics = append(topics, t)
		}
		byTopic[t] = append(byTopic[t], it)
	}

	out := make([]RecommendationItem, 0, len(items))
	for len(out) < len(items) {
		for _, t := range topics {
			if q := byTopic[t]; len(q) > 0 {
				out = append(out, q[0])
				byTopic[t] = q[1:]
			}
		}
	}
	return out
}

func topicOf(c ProblemCandidate) string {
	switch {
	case len(c.Tags) > 0:
		return strings.ToLower(c.Tags[0])
	case c.Topic != "":
		return strings.ToLower(c.Topic)
	default:
		return "general"
	}
}

// TopUp fills items up to limit with the fallback ranking of candidates.
// Problems already present and those in exclude are skipped, so an item a
// ranking stage dropped never comes back as filler. Only successful
// provider answers are topped up.
func TopUp(items []RecommendationItem, candidates []ProblemCandidate, limit int, exclude map[int64]struct{}) []RecommendationItem {
	if limit <= 0 || len(items) >= limit {
		return items
	}

	used := make(map[int64]struct{}, len(items)+len(exclude))
	for i := range items {
		used[items[i].ProblemID] = struct{}{}
	}
	for id := range exclude {
		used[id] = struct{}{}
	}

	out := make([]RecommendationItem, len(items), limit)
	copy(out, items)
	for _, fill := range FallbackRank(candidates, 0) {
		if len(out) >= limit {
			break
		}
		if _, dup := used[fill.ProblemID]; dup {
			continue
		}
		used[fill.ProblemID] = struct{}{}
		out = append(out, fill)
	}
	return out
}
