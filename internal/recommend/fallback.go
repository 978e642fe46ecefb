// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"fmt"
	"sort"
)

// FallbackRank orders candidates by scheduling urgency and returns the first
// limit as FSRS items. It is pure and total: the same candidates always
// produce the same ranking. A limit <= 0 returns every candidate.
//
// Order: urgency desc, days overdue desc, recent accuracy asc, id asc.
// Missing values rank as zero urgency, zero days overdue and perfect
// accuracy.
func FallbackRank(candidates []ProblemCandidate, limit int) []RecommendationItem {
	if len(candidates) == 0 {
		return []RecommendationItem{}
	}

	sorted := make([]ProblemCandidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if ua, ub := floatOr(a.UrgencyScore, 0), floatOr(b.UrgencyScore, 0); ua != ub {
			return ua > ub
		}
		if da, db := intOr(a.DaysOverdue, 0), intOr(b.DaysOverdue, 0); da != db {
			return da > db
		}
		if aa, ab := floatOr(a.RecentAccuracy, 1), floatOr(b.RecentAccuracy, 1); aa != ab {
			return aa < ab
		}
		return a.ID < b.ID
	})

	if limit <= 0 || limit > len(sorted) {
		limit = len(sorted)
	}

	items := make([]RecommendationItem, limit)
	for i := range limit {
		items[i] = fallbackItem(&sorted[i])
	}
	return items
}

func fallbackItem(c *ProblemCandidate) RecommendationItem {
	score := fallbackScore(c)
	return RecommendationItem{
		ProblemID:  c.ID,
		Title:      c.Title,
		Topic:      c.Topic,
		Reason:     fallbackReason(c),
		Confidence: score,
		Score:      score,
		Strategy:   StrategyFSRS,
		Source:     SourceFSRS,
	}
}

func fallbackScore(c *ProblemCandidate) float64 {
	if u := floatOr(c.UrgencyScore, 0); u > 0 {
		return clamp01(u)
	}
	return clamp01(1 - floatOr(c.RecentAccuracy, 0.5))
}

func fallbackReason(c *ProblemCandidate) string {
	switch days := intOr(c.DaysOverdue, 0); {
	case days > 1:
		return fmt.Sprintf("Overdue for review by %d days", days)
	case days == 1:
		return "Overdue for review by 1 day"
	case floatOr(c.UrgencyScore, 0) > 0:
		return "Due for review"
	case c.RecentAccuracy != nil && *c.RecentAccuracy < 0.6:
		return "Recent accuracy is low, worth another attempt"
	default:
		return "Scheduled practice"
	}
}
