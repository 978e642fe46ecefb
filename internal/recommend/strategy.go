// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"time"

	"github.com/tomtom215/recoplane/internal/config"
)

// AUTO selection bonuses.
const (
	fastBonus       = 20
	fastEnoughBonus = 10
	objectiveBonus  = 15
	hybridBonus     = 5
)

// StrategyOption describes one concrete recommendation strategy.
type StrategyOption struct {
	Type          RecommendationType
	Priority      int
	EstimatedTime time.Duration
	Available     bool
}

// Supports reports whether the strategy serves objective. The scheduler
// alone only covers weakness focus and mastery refresh.
func (o StrategyOption) Supports(objective Objective) bool {
	if o.Type != TypeFSRS {
		return true
	}
	return objective == "" || objective == ObjectiveWeaknessFocus || objective == ObjectiveRefreshMastered
}

func (o StrategyOption) score(objective Objective) int {
	s := o.Priority
	switch {
	case o.EstimatedTime < 500*time.Millisecond:
		s += fastBonus
	case o.EstimatedTime < 1500*time.Millisecond:
		s += fastEnoughBonus
	}
	if o.Supports(objective) {
		s += objectiveBonus
	}
	if o.Type == TypeHybrid {
		s += hybridBonus
	}
	return s
}

// StrategyOptions builds the option set. The provider-backed strategies
// are available only while the LLM path is.
func StrategyOptions(cfg *config.StrategyConfig, llmAvailable bool) []StrategyOption {
	return []StrategyOption{
		{Type: TypeAI, Priority: cfg.AIPriority, EstimatedTime: cfg.AIEstimatedTime, Available: llmAvailable},
		{Type: TypeHybrid, Priority: cfg.HybridPriority, EstimatedTime: cfg.AIEstimatedTime, Available: llmAvailable},
		{Type: TypeFSRS, Priority: cfg.FSRSPriority, EstimatedTime: cfg.FSRSEstimatedTime, Available: true},
	}
}

// ResolveStrategy maps a requested type to a concrete one. An empty
// request uses the configured default; AUTO picks the best scoring
// available strategy; an unavailable choice degrades AI to HYBRID to FSRS.
// When nothing supports the objective the result is HYBRID, or FSRS while
// the LLM path is unavailable.
func ResolveStrategy(cfg *config.StrategyConfig, requested RecommendationType, objective Objective, llmAvailable bool) RecommendationType {
	opts := StrategyOptions(cfg, llmAvailable)
	if requested == "" {
		if t, ok := ParseRecommendationType(cfg.Default); ok {
			requested = t
		} else {
			requested = TypeHybrid
		}
	}

	fallback := TypeFSRS
	if llmAvailable {
		fallback = TypeHybrid
	}

	if requested == TypeAuto {
		return bestStrategy(opts, objective, fallback)
	}

	opt := findOption(opts, requested)
	if !opt.Available {
		switch requested {
		case TypeAI:
			if findOption(opts, TypeHybrid).Available {
				return TypeHybrid
			}
			return TypeFSRS
		default:
			return TypeFSRS
		}
	}
	if !opt.Supports(objective) {
		for _, o := range opts {
			if o.Available && o.Supports(objective) {
				return o.Type
			}
		}
		return fallback
	}
	return requested
}

func bestStrategy(opts []StrategyOption, objective Objective, fallback RecommendationType) RecommendationType {
	best, bestScore := fallback, -1
	for _, o := range opts {
		if !o.Available || !o.Supports(objective) {
			continue
		}
		if s := o.score(objective); s > bestScore {
			best, bestScore = o.Type, s
		}
	}
	return best
}

func findOption(opts []StrategyOption, t RecommendationType) StrategyOption {
	for _, o := range opts {
		if o.Type == t {
			return o
		}
	}
	return StrategyOption{Type: t}
}
