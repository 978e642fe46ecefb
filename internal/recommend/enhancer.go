// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

// otherDomain marks tags without a domain; such tags contribute nothing.
const otherDomain = "other"

// Selection quotas as fractions of the limit.
const (
	unconditionalShare = 0.6
	weakQuotaShare     = 0.4
	strongQuotaShare   = 0.3
)

// DefaultTagDomains maps lowercased problem tags to knowledge domains when
// enhancer.tag_domain_mapping is empty.
var DefaultTagDomains = map[string]string{
	"array":               "arrays",
	"linked-list":         "linked_lists",
	"hash-table":          "hash_tables",
	"string":              "strings",
	"two-pointers":        "two_pointers",
	"sliding-window":      "sliding_window",
	"binary-search":       "binary_search",
	"sorting":             "sorting",
	"backtracking":        "backtracking",
	"divide-and-conquer":  "divide_conquer",
	"greedy":              "greedy",
	"dynamic-programming": "dynamic_programming",
	"graph":               "graph",
	"tree":                "trees",
	"binary-tree":         "binary_trees",
	"heap":                "heaps",
	"priority-queue":      "heaps",
	"stack":               "stacks_queues",
	"queue":               "stacks_queues",
	"bit-manipulation":    "bit_manipulation",
	"math":                "math",
	"prefix-sum":          "prefix_sum",
	"union-find":          "union_find",
	"monotonic-stack":     "monotonic_stack",
	"trie":                "tries",
	"geometry":            "geometry",
	"matrix":              "matrices",
	"design":              "system_design",
	"simulation":          "simulation",
}

// ResolveTagDomains returns mapping with lowercased keys, or
// DefaultTagDomains when mapping is empty. The input is not modified.
func ResolveTagDomains(mapping map[string]string) map[string]string {
	if len(mapping) == 0 {
		return DefaultTagDomains
	}
	out := make(map[string]string, len(mapping))
	for tag, domain := range mapping {
		out[strings.ToLower(strings.TrimSpace(tag))] = domain
	}
	return out
}

// Enhancer filters and reorders candidates toward a learner's weak domains
// while keeping some strong-domain maintenance and unfamiliar exploration.
// Random-looking choices come from a hash of (problem, user, salt) so the
// same inputs always select the same candidates.
type Enhancer struct {
	logger zerolog.Logger
}

// NewEnhancer creates an enhancer.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewEnhancer(logger zerolog.Logger) *Enhancer {
	return &Enhancer{logger: logger.With().Str("component", "enhancer").Logger()}
}

type enhancedCandidate struct {
	candidate   ProblemCandidate
	domains     []string
	affinity    float64
	familiarity float64
	diversity   float64
	weight      float64
	weak        bool
	strong      bool
	unfamiliar  bool
}

// Enhance returns at most limit candidates drawn from candidates. Without a
// profile the first limit candidates are returned unchanged.
func (e *Enhancer) Enhance(cfg *config.EnhancerConfig, candidates []ProblemCandidate, profile *UserProfile, limit int) []ProblemCandidate {
	if len(candidates) == 0 || limit <= 0 {
		return nil
	}
	if profile == nil || cfg == nil || !cfg.Enabled {
		return candidates[:min(limit, len(candidates))]
	}

	mapping := ResolveTagDomains(cfg.TagDomainMapping)
	minSamples := cfg.MinSamples
	weakSet := toSet(profile.DomainsByStrength(StrengthWeak, minSamples))
	strongSet := toSet(profile.DomainsByStrength(StrengthStrong, minSamples))
	tagCounts := countTags(candidates)

	pool := make([]*enhancedCandidate, 0, len(candidates))
	for i := range candidates {
		ec := e.describe(candidates[i], profile, mapping, weakSet, strongSet)
		ec.diversity = tagDiversity(candidates[i].Tags, tagCounts, len(candidates))
		if !e.keep(ec, profile.UserID, cfg) {
			continue
		}
		ec.weight = learningWeight(ec, profile.Pattern())
		pool = append(pool, ec)
	}

	selected := selectMix(pool, cfg.DiversityWeight, limit)

	out := make([]ProblemCandidate, len(selected))
	for i, ec := range selected {
		out[i] = ec.candidate
	}

	e.logger.Debug().
		Str("user_id", profile.UserID).
		Int("input", len(candidates)).
		Int("kept", len(pool)).
		Int("selected", len(out)).
		Str("pattern", string(profile.Pattern())).
		Msg("Candidates enhanced")
	return out
}

func (e *Enhancer) describe(c ProblemCandidate, profile *UserProfile, mapping map[string]string, weakSet, strongSet map[string]struct{}) *enhancedCandidate {
	ec := &enhancedCandidate{candidate: c}

	seen := make(map[string]struct{}, len(c.Tags))
	for _, tag := range c.Tags {
		domain, ok := mapping[strings.ToLower(tag)]
		if !ok || domain == otherDomain {
			continue
		}
		if _, dup := seen[domain]; dup {
			continue
		}
		seen[domain] = struct{}{}
		ec.domains = append(ec.domains, domain)
	}

	known := 0
	var skillSum float64
	for _, d := range ec.domains {
		if _, ok := weakSet[d]; ok {
			ec.weak = true
		}
		if _, ok := strongSet[d]; ok {
			ec.strong = true
		}
		if skill, ok := profile.DomainSkills[d]; ok {
			skillSum += skill.SkillScore
			known++
		}
	}
	ec.unfamiliar = len(ec.domains) == 0 || known == 0

	switch {
	case len(ec.domains) == 0:
		ec.affinity = 0
	case known == 0:
		ec.affinity = 0.5
	default:
		ec.affinity = skillSum / float64(known)
	}

	if len(c.Tags) > 0 && len(profile.TagAffinity) > 0 {
		var sum float64
		n := 0
		for _, tag := range c.Tags {
			if a, ok := profile.TagAffinity[strings.ToLower(tag)]; ok {
				sum += a
				n++
			}
		}
		if n > 0 {
			ec.familiarity = sum / float64(n)
		}
	}
	return ec
}

// keep keeps every weak-domain candidate, a stable share of strong-domain
// candidates and a smaller stable share of unfamiliar ones.
func (e *Enhancer) keep(ec *enhancedCandidate, userID string, cfg *config.EnhancerConfig) bool {
	if ec.weak {
		return true
	}
	if ec.strong && detProb(ec.candidate.ID, userID, "strong") < cfg.StrongKeepProbability {
		return true
	}
	return ec.unfamiliar && detProb(ec.candidate.ID, userID, "unfamiliar") < cfg.ExplorationProbability
}

func learningWeight(ec *enhancedCandidate, pattern LearningPattern) float64 {
	w := 0.4*ec.affinity + 0.3*ec.familiarity + 0.3
	difficulty := ec.candidate.Difficulty

	switch pattern {
	case PatternStruggling:
		if difficulty == DifficultyEasy {
			w *= 1.5
		}
		if ec.weak {
			w *= 1.3
		}
	case PatternAdvanced:
		switch difficulty {
		case DifficultyHard:
			w *= 1.4
		case DifficultyMedium:
			w *= 1.2
		}
		if len(ec.domains) == 0 {
			w *= 1.3
		}
	default:
		if difficulty == DifficultyMedium {
			w *= 1.2
		}
		w *= 1 + 0.2*ec.affinity
	}

	if ec.weak {
		w *= 1.4
	}
	if ec.familiarity > 0.8 {
		w *= 0.9
	}
	return clamp(w, 0.1, 2.0)
}

// selectMix blends in diversity, sorts by weight and admits candidates: the
// top share unconditionally, the rest only when they add a new domain or
// tag, or fill the weak or strong quota.
func selectMix(pool []*enhancedCandidate, diversityWeight float64, limit int) []*enhancedCandidate {
	for _, ec := range pool {
		ec.weight = (1-diversityWeight)*ec.weight + diversityWeight*ec.diversity
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].weight != pool[j].weight {
			return pool[i].weight > pool[j].weight
		}
		return pool[i].candidate.ID < pool[j].candidate.ID
	})

	var (
		selected      = make([]*enhancedCandidate, 0, min(limit, len(pool)))
		domains       = map[string]struct{}{}
		tags          = map[string]struct{}{}
		weak, strong  int
		unconditional = unconditionalShare * float64(limit)
		weakQuota     = weakQuotaShare * float64(limit)
		strongQuota   = strongQuotaShare * float64(limit)
	)
	for _, ec := range pool {
		if len(selected) >= limit {
			break
		}
		admit := float64(len(selected)) < unconditional ||
			addsNew(ec.domains, domains) ||
			addsNew(ec.candidate.Tags, tags) ||
			(ec.weak && float64(weak) < weakQuota) ||
			(ec.strong && float64(strong) < strongQuota)
		if !admit {
			continue
		}

		selected = append(selected, ec)
		for _, d := range ec.domains {
			domains[d] = struct{}{}
		}
		for _, t := range ec.candidate.Tags {
			tags[t] = struct{}{}
		}
		if ec.weak {
			weak++
		}
		if ec.strong {
			strong++
		}
	}
	return selected
}

// tagDiversity is high for candidates whose tags are rare in the pool. A
// candidate without tags counts as fully diverse.
func tagDiversity(tags []string, counts map[string]int, n int) float64 {
	if len(tags) == 0 || n == 0 {
		return 1
	}
	var sum float64
	for _, t := range tags {
		sum += 1 - float64(counts[strings.ToLower(t)])/float64(n)
	}
	return clamp01(sum / float64(len(tags)))
}

func countTags(candidates []ProblemCandidate) map[string]int {
	counts := make(map[string]int)
	for i := range candidates {
		for _, t := range candidates[i].Tags {
			counts[strings.ToLower(t)]++
		}
	}
	return counts
}

func addsNew(values []string, seen map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// FNV-1a 64-bit parameters.
const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// detProb maps (problem, user, salt) to a stable value in [0, 1).
func detProb(problemID int64, userID, salt string) float64 {
	h := uint64(fnvOffset64)
	h ^= uint64(problemID)
	h *= fnvPrime64
	for i := 0; i < len(userID); i++ {
		h ^= uint64(userID[i])
		h *= fnvPrime64
	}
	for i := 0; i < len(salt); i++ {
		h ^= uint64(salt[i])
		h *= fnvPrime64
	}
	v := float64(h>>1) / float64(math.MaxInt64)
	if v >= 1 {
		return math.Nextafter(1, 0)
	}
	return v
}
