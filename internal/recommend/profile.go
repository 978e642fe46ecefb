// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultMinSamples is the number of reviews before a domain skill is
// trusted.
const DefaultMinSamples = 10

// maxProfileDomains caps the weak and strong domain lists.
const maxProfileDomains = 3

// DomainSkill aggregates a learner's performance in one knowledge domain.
type DomainSkill struct {
	Samples    int      `json:"samples"`
	Accuracy   float64  `json:"accuracy"`
	Retention  float64  `json:"retention"`
	LapseRate  float64  `json:"lapseRate"`
	AvgRTMs    float64  `json:"avgRtMs"`
	Attempts   int      `json:"attempts"`
	SkillScore float64  `json:"skillScore"`
	Strength   Strength `json:"strength"`
}

// IsReliable reports whether enough samples back the skill estimate.
func (d DomainSkill) IsReliable(minSamples int) bool {
	return d.Samples >= minSamples
}

// Difficulty preference levels.
const (
	LevelBuildingConfidence = "BUILDING_CONFIDENCE"
	LevelBalanced           = "BALANCED"
	LevelSeekingChallenge   = "SEEKING_CHALLENGE"
)

// Difficulty preference trends.
const (
	TrendIncreasing = "INCREASING"
	TrendDecreasing = "DECREASING"
	TrendStable     = "STABLE"
)

// DifficultyPreference holds the share of reviews per difficulty. The three
// proportions sum to roughly 1.
type DifficultyPreference struct {
	Easy           float64 `json:"easy"`
	Medium         float64 `json:"medium"`
	Hard           float64 `json:"hard"`
	Trend          string  `json:"trend,omitempty"`
	PreferredLevel string  `json:"preferredLevel,omitempty"`
}

// Dominant returns the difficulty with the largest share. Ties favor the
// harder level.
func (p DifficultyPreference) Dominant() Difficulty {
	switch {
	case p.Hard >= p.Medium && p.Hard >= p.Easy:
		return DifficultyHard
	case p.Medium >= p.Easy:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}

// UserProfile is the learner model fed to the ranking stages and prompts.
// It is produced by an external ProfileSource and treated as read-only.
type UserProfile struct {
	UserID                string                 `json:"userId"`
	GeneratedAt           time.Time              `json:"generatedAt"`
	Window                string                 `json:"window"`
	DomainSkills          map[string]DomainSkill `json:"domainSkills,omitempty"`
	DifficultyPref        *DifficultyPreference  `json:"difficultyPref,omitempty"`
	TagAffinity           map[string]float64     `json:"tagAffinity,omitempty"`
	OverallMastery        float64                `json:"overallMastery"`
	AverageAccuracy       float64                `json:"averageAccuracy"`
	TotalProblemsReviewed int                    `json:"totalProblemsReviewed"`
	TotalReviewAttempts   int                    `json:"totalReviewAttempts"`
	LearningPattern       LearningPattern        `json:"learningPattern"`
}

// NewUserProfile returns an empty profile with neutral defaults.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:          userID,
		GeneratedAt:     time.Now().UTC(),
		Window:          "recent90d",
		DomainSkills:    map[string]DomainSkill{},
		TagAffinity:     map[string]float64{},
		OverallMastery:  0.5,
		AverageAccuracy: 0.5,
		LearningPattern: PatternSteadyProgress,
	}
}

// Pattern returns the learning pattern, defaulting to steady progress.
func (p *UserProfile) Pattern() LearningPattern {
	if p == nil || p.LearningPattern == "" {
		return PatternSteadyProgress
	}
	return p.LearningPattern
}

// WeakDomains returns up to three reliable weak domains, lowest skill first.
func (p *UserProfile) WeakDomains() []string {
	return p.DomainsByStrength(StrengthWeak, DefaultMinSamples)
}

// StrongDomains returns up to three reliable strong domains, highest skill
// first.
func (p *UserProfile) StrongDomains() []string {
	return p.DomainsByStrength(StrengthStrong, DefaultMinSamples)
}

// DomainsByStrength returns up to three domains of the given strength backed
// by at least minSamples reviews. Weak domains sort by ascending skill, all
// others by descending skill; names break ties.
func (p *UserProfile) DomainsByStrength(strength Strength, minSamples int) []string {
	if p == nil || len(p.DomainSkills) == 0 {
		return nil
	}

	names := make([]string, 0, len(p.DomainSkills))
	for name, skill := range p.DomainSkills {
		if skill.Strength == strength && skill.IsReliable(minSamples) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := p.DomainSkills[names[i]].SkillScore, p.DomainSkills[names[j]].SkillScore
		if a != b {
			if strength == StrengthWeak {
				return a < b
			}
			return a > b
		}
		return names[i] < names[j]
	})

	if len(names) > maxProfileDomains {
		names = names[:maxProfileDomains]
	}
	return names
}

// Summary renders a one-line description for response metadata and logs.
func (p *UserProfile) Summary() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Learning: %s, Mastery: %.1f", strings.ToLower(string(p.Pattern())), p.OverallMastery)
	if weak := p.WeakDomains(); len(weak) > 0 {
		b.WriteString(", Weak: ")
		b.WriteString(strings.Join(weak, ", "))
	}
	if strong := p.StrongDomains(); len(strong) > 0 {
		b.WriteString(", Strong: ")
		b.WriteString(strings.Join(strong, ", "))
	}
	if p.DifficultyPref != nil {
		b.WriteString(", Prefers: ")
		b.WriteString(string(p.DifficultyPref.Dominant()))
	}
	return b.String()
}
