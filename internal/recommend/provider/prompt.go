// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package provider

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recoplane/internal/recommend"
)

// Prompt versions.
const (
	PromptV1 = "v1"
	PromptV2 = "v2"
)

// Prompt limits on the number of requested items.
const (
	minPromptItems     = 1
	maxPromptItems     = 50
	defaultPromptItems = 10
)

const systemV1 = `You are a recommendation re-ranking engine for algorithm problems.
Return STRICT JSON only with schema: {"items": [{"problemId": number, "reason": string, "confidence": number, "strategy": string, "score": number}]}.
No markdown, no explanations, no extra fields.`

const systemV2 = `You are an intelligent algorithm problem recommendation engine. Analyze the learner's patterns and recommend the problems best suited to their progression.

Principles:
- Prioritize weak areas to close knowledge gaps
- Keep difficulty progression neither too easy nor too hard
- Keep topics diverse
- Consider recent performance and attempt counts

Output:
- Return ONLY valid JSON with schema: {"items": [{"problemId": number, "reason": string, "confidence": number, "strategy": string, "score": number}]}
- No markdown formatting or additional text
- problemId must be one of the candidates
- confidence and score are between 0.0 and 1.0
- strategy is one of "weakness_focus", "progressive_difficulty", "topic_coverage", "review_reinforcement"

Never invent a problemId and never return more items than requested.`

// PromptBuilder renders versioned chat prompts. Unknown versions render v1.
type PromptBuilder struct{}

// System returns the system message for version.
func (PromptBuilder) System(version string) string {
	if version == PromptV2 {
		return systemV2
	}
	return systemV1
}

// User returns the user message for version.
func (b PromptBuilder) User(rctx *recommend.RequestContext, candidates []recommend.ProblemCandidate, opts recommend.CallOptions, version string) string {
	if version == PromptV2 {
		return b.userV2(rctx, candidates, promptLimit(opts.Limit))
	}
	return b.userV1(rctx, candidates, promptLimit(opts.Limit))
}

func (PromptBuilder) userV1(rctx *recommend.RequestContext, candidates []recommend.ProblemCandidate, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: Rank the candidates and return top %d items.\n", limit)
	fmt.Fprintf(&sb, "User: %s\n", orDefault(userID(rctx), "unknown"))
	fmt.Fprintf(&sb, "Route: %s\n", orDefault(route(rctx), "ai-recommendations"))
	if rctx != nil && rctx.Objective != "" {
		fmt.Fprintf(&sb, "Objective: %s\n", rctx.Objective)
	}
	sb.WriteString("Constraints: Output strictly as JSON object with field 'items'.\n")
	sb.WriteString("Candidates: ")
	sb.WriteString(compactCandidates(candidates))
	sb.WriteString("\nReturn only JSON. Example: ")
	sb.WriteString(`{"items":[{"problemId":1,"reason":"...","confidence":0.8,"strategy":"progressive","score":0.8}]}`)
	return sb.String()
}

func (PromptBuilder) userV2(rctx *recommend.RequestContext, candidates []recommend.ProblemCandidate, limit int) string {
	var sb strings.Builder
	sb.WriteString("## Task\n")
	fmt.Fprintf(&sb, "Select and rank the top %d algorithm problems for this learner.\n\n", limit)

	sb.WriteString("## User Profile\n")
	fmt.Fprintf(&sb, "- User ID: %s\n", orDefault(userID(rctx), "unknown"))
	if rctx != nil {
		fmt.Fprintf(&sb, "- Tier: %s\n", orDefault(string(rctx.Tier), string(recommend.TierBronze)))
		fmt.Fprintf(&sb, "- AB Group: %s\n", orDefault(rctx.ABGroup, "default"))
	}

	var profile *recommend.UserProfile
	if rctx != nil {
		profile = rctx.Profile
	}
	if profile != nil {
		strong := slices.Sorted(slices.Values(profile.StrongDomains()))
		fmt.Fprintf(&sb, "- Learning Pattern: %s\n", profile.Pattern())
		fmt.Fprintf(&sb, "- Overall Mastery: %s\n", percent(profile.OverallMastery))
		fmt.Fprintf(&sb, "- Average Accuracy: %s\n", percent(profile.AverageAccuracy))
		fmt.Fprintf(&sb, "- Weak Domains: %s\n", strings.Join(profile.WeakDomains(), ", "))
		fmt.Fprintf(&sb, "- Strong Domains: %s\n", strings.Join(strong, ", "))
		fmt.Fprintf(&sb, "- Learning Approach: %s\n\n", learningApproach(profile))
	} else {
		sb.WriteString("- Learning Pattern: insufficient data\n\n")
	}

	if rctx != nil && (rctx.Objective != "" || len(rctx.TargetDomains) > 0 || rctx.DesiredDifficulty != "" || rctx.TimeboxMinutes > 0) {
		sb.WriteString("## Session Goal\n")
		if rctx.Objective != "" {
			fmt.Fprintf(&sb, "- Objective: %s\n", rctx.Objective)
		}
		if len(rctx.TargetDomains) > 0 {
			fmt.Fprintf(&sb, "- Target Domains: %s\n", strings.Join(rctx.TargetDomains, ", "))
		}
		if rctx.DesiredDifficulty != "" {
			fmt.Fprintf(&sb, "- Desired Difficulty: %s\n", rctx.DesiredDifficulty)
		}
		if rctx.TimeboxMinutes > 0 {
			fmt.Fprintf(&sb, "- Timebox: %d minutes\n", rctx.TimeboxMinutes)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Available Problems\n")
	sb.WriteString(detailedCandidates(candidates))
	sb.WriteString("\n\n## Recommendation Strategy\n")
	if profile != nil {
		strong := slices.Sorted(slices.Values(profile.StrongDomains()))
		sb.WriteString("Prioritize problems that:\n")
		fmt.Fprintf(&sb, "1. Address weak domains: %s\n", strings.Join(profile.WeakDomains(), ", "))
		fmt.Fprintf(&sb, "2. Build on strong domains: %s\n", strings.Join(strong, ", "))
		fmt.Fprintf(&sb, "3. Match difficulty preference: %s\n", preferredLevel(profile))
		fmt.Fprintf(&sb, "4. Provide a challenge suited to overall mastery (%s)\n\n", percent(profile.OverallMastery))
	} else {
		sb.WriteString("Prioritize problems that:\n")
		sb.WriteString("1. Address identified weak areas\n")
		sb.WriteString("2. Maintain appropriate difficulty progression\n")
		sb.WriteString("3. Provide topic diversity\n\n")
	}
	fmt.Fprintf(&sb, "Return exactly %d items as JSON only.", limit)
	return sb.String()
}

type compactCandidate struct {
	ID             int64                `json:"id"`
	Topic          string               `json:"topic,omitempty"`
	Difficulty     recommend.Difficulty `json:"difficulty,omitempty"`
	Tags           []string             `json:"tags,omitempty"`
	RecentAccuracy *float64             `json:"recentAccuracy,omitempty"`
	Attempts       *int                 `json:"attempts,omitempty"`
}

type detailedCandidate struct {
	ProblemID      int64                `json:"problemId"`
	Topic          string               `json:"topic"`
	Difficulty     recommend.Difficulty `json:"difficulty"`
	Tags           []string             `json:"tags"`
	Accuracy       float64              `json:"accuracy"`
	Attempts       int                  `json:"attempts"`
	LearningStatus string               `json:"learningStatus,omitempty"`
}

func compactCandidates(candidates []recommend.ProblemCandidate) string {
	out := make([]compactCandidate, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		out = append(out, compactCandidate{
			ID:             c.ID,
			Topic:          c.Topic,
			Difficulty:     c.Difficulty,
			Tags:           c.Tags,
			RecentAccuracy: c.RecentAccuracy,
			Attempts:       c.Attempts,
		})
	}
	return marshalOrEmpty(out)
}

func detailedCandidates(candidates []recommend.ProblemCandidate) string {
	out := make([]detailedCandidate, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		d := detailedCandidate{
			ProblemID:  c.ID,
			Topic:      orDefault(c.Topic, "uncategorized"),
			Difficulty: c.Difficulty,
			Tags:       c.Tags,
		}
		if d.Difficulty == "" {
			d.Difficulty = recommend.DifficultyMedium
		}
		if d.Tags == nil {
			d.Tags = []string{}
		}
		if c.Attempts != nil {
			d.Attempts = *c.Attempts
		}
		if c.RecentAccuracy != nil {
			acc := *c.RecentAccuracy
			d.Accuracy = math.Round(acc*100) / 100
			switch {
			case acc < 0.4:
				d.LearningStatus = "needs_attention"
			case acc > 0.8:
				d.LearningStatus = "mastered"
			default:
				d.LearningStatus = "progressing"
			}
		}
		out = append(out, d)
	}
	return marshalOrEmpty(out)
}

func marshalOrEmpty(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func learningApproach(p *recommend.UserProfile) string {
	switch preferredLevel(p) {
	case recommend.LevelSeekingChallenge:
		return "CHALLENGE_FOCUSED"
	case recommend.LevelBuildingConfidence:
		return "CONFIDENCE_BUILDING"
	default:
		return "BALANCED_GROWTH"
	}
}

func preferredLevel(p *recommend.UserProfile) string {
	if p == nil || p.DifficultyPref == nil || p.DifficultyPref.PreferredLevel == "" {
		return recommend.LevelBalanced
	}
	return p.DifficultyPref.PreferredLevel
}

func promptLimit(limit int) int {
	if limit <= 0 {
		return defaultPromptItems
	}
	return min(max(limit, minPromptItems), maxPromptItems)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func userID(rctx *recommend.RequestContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.UserID
}

func route(rctx *recommend.RequestContext) string {
	if rctx == nil {
		return ""
	}
	return rctx.Route
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
