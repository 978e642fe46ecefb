// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"errors"
	"strings"
	"time"
)

// ErrEmptyUserID is returned when a request carries no user id.
var ErrEmptyUserID = errors.New("recommend: empty user id")

// Tier is the subscription segment used for routing and toggles.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierBronze   Tier = "BRONZE"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// ParseTier parses a tier case-insensitively. Unknown values return false.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case TierFree, TierBronze, TierSilver, TierGold, TierPlatinum:
		return t, true
	default:
		return "", false
	}
}

// Objective is the optional learning goal of a request.
type Objective string

const (
	ObjectiveWeaknessFocus         Objective = "weakness_focus"
	ObjectiveProgressiveDifficulty Objective = "progressive_difficulty"
	ObjectiveTopicCoverage         Objective = "topic_coverage"
	ObjectiveExamPrep              Objective = "exam_prep"
	ObjectiveRefreshMastered       Objective = "refresh_mastered"
)

// ParseObjective parses an objective case-insensitively. Empty and unknown
// values yield "".
func ParseObjective(s string) Objective {
	switch o := Objective(strings.ToLower(strings.TrimSpace(s))); o {
	case ObjectiveWeaknessFocus, ObjectiveProgressiveDifficulty, ObjectiveTopicCoverage,
		ObjectiveExamPrep, ObjectiveRefreshMastered:
		return o
	default:
		return ""
	}
}

// Difficulty is a problem difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// ParseDifficulty parses a difficulty case-insensitively. Unknown values
// yield "".
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	default:
		return ""
	}
}

// LearningPattern classifies overall learner progress.
type LearningPattern string

const (
	PatternStruggling     LearningPattern = "STRUGGLING"
	PatternSteadyProgress LearningPattern = "STEADY_PROGRESS"
	PatternAdvanced       LearningPattern = "ADVANCED"
)

// Strength classifies a learner's skill in one domain.
type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthNormal Strength = "NORMAL"
	StrengthStrong Strength = "STRONG"
)

// Source tags where a recommendation item came from.
type Source string

const (
	SourceLLM     Source = "LLM"
	SourceFSRS    Source = "FSRS"
	SourceHybrid  Source = "HYBRID"
	SourceDefault Source = "DEFAULT"
)

// RecommendationType is the strategy a caller asks for.
type RecommendationType string

const (
	TypeAI     RecommendationType = "AI"
	TypeFSRS   RecommendationType = "FSRS"
	TypeHybrid RecommendationType = "HYBRID"
	TypeAuto   RecommendationType = "AUTO"
)

// ParseRecommendationType parses a type case-insensitively. Empty and
// unknown values return false.
func ParseRecommendationType(s string) (RecommendationType, bool) {
	switch t := RecommendationType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TypeAI, TypeFSRS, TypeHybrid, TypeAuto:
		return t, true
	default:
		return "", false
	}
}

// Response strategies reported in Meta.Strategy.
const (
	StrategyNormal       = "normal"
	StrategyFSRS         = "fsrs"
	StrategyFSRSFallback = "fsrs_fallback"
	StrategyBusy         = "busy_message"
)

// ProblemCandidate is a practice problem offered to the ranking stages.
// Scheduling features are produced upstream and are read-only here; nil
// means the signal is unknown.
type ProblemCandidate struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title,omitempty"`
	Topic      string     `json:"topic,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Tags       []string   `json:"tags,omitempty"`

	// RecentAccuracy is the learner's accuracy on this problem (0..1).
	RecentAccuracy *float64 `json:"recentAccuracy,omitempty"`

	// Attempts is the number of reviews so far.
	Attempts *int `json:"attempts,omitempty"`

	// RetentionProbability is the scheduler's recall estimate (0..1).
	RetentionProbability *float64 `json:"retentionProbability,omitempty"`

	// DaysOverdue is how many days past the scheduled review date.
	DaysOverdue *int `json:"daysOverdue,omitempty"`

	// UrgencyScore folds due date and forgetting risk into one priority.
	UrgencyScore *float64 `json:"urgencyScore,omitempty"`
}

// RequestContext is everything the control plane knows about one request.
// It is built once by the RequestContextBuilder and passed by pointer but
// never modified afterwards.
type RequestContext struct {
	UserID            string
	Tier              Tier
	ABGroup           string
	Route             string
	TraceID           string
	Objective         Objective
	TargetDomains     []string
	DesiredDifficulty Difficulty
	TimeboxMinutes    int
	Profile           *UserProfile
	ForceRefresh      bool
	Type              RecommendationType
	Limit             int
}

// RecommendationItem is one ranked problem in a response.
type RecommendationItem struct {
	ProblemID  int64   `json:"problemId"`
	Title      string  `json:"title,omitempty"`
	Topic      string  `json:"topic,omitempty"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score"`
	Strategy   string  `json:"strategy"`
	Source     Source  `json:"source"`

	Model         string   `json:"model,omitempty"`
	PromptVersion string   `json:"promptVersion,omitempty"`
	LatencyMs     int64    `json:"latencyMs,omitempty"`
	Explanations  []string `json:"explanations,omitempty"`
	MixBucket     string   `json:"mixBucket,omitempty"`
}

// Request is the input of GetRecommendations. Tier, ABGroup and Route are
// hints supplied by the calling layer; the RequestContextBuilder resolves
// the authoritative values.
type Request struct {
	UserID         string
	Limit          int
	Type           string
	Objective      string
	Domains        []string
	Difficulty     string
	TimeboxMinutes int
	ForceRefresh   bool

	Tier    string
	ABGroup string
	Route   string
	TraceID string
}

// Meta carries diagnostics about how a response was produced.
type Meta struct {
	Cached             bool      `json:"cached"`
	TraceID            string    `json:"traceId"`
	GeneratedAt        time.Time `json:"generatedAt"`
	Busy               bool      `json:"busy"`
	Strategy           string    `json:"strategy"`
	RecommendationType string    `json:"recommendationType,omitempty"`
	ChainID            string    `json:"chainId,omitempty"`
	ChainHops          []string  `json:"chainHops"`
	FallbackReason     string    `json:"fallbackReason,omitempty"`
	FinalProvider      string    `json:"finalProvider,omitempty"`
	UserProfileSummary string    `json:"userProfileSummary,omitempty"`
	BudgetAction       string    `json:"budgetAction,omitempty"`
	ObjectiveHash      string    `json:"objectiveHash,omitempty"`
	Message            string    `json:"message,omitempty"`
}

// Response is the output of GetRecommendations.
type Response struct {
	Items []RecommendationItem `json:"items"`
	Meta  Meta                 `json:"meta"`
}

// AsyncResult is delivered on the channel returned by
// GetRecommendationsAsync.
type AsyncResult struct {
	Response *Response
	Err      error
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
