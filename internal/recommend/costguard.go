// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// BudgetAction is the verdict of a budget check.
type BudgetAction string

const (
	BudgetApprove           BudgetAction = "APPROVE"
	BudgetReduceCandidates  BudgetAction = "REDUCE_CANDIDATES"
	BudgetEmergencyFallback BudgetAction = "EMERGENCY_FALLBACK"
)

// Budget decision reasons, also used as budget event labels.
const (
	BudgetReasonApproved         = "APPROVED"
	BudgetReasonDisabled         = "DISABLED"
	BudgetReasonDailyEmergency   = "DAILY_EMERGENCY_THRESHOLD"
	BudgetReasonDailyWarning     = "DAILY_WARNING_THRESHOLD"
	BudgetReasonMonthlyEmergency = "MONTHLY_EMERGENCY_THRESHOLD"
	BudgetReasonChainEmergency   = "CHAIN_EMERGENCY_THRESHOLD"
	BudgetReasonUserTokenLimit   = "USER_TOKEN_LIMIT"
	BudgetReasonCheckError       = "CHECK_ERROR"
)

// Token estimation constants.
const (
	systemMessageTokens      = 50
	promptTokensPerCandidate = 20
	outputTokensPerCandidate = 40
	defaultRatePerThousand   = 0.002
	maxReducedCandidates     = 5
)

// Counter retention.
const (
	dailyCostTTL   = 7 * 24 * time.Hour
	monthlyCostTTL = 60 * 24 * time.Hour
	chainCostTTL   = 7 * 24 * time.Hour
	userTokensTTL  = 2 * 24 * time.Hour
	usageMarkerTTL = 2 * 24 * time.Hour
)

// builtinRates are USD per 1k tokens. Configured model_rates take precedence.
var builtinRates = map[string]float64{
	"deepseek-chat": 0.00014,
	"gpt-3.5-turbo": 0.0015,
	"gpt-4":         0.03,
	"gpt-4-turbo":   0.01,
	"gpt-4o-mini":   0.0006,
}

// BudgetDecision is the result of CheckBudget. ReducedCount is set only for
// BudgetReduceCandidates.
type BudgetDecision struct {
	Action       BudgetAction
	Reason       string
	ReducedCount int
	Estimate     TokenEstimate
}

// Allowed reports whether the LLM call may proceed.
func (d BudgetDecision) Allowed() bool {
	return d.Action != BudgetEmergencyFallback
}

// TokenEstimate is a pre-call guess at usage and cost.
type TokenEstimate struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          float64
}

// CostGuard enforces daily, monthly, per-chain and per-user LLM budgets
// against counters in the shared store. Counters only ever grow; a day or
// month rolls over by switching to a new key.
type CostGuard struct {
	store  cache.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewCostGuard creates a guard over store.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewCostGuard(store cache.Store, logger zerolog.Logger) *CostGuard {
	return &CostGuard{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("component", "cost_guard").Logger(),
	}
}

// RateFor returns the USD price per 1k tokens for model.
func RateFor(cfg *config.BudgetConfig, model string) float64 {
	if cfg != nil {
		if rate, ok := cfg.RateFor(model); ok {
			return rate
		}
	}
	if rate, ok := builtinRates[strings.ToLower(model)]; ok {
		return rate
	}
	return defaultRatePerThousand
}

// Estimate predicts token usage for a call with the given prompt size and
// candidate count.
func Estimate(cfg *config.BudgetConfig, model string, promptTokens, candidateCount int) TokenEstimate {
	prompt := promptTokens + systemMessageTokens + promptTokensPerCandidate*candidateCount
	completion := outputTokensPerCandidate * candidateCount
	total := prompt + completion
	return TokenEstimate{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
		CostUSD:          float64(total) / 1000 * RateFor(cfg, model),
	}
}

// CheckBudget decides whether an LLM call for chainID may proceed. Store
// errors approve the call: availability wins over a missed budget check.
func (g *CostGuard) CheckBudget(ctx context.Context, cfg *config.BudgetConfig, userID, chainID, model string, promptTokens, candidateCount int) BudgetDecision {
	if cfg == nil || !cfg.Enabled || g.store == nil {
		return g.decide(BudgetDecision{Action: BudgetApprove, Reason: BudgetReasonDisabled})
	}

	est := Estimate(cfg, model, promptTokens, candidateCount)
	decision, err := g.evaluate(ctx, cfg, userID, chainID, est, candidateCount)
	if err != nil {
		g.logger.Error().Err(err).
			Str("user_id", userID).
			Str("chain_id", chainID).
			Msg("Budget check failed, approving")
		metrics.RecordBudgetEvent(BudgetReasonCheckError)
		return g.decide(BudgetDecision{Action: BudgetApprove, Reason: BudgetReasonCheckError, Estimate: est})
	}

	if decision.Action != BudgetApprove {
		g.logger.Warn().
			Str("action", string(decision.Action)).
			Str("reason", decision.Reason).
			Str("chain_id", chainID).
			Str("user_id", userID).
			Float64("estimated_cost_usd", est.CostUSD).
			Msg("Budget threshold reached")
	}
	metrics.RecordBudgetEvent(decision.Reason)
	return g.decide(decision)
}

func (g *CostGuard) evaluate(ctx context.Context, cfg *config.BudgetConfig, userID, chainID string, est TokenEstimate, candidateCount int) (BudgetDecision, error) {
	now := g.now()
	cost := est.CostUSD

	daily, err := g.readFloat(ctx, dailyKey(now))
	if err != nil {
		return BudgetDecision{}, err
	}
	if daily+cost > cfg.DailyUSD*cfg.EmergencyThreshold {
		return emergency(BudgetReasonDailyEmergency, est), nil
	}
	if daily+cost > cfg.DailyUSD*cfg.WarningThreshold {
		return BudgetDecision{
			Action:       BudgetReduceCandidates,
			Reason:       BudgetReasonDailyWarning,
			ReducedCount: ReducedCandidateCount(candidateCount),
			Estimate:     est,
		}, nil
	}

	monthly, err := g.readFloat(ctx, monthlyKey(now))
	if err != nil {
		return BudgetDecision{}, err
	}
	if monthly+cost > cfg.MonthlyUSD*cfg.EmergencyThreshold {
		return emergency(BudgetReasonMonthlyEmergency, est), nil
	}

	chain, err := g.readFloat(ctx, chainKey(chainID, now))
	if err != nil {
		return BudgetDecision{}, err
	}
	if chain+cost > cfg.ChainUSD*cfg.EmergencyThreshold {
		return emergency(BudgetReasonChainEmergency, est), nil
	}

	if userID != "" {
		used, err := g.readInt(ctx, userTokensKey(userID, now))
		if err != nil {
			return BudgetDecision{}, err
		}
		if used+int64(est.TotalTokens) > cfg.PerUserDailyTokens {
			return emergency(BudgetReasonUserTokenLimit, est), nil
		}
	}

	return BudgetDecision{Action: BudgetApprove, Reason: BudgetReasonApproved, Estimate: est}, nil
}

// RecordUsage adds the actual cost and tokens of a completed call to all
// counters. A non-empty traceID makes the call idempotent: a second record
// for the same trace is ignored.
func (g *CostGuard) RecordUsage(ctx context.Context, cfg *config.BudgetConfig, traceID, userID, chainID, model string, promptTokens, completionTokens int) error {
	if g.store == nil {
		return nil
	}

	if traceID != "" {
		first, err := g.store.SetNX(ctx, usageMarkerKey(traceID), []byte("1"), usageMarkerTTL)
		if err != nil {
			metrics.RecordStoreError("usage_marker")
			return fmt.Errorf("usage marker: %w", err)
		}
		if !first {
			g.logger.Debug().Str("trace_id", traceID).Msg("Usage already recorded for trace")
			return nil
		}
	}

	tokens := promptTokens + completionTokens
	cost := float64(tokens) / 1000 * RateFor(cfg, model)
	now := g.now()

	var errs []error
	if cost > 0 {
		for _, c := range []struct {
			key string
			ttl time.Duration
		}{
			{dailyKey(now), dailyCostTTL},
			{monthlyKey(now), monthlyCostTTL},
			{chainKey(chainID, now), chainCostTTL},
		} {
			if _, err := g.store.IncrByFloat(ctx, c.key, cost, c.ttl); err != nil {
				errs = append(errs, fmt.Errorf("increment %s: %w", c.key, err))
			}
		}
	}
	if userID != "" && tokens > 0 {
		if _, err := g.store.IncrBy(ctx, userTokensKey(userID, now), int64(tokens), userTokensTTL); err != nil {
			errs = append(errs, fmt.Errorf("increment user tokens: %w", err))
		}
	}

	metrics.RecordTokens(model, promptTokens, completionTokens)
	metrics.RecordBudgetSpend(chainID, cost)

	if len(errs) > 0 {
		metrics.RecordStoreError("usage_record")
		return errors.Join(errs...)
	}

	g.logger.Debug().
		Str("chain_id", chainID).
		Str("model", model).
		Int("prompt_tokens", promptTokens).
		Int("completion_tokens", completionTokens).
		Float64("cost_usd", cost).
		Msg("Recorded LLM usage")
	return nil
}

// Spend reports today's and this month's recorded spend.
func (g *CostGuard) Spend(ctx context.Context) (daily, monthly float64, err error) {
	if g.store == nil {
		return 0, 0, nil
	}
	now := g.now()
	if daily, err = g.readFloat(ctx, dailyKey(now)); err != nil {
		return 0, 0, err
	}
	if monthly, err = g.readFloat(ctx, monthlyKey(now)); err != nil {
		return 0, 0, err
	}
	return daily, monthly, nil
}

// BudgetStatus is a point-in-time view of the budget counters.
type BudgetStatus struct {
	Enabled          bool    `json:"enabled"`
	DailySpendUSD    float64 `json:"dailySpendUsd"`
	DailyLimitUSD    float64 `json:"dailyLimitUsd"`
	MonthlySpendUSD  float64 `json:"monthlySpendUsd"`
	MonthlyLimitUSD  float64 `json:"monthlyLimitUsd"`
	DailyUtilization float64 `json:"dailyUtilization"`
	Action           string  `json:"action"`

	UserID          string `json:"userId,omitempty"`
	UserTokensUsed  int64  `json:"userTokensUsed,omitempty"`
	UserTokensLimit int64  `json:"userTokensLimit,omitempty"`
	CanGenerate     bool   `json:"canGenerate"`
}

// Status reports spend against cfg. With a user id it also reports the
// user's token use for today. Action is the verdict a zero-cost call would
// get from the global thresholds.
func (g *CostGuard) Status(ctx context.Context, cfg *config.BudgetConfig, userID string) (BudgetStatus, error) {
	st := BudgetStatus{Action: string(BudgetApprove), UserID: userID, CanGenerate: true}
	if cfg == nil {
		return st, nil
	}
	st.Enabled = cfg.Enabled
	st.DailyLimitUSD = cfg.DailyUSD
	st.MonthlyLimitUSD = cfg.MonthlyUSD
	st.UserTokensLimit = cfg.PerUserDailyTokens

	daily, monthly, err := g.Spend(ctx)
	if err != nil {
		return st, fmt.Errorf("budget status: %w", err)
	}
	st.DailySpendUSD, st.MonthlySpendUSD = daily, monthly
	if cfg.DailyUSD > 0 {
		st.DailyUtilization = daily / cfg.DailyUSD
	}

	if userID != "" && g.store != nil {
		used, err := g.readInt(ctx, userTokensKey(userID, g.now()))
		if err != nil {
			return st, fmt.Errorf("budget status: %w", err)
		}
		st.UserTokensUsed = used
	}

	if !cfg.Enabled {
		return st, nil
	}
	switch {
	case daily > cfg.DailyUSD*cfg.EmergencyThreshold, monthly > cfg.MonthlyUSD*cfg.EmergencyThreshold:
		st.Action = string(BudgetEmergencyFallback)
		st.CanGenerate = false
	case daily > cfg.DailyUSD*cfg.WarningThreshold:
		st.Action = string(BudgetReduceCandidates)
	}
	if userID != "" && cfg.PerUserDailyTokens > 0 && st.UserTokensUsed >= cfg.PerUserDailyTokens {
		st.CanGenerate = false
	}
	return st, nil
}

func (g *CostGuard) decide(d BudgetDecision) BudgetDecision {
	metrics.RecordBudgetDecision(string(d.Action), d.Reason)
	return d
}

func (g *CostGuard) readFloat(ctx context.Context, key string) (float64, error) {
	v, err := g.store.GetFloat(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		metrics.RecordStoreError("budget_read")
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func (g *CostGuard) readInt(ctx context.Context, key string) (int64, error) {
	v, err := g.store.GetInt(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		metrics.RecordStoreError("budget_read")
		return 0, fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

func emergency(reason string, est TokenEstimate) BudgetDecision {
	return BudgetDecision{Action: BudgetEmergencyFallback, Reason: reason, Estimate: est}
}

// ReducedCandidateCount is the candidate count under a budget warning.
func ReducedCandidateCount(n int) int {
	return max(1, min(n/2, maxReducedCandidates))
}

func dailyKey(t time.Time) string {
	return "llm:cost:daily:" + t.Format(time.DateOnly)
}

func monthlyKey(t time.Time) string {
	return "llm:cost:monthly:" + t.Format("2006-01")
}

func chainKey(chainID string, t time.Time) string {
	return "llm:cost:chain:" + chainID + ":" + t.Format(time.DateOnly)
}

func userTokensKey(userID string, t time.Time) string {
	return "llm:tokens:user:" + userID + ":" + t.Format(time.DateOnly)
}

func usageMarkerKey(traceID string) string {
	return "llm:usage:" + traceID
}
