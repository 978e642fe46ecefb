// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// Meta values for paths that never reach a chain.
const (
	HopCache        = "cache"
	HopToggleOff    = "toggle_off"
	HopFSRS         = "fsrs"
	DisabledChainID = "disabled"
)

// Request outcomes, used as metric labels.
const (
	outcomeLLM        = "llm"
	outcomeFallback   = "fallback"
	outcomeCache      = "cache"
	outcomeBusy       = "busy"
	outcomeToggleOff  = "toggle_off"
	outcomeFSRS       = "fsrs"
	outcomeBudgetStop = "budget_fallback"
)

// basePromptTokens approximates the fixed part of a ranking prompt.
const basePromptTokens = 200

// Enhancement stages guarded individually.
const (
	stageEnhancer   = "enhancer"
	stageHybrid     = "hybrid"
	stageCalibrator = "calibrator"
	stageMixer      = "mixer"
	stageTopUp      = "top_up"
)

// Deps are the collaborators of a Service. Providers must include the
// terminal default provider. Nil sources behave as empty ones.
type Deps struct {
	Settings   *SettingsStore
	Store      cache.Store
	Providers  []Provider
	Candidates CandidateSource
	Profiles   ProfileSource
	Tiers      TierResolver
}

// Service is the recommendation control plane. It never reports LLM trouble
// as an error: every degraded path produces a usable response with
// diagnostics in Meta.
type Service struct {
	settings   *SettingsStore
	builder    *ContextBuilder
	selector   *ChainSelector
	guard      *CostGuard
	enhancer   *Enhancer
	executor   *ChainExecutor
	hybrid     *HybridRanker
	calibrator *Calibrator
	mixer      *Mixer
	results    *ResultCache
	kv         cache.Store
	profiles   *CachedProfiles
	candidates CandidateSource

	admission atomic.Pointer[Admission]

	logger zerolog.Logger
}

// NewService wires a service from deps. Profile and candidate lookups are
// cached in deps.Store according to the cache settings.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewService(deps Deps, logger zerolog.Logger) (*Service, error) {
	if deps.Settings == nil || deps.Settings.Load() == nil {
		return nil, errors.New("recommend: settings are required")
	}
	if deps.Store == nil {
		return nil, errors.New("recommend: store is required")
	}

	var empty EmptySources
	candidates, profiles := deps.Candidates, deps.Profiles
	if candidates == nil {
		candidates = empty
	}
	if profiles == nil {
		profiles = empty
	}

	log := logger.With().Str("component", "recommend").Logger()
	cachedProfiles := NewCachedProfiles(profiles, deps.Store, deps.Settings, logger)
	s := &Service{
		settings:   deps.Settings,
		builder:    NewContextBuilder(cachedProfiles, deps.Tiers, logger),
		selector:   NewChainSelector(logger),
		guard:      NewCostGuard(deps.Store, logger),
		enhancer:   NewEnhancer(logger),
		executor:   NewChainExecutor(deps.Providers, logger),
		hybrid:     NewHybridRanker(logger),
		calibrator: NewCalibrator(logger),
		mixer:      NewMixer(logger),
		results:    NewResultCache(deps.Store, logger),
		kv:         deps.Store,
		profiles:   cachedProfiles,
		candidates: NewCachedCandidates(candidates, deps.Store, deps.Settings, logger),
		logger:     log,
	}
	s.admission.Store(NewAdmission(deps.Settings.Load().LLM.AsyncLimits, logger))
	return s, nil
}

// Admission returns the current admission controller.
func (s *Service) Admission() *Admission {
	return s.admission.Load()
}

// Sweep drops idle per-user admission slots of the current controller.
func (s *Service) Sweep() int {
	return s.Admission().Sweep()
}

// Profiles returns the cached profile lookup, which the warmer refreshes.
func (s *Service) Profiles() *CachedProfiles {
	return s.profiles
}

// CostGuard returns the service's budget guard.
func (s *Service) CostGuard() *CostGuard {
	return s.guard
}

// BudgetStatus reports spend against the current budget settings.
func (s *Service) BudgetStatus(ctx context.Context, userID string) (BudgetStatus, error) {
	return s.guard.Status(ctx, &s.settings.Load().Budget, userID)
}

// GetRecommendations returns up to req.Limit recommendations. Errors are
// returned only for an empty user id or a context that is already done.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (s *Service) GetRecommendations(ctx context.Context, req Request) (*Response, error) {
	return s.get(ctx, req, false)
}

// GetRecommendationsAsync runs GetRecommendations on its own goroutine with
// the provider call bounded by the async admission limits. The channel is
// buffered and receives exactly one result.
//
//nolint:gocritic // hugeParam: req passed by value for immutability
func (s *Service) GetRecommendationsAsync(ctx context.Context, req Request) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		resp, err := s.get(ctx, req, true)
		out <- AsyncResult{Response: resp, Err: err}
	}()
	return out
}

// pass carries the per-request state through the pipeline.
type pass struct {
	settings *Settings
	rctx     *RequestContext
	resolved RecommendationType
	chain    config.ChainConfig
	chainID  string
	key      string
	async    bool
	gen      generation
}

//nolint:gocritic // hugeParam: req passed by value for immutability
func (s *Service) get(ctx context.Context, req Request, async bool) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get recommendations: %w", err)
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "recommend.get_recommendations",
		trace.WithAttributes(attribute.Bool("async", async)))
	defer span.End()

	settings := s.settings.Load()
	rctx, err := s.builder.Build(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return nil, fmt.Errorf("get recommendations: %w", err)
	}
	span.SetAttributes(
		attribute.String("user.tier", string(rctx.Tier)),
		attribute.String("trace_id", rctx.TraceID),
	)

	llm := &settings.LLM
	if !IsEnabled(rctx, &llm.Toggles) {
		resp := s.toggleOff(ctx, llm, rctx, DisabledReason(rctx, &llm.Toggles))
		s.finish(span, resp, outcomeToggleOff, start)
		return resp, nil
	}

	p := &pass{settings: settings, rctx: rctx, async: async}
	p.resolved = ResolveStrategy(&settings.Strategy, rctx.Type, rctx.Objective, llm.Enabled)
	p.chain, p.chainID = s.selector.Select(rctx, llm)
	p.key = ResultKey(KeyParamsFor(rctx, p.resolved, llm.PromptVersion, p.chainID))
	span.SetAttributes(
		attribute.String("chain.id", p.chainID),
		attribute.String("strategy.resolved", string(p.resolved)),
	)

	if !rctx.ForceRefresh {
		if cached, ok := s.results.Get(ctx, p.key); ok {
			resp := cached.Clone()
			resp.Meta.Cached = true
			resp.Meta.TraceID = rctx.TraceID
			resp.Meta.ChainHops = []string{HopCache}
			s.finish(span, resp, outcomeCache, start)
			return resp, nil
		}
	}

	var outcome string
	resp, err := s.results.Fill(p.key, func() (*Response, error) {
		r, o := s.compute(ctx, p)
		outcome = o
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get recommendations: %w", err)
	}
	if outcome == "" {
		// Shared result of a concurrent identical request.
		outcome = outcomeFor(resp)
	}
	resp.Meta.TraceID = rctx.TraceID
	s.finish(span, resp, outcome, start)
	return resp, nil
}

// compute runs the uncached pipeline and stores the result when it is
// worth keeping.
func (s *Service) compute(ctx context.Context, p *pass) (*Response, string) {
	rctx, settings := p.rctx, p.settings
	llm := &settings.LLM
	p.gen = readGeneration(ctx, s.kv, rctx.UserID)

	candidates := s.loadCandidates(ctx, rctx)
	if len(candidates) == 0 {
		resp := s.newResponse(rctx, p.resolved)
		resp.Meta.ChainID = p.chainID
		s.markBusy(resp, llm, ReasonNoCandidates)
		return resp, outcomeBusy
	}

	if p.resolved == TypeFSRS {
		resp := s.newResponse(rctx, p.resolved)
		resp.Items = FallbackRank(candidates, rctx.Limit)
		resp.Meta.Strategy = StrategyFSRS
		resp.Meta.ChainHops = []string{HopFSRS}
		resp.Meta.FallbackReason = ReasonStrategyFSRS
		s.store(ctx, p, resp, settings.Cache.ResultTTL)
		return resp, outcomeFSRS
	}

	model := llm.OpenAI.Model
	decision := s.guard.CheckBudget(ctx, &settings.Budget, rctx.UserID, p.chainID, model, basePromptTokens, len(candidates))
	if !decision.Allowed() {
		resp := s.fallback(rctx, p, candidates, decision.Reason)
		resp.Meta.BudgetAction = string(decision.Action)
		resp.Meta.ChainHops = []string{}
		s.store(ctx, p, resp, settings.Cache.FallbackTTL)
		return resp, outcomeBudgetStop
	}

	sendCount := len(candidates)
	if decision.Action == BudgetReduceCandidates && decision.ReducedCount > 0 {
		sendCount = decision.ReducedCount
	}
	enhanced := runStage(s, stageEnhancer, candidates, func() []ProblemCandidate {
		return s.enhancer.Enhance(&settings.Enhancer, candidates, rctx.Profile, sendCount)
	})
	if len(enhanced) == 0 {
		enhanced = candidates
	}
	if len(enhanced) > sendCount {
		enhanced = enhanced[:sendCount]
	}

	creq := ChainRequest{
		ChainID:    p.chainID,
		Chain:      p.chain,
		Candidates: enhanced,
		Options:    CallOptions{Limit: rctx.Limit, PromptVersion: llm.PromptVersion},
	}
	result := s.execute(ctx, p, creq)

	if !result.Success {
		resp := s.fallback(rctx, p, candidates, result.FallbackReason)
		resp.Meta.BudgetAction = string(decision.Action)
		resp.Meta.ChainHops = result.Hops
		resp.Meta.FinalProvider = result.FinalProvider
		if !transientReason(ctx, result.FallbackReason) {
			s.store(ctx, p, resp, settings.Cache.FallbackTTL)
		}
		if resp.Meta.Busy {
			return resp, outcomeBusy
		}
		return resp, outcomeFallback
	}

	byID := candidateIndex(candidates)
	domains := settings.Enhancer.TagDomainMapping
	items := result.Result.Items
	if p.resolved == TypeHybrid {
		items = runStage(s, stageHybrid, items, func() []RecommendationItem {
			return s.hybrid.Rank(&settings.Hybrid, domains, items, byID, rctx.Profile)
		})
	}
	calibrated := runStage(s, stageCalibrator, items, func() []RecommendationItem {
		return s.calibrator.Calibrate(&settings.Calibration, domains, items, byID, rctx.Profile, MetaFromResult(result.Result))
	})
	mixed := runStage(s, stageMixer, calibrated, func() []RecommendationItem {
		return s.mixer.Mix(&settings.Strategy.Mix, domains, calibrated, byID, rctx)
	})
	// Everything the provider ranked stays out of the top-up, including
	// items the calibrator dropped.
	ranked := make(map[int64]struct{}, len(result.Result.Items))
	for i := range result.Result.Items {
		ranked[result.Result.Items[i].ProblemID] = struct{}{}
	}
	final := runStage(s, stageTopUp, mixed, func() []RecommendationItem {
		return TopUp(mixed, candidates, rctx.Limit, ranked)
	})

	resp := s.newResponse(rctx, p.resolved)
	resp.Items = final
	resp.Meta.Strategy = StrategyNormal
	resp.Meta.ChainID = p.chainID
	resp.Meta.ChainHops = result.Hops
	resp.Meta.FinalProvider = result.FinalProvider
	resp.Meta.BudgetAction = string(decision.Action)
	s.store(ctx, p, resp, settings.Cache.ResultTTL)
	s.recordUsage(ctx, p, result.Result, decision.Estimate)
	return resp, outcomeLLM
}

// execute runs the chain, through the admission controller when async.
func (s *Service) execute(ctx context.Context, p *pass, creq ChainRequest) ChainResult {
	llm := &p.settings.LLM
	if !p.async {
		return s.executor.Execute(ctx, llm, p.rctx, creq)
	}

	ch := s.executor.ExecuteAsync(ctx, s.admissionFor(llm.AsyncLimits), llm, p.rctx, creq)
	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		// The executor goroutine finishes on its own and releases its
		// permits; its result is dropped.
		reason := ErrorCode(ctx.Err())
		metrics.RecordChainFallback(creq.ChainID, reason)
		return ChainResult{Hops: []string{}, FallbackReason: reason}
	}
}

// admissionFor returns an admission controller for limits, replacing the
// current one after a reload changed them. Permits held on a replaced
// controller are released to it.
func (s *Service) admissionFor(limits config.AsyncLimitsConfig) *Admission {
	cur := s.admission.Load()
	if cur != nil && cur.Limits() == limits {
		return cur
	}
	next := NewAdmission(limits, s.logger)
	if s.admission.CompareAndSwap(cur, next) {
		s.logger.Info().
			Int("global", limits.Global).
			Int("per_user", limits.PerUser).
			Msg("Async limits changed, admission controller replaced")
		return next
	}
	return s.admission.Load()
}

func (s *Service) toggleOff(ctx context.Context, llm *config.LLMConfig, rctx *RequestContext, reason string) *Response {
	resp := s.newResponse(rctx, rctx.Type)
	resp.Meta.ChainID = DisabledChainID
	resp.Meta.ChainHops = []string{HopToggleOff}
	resp.Meta.FallbackReason = reason

	candidates := s.loadCandidates(ctx, rctx)
	if len(candidates) == 0 {
		s.markBusy(resp, llm, reason)
		return resp
	}
	resp.Items = FallbackRank(candidates, rctx.Limit)
	resp.Meta.Strategy = StrategyFSRSFallback
	return resp
}

// fallback builds the degraded response for a failed or refused chain.
func (s *Service) fallback(rctx *RequestContext, p *pass, candidates []ProblemCandidate, reason string) *Response {
	resp := s.newResponse(rctx, p.resolved)
	resp.Meta.ChainID = p.chainID
	resp.Meta.FallbackReason = reason

	if p.settings.LLM.DefaultProvider.Strategy == config.DefaultStrategyEmpty {
		s.markBusy(resp, &p.settings.LLM, reason)
		return resp
	}
	resp.Items = FallbackRank(candidates, rctx.Limit)
	resp.Meta.Strategy = StrategyFSRSFallback
	return resp
}

func (s *Service) markBusy(resp *Response, llm *config.LLMConfig, reason string) {
	resp.Items = []RecommendationItem{}
	resp.Meta.Busy = true
	resp.Meta.Strategy = StrategyBusy
	resp.Meta.FallbackReason = reason
	resp.Meta.Message = llm.DefaultProvider.Message
}

func (s *Service) newResponse(rctx *RequestContext, t RecommendationType) *Response {
	return &Response{
		Items: []RecommendationItem{},
		Meta: Meta{
			TraceID:            rctx.TraceID,
			GeneratedAt:        time.Now().UTC(),
			RecommendationType: string(t),
			ChainHops:          []string{},
			UserProfileSummary: rctx.Profile.Summary(),
			ObjectiveHash:      ObjectiveHash(rctx.Objective, rctx.TargetDomains, rctx.DesiredDifficulty, rctx.TimeboxMinutes),
		},
	}
}

func (s *Service) loadCandidates(ctx context.Context, rctx *RequestContext) []ProblemCandidate {
	list, err := s.candidates.Candidates(ctx, rctx.UserID, CandidateCap(rctx.Limit))
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", rctx.UserID).Str("trace_id", rctx.TraceID).Msg("Candidate source failed")
		return nil
	}
	return list
}

// store caches resp unless an invalidation for the user ran since the fill
// started. The generation is checked again after the write: a hook that
// bumped in between may already have run its deletes.
func (s *Service) store(ctx context.Context, p *pass, resp *Response, ttl time.Duration) {
	uid := p.rctx.UserID
	if !p.gen.current(ctx, s.kv, uid) {
		metrics.RecordResultCacheEviction("stale")
		s.logger.Debug().Str("user_id", uid).Str("key", p.key).Msg("Invalidated during compute, result not cached")
		return
	}
	if err := s.results.Put(ctx, p.key, resp, ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", p.key).Msg("Result cache write failed")
		return
	}
	if !p.gen.current(ctx, s.kv, uid) {
		metrics.RecordResultCacheEviction("stale")
		s.results.Discard(ctx, p.key)
	}
}

func (s *Service) recordUsage(ctx context.Context, p *pass, r *ProviderResult, est TokenEstimate) {
	prompt, completion := r.PromptTokens, r.CompletionTokens
	if prompt == 0 && completion == 0 {
		prompt, completion = est.PromptTokens, est.CompletionTokens
	}
	model := r.Model
	if model == "" {
		model = p.settings.LLM.OpenAI.Model
	}
	err := s.guard.RecordUsage(ctx, &p.settings.Budget, p.rctx.TraceID, p.rctx.UserID, p.chainID, model, prompt, completion)
	if err != nil {
		s.logger.Warn().Err(err).Str("trace_id", p.rctx.TraceID).Msg("Usage recording failed")
	}
}

func (s *Service) finish(span trace.Span, resp *Response, outcome string, start time.Time) {
	metrics.RecordRecommendation(resp.Meta.Strategy, outcome, len(resp.Items), time.Since(start))
	span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("items", len(resp.Items)),
		attribute.String("fallback_reason", resp.Meta.FallbackReason),
	)
	span.SetStatus(codes.Ok, "")

	s.logger.Debug().
		Str("trace_id", resp.Meta.TraceID).
		Str("outcome", outcome).
		Str("strategy", resp.Meta.Strategy).
		Str("chain_id", resp.Meta.ChainID).
		Strs("hops", resp.Meta.ChainHops).
		Str("fallback_reason", resp.Meta.FallbackReason).
		Int("items", len(resp.Items)).
		Dur("elapsed", time.Since(start)).
		Msg("Recommendations served")
}

// runStage runs one enhancement stage. A panic is logged and counted, and
// the stage's input passes through unchanged.
func runStage[T any](s *Service, stage string, in T, fn func() T) (out T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordStageFailure(stage)
			s.logger.Warn().
				Str("stage", stage).
				Interface("panic", r).
				Msg("Enhancement stage failed, passing input through")
			out = in
		}
	}()
	return fn()
}

// transientReason reports failures that say nothing about the request
// itself and must not be cached.
func transientReason(ctx context.Context, reason string) bool {
	return ctx.Err() != nil || reason == ReasonAsyncBusy || reason == CodeCanceled
}

func outcomeFor(resp *Response) string {
	switch {
	case resp.Meta.Busy:
		return outcomeBusy
	case resp.Meta.Strategy == StrategyNormal:
		return outcomeLLM
	case resp.Meta.Strategy == StrategyFSRS:
		return outcomeFSRS
	default:
		return outcomeFallback
	}
}

func candidateIndex(candidates []ProblemCandidate) map[int64]ProblemCandidate {
	m := make(map[int64]ProblemCandidate, len(candidates))
	for i := range candidates {
		m[candidates[i].ID] = candidates[i]
	}
	return m
}
