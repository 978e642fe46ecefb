// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
)

var tracer = otel.Tracer("recoplane/recommend")

// Per-user limiter pool bounds.
const (
	userLimiterCapacity = 10000
	userLimiterIdleTTL  = 10 * time.Minute
)

// ChainRequest is one chain execution.
type ChainRequest struct {
	ChainID    string
	Chain      config.ChainConfig
	Candidates []ProblemCandidate
	Options    CallOptions
}

// ChainResult reports how a chain execution ended. Hops lists every
// provider that was tried, in order. On failure FallbackReason names the
// last provider error or the chain-level reason.
type ChainResult struct {
	Success        bool
	Result         *ProviderResult
	Hops           []string
	FallbackReason string
	FinalProvider  string
}

type nodeLimiter struct {
	limiter *rate.Limiter
	cfg     config.RateLimitConfig
}

// ChainExecutor runs provider chains hop by hop: each enabled node gets its
// timeout, retries, rate limits and circuit breaker, and the terminal
// default provider closes every chain that does not succeed.
type ChainExecutor struct {
	providers map[string]Provider
	breakers  *breakerSet

	limMu        sync.Mutex
	nodeLimiters map[string]*nodeLimiter
	userLimiters *cache.LRU[*rate.Limiter]

	logger zerolog.Logger
}

// NewChainExecutor creates an executor over providers, keyed by Name().
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewChainExecutor(providers []Provider, logger zerolog.Logger) *ChainExecutor {
	log := logger.With().Str("component", "chain_executor").Logger()
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}
	return &ChainExecutor{
		providers:    byName,
		breakers:     newBreakerSet(log),
		nodeLimiters: make(map[string]*nodeLimiter),
		userLimiters: cache.NewLRU[*rate.Limiter](userLimiterCapacity),
		logger:       log,
	}
}

// Execute runs req.Chain. It never returns an error: every failure is
// folded into the result so the caller can fall back.
func (x *ChainExecutor) Execute(ctx context.Context, llm *config.LLMConfig, rctx *RequestContext, req ChainRequest) ChainResult {
	res := ChainResult{Hops: []string{}}

	switch {
	case llm == nil || !llm.Enabled:
		res.FallbackReason = ReasonLLMDisabled
		return res
	case len(x.providers) == 0:
		res.FallbackReason = ReasonProviderChainNull
		return res
	case len(req.Chain.Nodes) == 0:
		res.FallbackReason = ReasonChainEmpty
		metrics.RecordChainFallback(req.ChainID, res.FallbackReason)
		return res
	}

	var lastCode, defaultCode string
	defaultTried := false

	for i := range req.Chain.Nodes {
		node := &req.Chain.Nodes[i]
		if !node.IsEnabled() {
			continue
		}
		p, ok := x.providers[node.Name]
		if !ok {
			x.logger.Warn().
				Str("chain_id", req.ChainID).
				Str("node", node.Name).
				Msg("Chain node has no registered provider, skipping")
			continue
		}

		res.Hops = append(res.Hops, p.Name())
		res.FinalProvider = p.Name()

		if node.Name == DefaultProviderName {
			defaultTried = true
			defaultCode = x.callDefault(ctx, rctx, p, req)
			break
		}

		out, err := x.runNode(ctx, rctx, req, node, p)
		if err == nil {
			res.Success = true
			res.Result = out
			return res
		}

		lastCode = ErrorCode(err)
		if ctx.Err() != nil {
			res.FallbackReason = ErrorCode(ctx.Err())
			metrics.RecordChainFallback(req.ChainID, res.FallbackReason)
			return res
		}
		if len(node.OnErrorsToNext) > 0 && !slices.Contains(node.OnErrorsToNext, lastCode) {
			x.logger.Debug().
				Str("chain_id", req.ChainID).
				Str("node", node.Name).
				Str("code", lastCode).
				Msg("Error not eligible for the next hop, stopping chain")
			break
		}
	}

	if !defaultTried {
		if p, ok := x.providers[DefaultProviderName]; ok {
			res.Hops = append(res.Hops, p.Name())
			res.FinalProvider = p.Name()
			defaultCode = x.callDefault(ctx, rctx, p, req)
		}
	}

	switch {
	case lastCode != "":
		res.FallbackReason = lastCode
	case defaultCode != "":
		res.FallbackReason = defaultCode
	default:
		res.FallbackReason = CodeAllHopsExhausted
	}
	metrics.RecordChainFallback(req.ChainID, res.FallbackReason)
	return res
}

// ExecuteAsync runs Execute on its own goroutine once adm grants a permit
// for the user. A permit that cannot be acquired within the configured
// timeout yields a failed result with reason async_busy. The returned
// channel is buffered and receives exactly one result.
func (x *ChainExecutor) ExecuteAsync(ctx context.Context, adm *Admission, llm *config.LLMConfig, rctx *RequestContext, req ChainRequest) <-chan ChainResult {
	out := make(chan ChainResult, 1)

	go func() {
		defer close(out)

		if adm == nil {
			out <- x.Execute(ctx, llm, rctx, req)
			return
		}

		release, err := adm.Acquire(ctx, rctx.UserID, llm.AsyncLimits.AcquireTimeout)
		if err != nil {
			x.logger.Debug().Err(err).Str("user_id", rctx.UserID).Msg("No async permit, falling back")
			metrics.RecordChainFallback(req.ChainID, ReasonAsyncBusy)
			out <- ChainResult{Hops: []string{}, FallbackReason: ReasonAsyncBusy}
			return
		}
		defer release()

		out <- x.Execute(ctx, llm, rctx, req)
	}()

	return out
}

// runNode calls one provider with retries. Breaker rejections, rate limits
// and permanent errors are not retried.
func (x *ChainExecutor) runNode(ctx context.Context, rctx *RequestContext, req ChainRequest, node *config.NodeConfig, p Provider) (*ProviderResult, error) {
	if err := x.allow(req.ChainID, node, rctx.UserID); err != nil {
		metrics.RecordProviderHop(node.Name, CodeRateLimited, 0)
		return nil, err
	}

	cb := x.breakers.get(req.ChainID+"/"+node.Name, node.Breaker)
	attempts := 1 + node.Retry.Attempts

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err := x.attempt(ctx, rctx, req, node, p, cb, attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil || !retryable(ErrorCode(err)) {
			break
		}
		if err := sleepCtx(ctx, node.Retry.Backoff*time.Duration(attempt)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (x *ChainExecutor) attempt(ctx context.Context, rctx *RequestContext, req ChainRequest, node *config.NodeConfig, p Provider, cb *gobreaker.CircuitBreaker[*ProviderResult], attempt int) (*ProviderResult, error) {
	ctx, span := tracer.Start(ctx, "recommend.provider_hop",
		trace.WithAttributes(
			attribute.String("chain.id", req.ChainID),
			attribute.String("provider", p.Name()),
			attribute.Int("attempt", attempt),
		),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, node.EffectiveTimeout())
	defer cancel()

	start := time.Now()
	out, err := executeWithBreaker(cb, p.Name(), func() (*ProviderResult, error) {
		r, err := p.Rank(callCtx, rctx, req.Candidates, req.Options)
		if err != nil {
			return nil, classifyCallError(ctx, callCtx, p.Name(), err)
		}
		return stampResult(p.Name(), r, req)
	})
	elapsed := time.Since(start)

	if err != nil {
		code := ErrorCode(err)
		metrics.RecordProviderHop(p.Name(), code, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		span.SetAttributes(attribute.String("outcome", code))
		x.logger.Warn().
			Err(err).
			Str("chain_id", req.ChainID).
			Str("provider", p.Name()).
			Str("trace_id", rctx.TraceID).
			Int("attempt", attempt).
			Dur("elapsed", elapsed).
			Msg("Provider hop failed")
		return nil, err
	}

	metrics.RecordProviderHop(p.Name(), "success", elapsed)
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(
		attribute.String("outcome", "success"),
		attribute.Int("items", len(out.Items)),
	)
	if out.Latency == 0 {
		out.Latency = elapsed
	}
	for i := range out.Items {
		out.Items[i].LatencyMs = out.Latency.Milliseconds()
	}
	return out, nil
}

// callDefault invokes the terminal provider, which reports its configured
// strategy as the error code.
func (x *ChainExecutor) callDefault(ctx context.Context, rctx *RequestContext, p Provider, req ChainRequest) string {
	_, err := p.Rank(ctx, rctx, req.Candidates, req.Options)
	metrics.RecordProviderHop(p.Name(), ErrorCode(err), 0)
	if err == nil {
		return ""
	}
	return ErrorCode(err)
}

// allow applies the node-wide and per-user rate limits.
func (x *ChainExecutor) allow(chainID string, node *config.NodeConfig, userID string) error {
	rl := node.RateLimit
	burst := max(1, rl.Burst)

	if rl.RPS > 0 && !x.nodeLimiter(chainID+"/"+node.Name, rl, burst).Allow() {
		metrics.RecordRateLimited(node.Name, "node")
		return NewProviderError(node.Name, CodeRateLimited, errors.New("node rate limit exceeded"))
	}

	if rl.PerUserRPS > 0 && userID != "" {
		key := chainID + "/" + node.Name + "/" + userID
		lim := x.userLimiters.GetOrAdd(key, userLimiterIdleTTL, func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(rl.PerUserRPS), burst)
		})
		if !lim.Allow() {
			metrics.RecordRateLimited(node.Name, "user")
			return NewProviderError(node.Name, CodeRateLimited, errors.New("per-user rate limit exceeded"))
		}
	}
	return nil
}

func (x *ChainExecutor) nodeLimiter(key string, rl config.RateLimitConfig, burst int) *rate.Limiter {
	x.limMu.Lock()
	defer x.limMu.Unlock()

	if e, ok := x.nodeLimiters[key]; ok && e.cfg == rl {
		return e.limiter
	}
	lim := rate.NewLimiter(rate.Limit(rl.RPS), burst)
	x.nodeLimiters[key] = &nodeLimiter{limiter: lim, cfg: rl}
	return lim
}

// classifyCallError maps context failures: the caller leaving is CANCELED,
// the node timeout firing is TIMEOUT. Provider-classified errors pass
// through.
func classifyCallError(parent, call context.Context, provider string, err error) error {
	if parent.Err() != nil {
		return NewProviderError(provider, CodeCanceled, err)
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	if call.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(provider, CodeTimeout, err)
	}
	return NewProviderError(provider, CodeTransport, err)
}

// stampResult keeps the first Limit items that name a known candidate, drops
// duplicates and tags them with source, model and prompt version. An answer
// with nothing usable is an EMPTY_RESULT failure.
func stampResult(provider string, r *ProviderResult, req ChainRequest) (*ProviderResult, error) {
	if r == nil || len(r.Items) == 0 {
		return nil, NewProviderError(provider, CodeEmptyResult, nil)
	}

	known := make(map[int64]struct{}, len(req.Candidates))
	for i := range req.Candidates {
		known[req.Candidates[i].ID] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(r.Items))
	limit := req.Options.Limit
	if limit <= 0 {
		limit = len(r.Items)
	}

	items := make([]RecommendationItem, 0, min(limit, len(r.Items)))
	for _, it := range r.Items {
		if len(items) >= limit {
			break
		}
		if _, ok := known[it.ProblemID]; len(known) > 0 && !ok {
			continue
		}
		if _, dup := seen[it.ProblemID]; dup {
			continue
		}
		seen[it.ProblemID] = struct{}{}

		it.Source = SourceLLM
		if it.Model == "" {
			it.Model = r.Model
		}
		if it.PromptVersion == "" {
			it.PromptVersion = req.Options.PromptVersion
		}
		if it.Strategy == "" {
			it.Strategy = strings.ToLower(provider)
		}
		it.Confidence = clamp01(it.Confidence)
		items = append(items, it)
	}
	if len(items) == 0 {
		return nil, NewProviderError(provider, CodeEmptyResult, errors.New("no recommended problem matches a candidate"))
	}

	out := *r
	out.Items = items
	if out.Provider == "" {
		out.Provider = provider
	}
	return &out, nil
}

// retryable reports whether another attempt on the same node could help.
func retryable(code string) bool {
	switch code {
	case CodeBreakerOpen, CodeRateLimited, CodeAPIKeyMissing, CodeCanceled, CodeEmptyResult:
		return false
	}
	if strings.HasPrefix(code, "HTTP_4") {
		return code == HTTPCode(429) || code == HTTPCode(408)
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
