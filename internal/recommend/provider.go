// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultProviderName is the terminal provider every chain falls through to.
const DefaultProviderName = "default"

// Provider error codes. HTTP failures use "HTTP_<status>".
const (
	CodeTimeout          = "TIMEOUT"
	CodeCanceled         = "CANCELED"
	CodeTransport        = "TRANSPORT_ERROR"
	CodeParsing          = "PARSING_ERROR"
	CodeNoChoices        = "NO_CHOICES"
	CodeEmptyContent     = "EMPTY_CONTENT"
	CodeEmptyResult      = "EMPTY_RESULT"
	CodeAPIKeyMissing    = "API_KEY_MISSING"
	CodeBreakerOpen      = "BREAKER_OPEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeUnknown          = "UNKNOWN_ERROR"
	CodeAllHopsExhausted = "all_hops_exhausted"
)

// Chain-level fallback reasons that are not provider errors.
const (
	ReasonLLMDisabled       = "llm_disabled"
	ReasonChainEmpty        = "chain_empty"
	ReasonProviderChainNull = "provider_chain_null"
	ReasonAsyncBusy         = "async_busy"
	ReasonToggleOff         = "toggle_off"
	ReasonStrategyFSRS      = "strategy_fsrs"
	ReasonNoCandidates      = "no_candidates"
)

// CallOptions are per-call provider settings.
type CallOptions struct {
	Limit         int
	PromptVersion string
}

// ProviderResult is a successful provider answer. Items carry provider
// confidence and score; the executor stamps source, model and prompt
// version.
type ProviderResult struct {
	Items            []RecommendationItem
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration

	// Complete is false when the answer had to be salvaged from a malformed
	// response.
	Complete bool
}

// Provider ranks candidates for one request. Implementations must honor ctx
// cancellation and return a *ProviderError (or an error wrapping one) on
// failure.
type Provider interface {
	Name() string
	Rank(ctx context.Context, rctx *RequestContext, candidates []ProblemCandidate, opts CallOptions) (*ProviderResult, error)
}

// ProviderError is a classified provider failure.
type ProviderError struct {
	Provider   string
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Code)
	}
	return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Code, msg)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError builds a ProviderError with the given code.
func NewProviderError(provider, code string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Err: err}
}

// HTTPCode returns the error code for an unexpected HTTP status.
func HTTPCode(status int) string {
	return fmt.Sprintf("HTTP_%d", status)
}

// ErrorCode classifies err. Context errors map to TIMEOUT and CANCELED;
// unclassified errors map to UNKNOWN_ERROR.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	default:
		return CodeUnknown
	}
}
