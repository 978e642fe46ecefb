// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/metrics"
)

// Breaker defaults for nodes that enable a breaker without tuning it.
const (
	defaultBreakerOpenTimeout = 30 * time.Second
	defaultBreakerHalfOpen    = 1
)

// breakerEntry remembers the settings a breaker was built with so a config
// reload that retunes a node gets a fresh breaker.
type breakerEntry struct {
	cb       *gobreaker.CircuitBreaker[*ProviderResult]
	settings config.BreakerConfig
}

// breakerSet holds one circuit breaker per chain node.
//
// The breakers use real time (via sony/gobreaker) for their open timeouts.
// Tests that need a half-open breaker use a short open_timeout and wait.
type breakerSet struct {
	mu       sync.Mutex
	breakers map[string]*breakerEntry
	logger   zerolog.Logger
}

func newBreakerSet(logger zerolog.Logger) *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*breakerEntry),
		logger:   logger,
	}
}

// get returns the breaker for name, or nil when the node disables it.
func (s *breakerSet) get(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[*ProviderResult] {
	if cfg.ConsecutiveFailures == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.breakers[name]; ok && e.settings == cfg {
		return e.cb
	}

	cb := s.newBreaker(name, cfg)
	s.breakers[name] = &breakerEntry{cb: cb, settings: cfg}
	return cb
}

func (s *breakerSet) newBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[*ProviderResult] {
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = defaultBreakerOpenTimeout
	}
	halfOpen := cfg.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = defaultBreakerHalfOpen
	}
	threshold := cfg.ConsecutiveFailures

	metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.BreakerClosed)

	return gobreaker.NewCircuitBreaker[*ProviderResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Timeout:     timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= threshold
			if trip {
				s.logger.Warn().
					Str("breaker", name).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},

		// A caller giving up says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || ErrorCode(err) == CodeCanceled
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Info().
				Str("breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.RecordBreakerTransition(name, stateToString(from), stateToString(to), stateToFloat(to))
		},
	})
}

// executeWithBreaker runs fn through cb, translating breaker rejections into
// BREAKER_OPEN provider errors.
func executeWithBreaker(cb *gobreaker.CircuitBreaker[*ProviderResult], provider string, fn func() (*ProviderResult, error)) (*ProviderResult, error) {
	if cb == nil {
		return fn()
	}

	res, err := cb.Execute(fn)
	switch {
	case err == nil:
		metrics.RecordBreakerRequest(cb.Name(), "success")
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordBreakerRequest(cb.Name(), "rejected")
		return nil, NewProviderError(provider, CodeBreakerOpen, err)
	default:
		metrics.RecordBreakerRequest(cb.Name(), "failure")
		return nil, err
	}
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return metrics.BreakerClosed
	case gobreaker.StateHalfOpen:
		return metrics.BreakerHalfOpen
	case gobreaker.StateOpen:
		return metrics.BreakerOpen
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
