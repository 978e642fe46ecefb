// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/cache"
	"github.com/tomtom215/recoplane/internal/config"
)

// fakeProvider ranks the first limit candidates with a fixed confidence, or
// fails with err when set.
type fakeProvider struct {
	name       string
	confidence float64
	delay      time.Duration
	calls      atomic.Int64
	lastSent   atomic.Int64

	// maxItems caps the answer size when positive.
	maxItems int
	// onRank runs inside every call, before the answer is built.
	onRank func(ctx context.Context)

	mu  sync.Mutex
	err error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, confidence: 0.8}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProvider) Rank(ctx context.Context, _ *RequestContext, candidates []ProblemCandidate, opts CallOptions) (*ProviderResult, error) {
	p.calls.Add(1)
	p.lastSent.Store(int64(len(candidates)))
	if p.onRank != nil {
		p.onRank(ctx)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	n := min(opts.Limit, len(candidates))
	if p.maxItems > 0 {
		n = min(n, p.maxItems)
	}
	items := make([]RecommendationItem, 0, n)
	for i := range n {
		items = append(items, RecommendationItem{
			ProblemID:  candidates[i].ID,
			Reason:     fmt.Sprintf("pick %d", candidates[i].ID),
			Confidence: p.confidence,
			Score:      p.confidence,
		})
	}
	return &ProviderResult{
		Items:            items,
		Provider:         p.name,
		Model:            "fake-model",
		PromptTokens:     100,
		CompletionTokens: 50,
		Complete:         true,
	}, nil
}

// terminalProvider mirrors the production default provider.
type terminalProvider struct {
	strategy string
}

func (terminalProvider) Name() string { return DefaultProviderName }

func (t terminalProvider) Rank(context.Context, *RequestContext, []ProblemCandidate, CallOptions) (*ProviderResult, error) {
	return nil, NewProviderError(DefaultProviderName, t.strategy, nil)
}

type staticCandidates struct {
	list  []ProblemCandidate
	err   error
	calls atomic.Int64
}

func (s *staticCandidates) Candidates(_ context.Context, _ string, limit int) ([]ProblemCandidate, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.list[:min(limit, len(s.list))], nil
}

type staticProfiles struct {
	profiles map[string]*UserProfile
	calls    atomic.Int64
}

func (s *staticProfiles) Profile(_ context.Context, userID string) (*UserProfile, error) {
	s.calls.Add(1)
	return s.profiles[userID], nil
}

type staticActiveUsers struct {
	users []string
	err   error
}

func (s staticActiveUsers) ActiveUsers(_ context.Context, _ time.Time, _, limit int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[:min(limit, len(s.users))], nil
}

var errBoom = errors.New("boom")

func f64(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }

// sampleCandidates returns n candidates with descending urgency.
func sampleCandidates(n int) []ProblemCandidate {
	out := make([]ProblemCandidate, n)
	for i := range n {
		out[i] = ProblemCandidate{
			ID:           int64(i + 1),
			Title:        fmt.Sprintf("Problem %d", i+1),
			Topic:        "arrays",
			Difficulty:   DifficultyMedium,
			Tags:         []string{"array"},
			UrgencyScore: f64(1 - float64(i)/float64(n+1)),
			DaysOverdue:  iptr(n - i),
		}
	}
	return out
}

// testConfig is the default configuration with the ranking stages that
// reorder or filter items switched off.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Enhancer.Enabled = false
	cfg.Calibration.Enabled = false
	cfg.Hybrid.Enabled = false
	cfg.LLM.Chains[0].Nodes[0].Breaker = config.BreakerConfig{}
	return cfg
}

type testEnv struct {
	svc        *Service
	store      *cache.MemoryStore
	settings   *SettingsStore
	openai     *fakeProvider
	candidates *staticCandidates
	profiles   *staticProfiles
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	settings := NewSettingsStore(NewSettings(cfg))
	store := cache.NewMemoryStore(1000)
	t.Cleanup(func() { _ = store.Close() })

	env := &testEnv{
		store:      store,
		settings:   settings,
		openai:     newFakeProvider("openai"),
		candidates: &staticCandidates{list: sampleCandidates(12)},
		profiles:   &staticProfiles{profiles: map[string]*UserProfile{}},
	}
	svc, err := NewService(Deps{
		Settings:   settings,
		Store:      store,
		Providers:  []Provider{env.openai, terminalProvider{strategy: cfg.LLM.DefaultProvider.Strategy}},
		Candidates: env.candidates,
		Profiles:   env.profiles,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	env.svc = svc
	return env
}
