// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/recoplane/internal/config"
)

// recordingRecommender counts requests and fails for users in failFor.
type recordingRecommender struct {
	mu      sync.Mutex
	calls   []Request
	failFor map[string]bool
	block   chan struct{}
}

func (r *recordingRecommender) GetRecommendations(ctx context.Context, req Request) (*Response, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	r.calls = append(r.calls, req)
	r.mu.Unlock()
	if r.failFor[req.UserID] {
		return nil, errBoom
	}
	return &Response{}, nil
}

func warmerSettings(mutate func(*config.WarmerConfig)) *SettingsStore {
	cfg := config.Default()
	cfg.Warmer.Types = []string{"AI", "HYBRID"}
	cfg.Warmer.Limits = []int{5, 10}
	cfg.Warmer.BatchSize = 2
	if mutate != nil {
		mutate(&cfg.Warmer)
	}
	return NewSettingsStore(NewSettings(cfg))
}

func TestWarmerRun(t *testing.T) {
	rec := &recordingRecommender{failFor: map[string]bool{"u2": true}}
	users := staticActiveUsers{users: []string{"u1", "u2", "u3"}}
	w := NewWarmer(rec, users, nil, warmerSettings(nil), zerolog.Nop())

	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Users != 3 || res.Warmed != 2 || res.Failed != 1 || res.Variants != 8 {
		t.Errorf("result = %+v", res)
	}
	if res.Outcome != WarmOutcomePartial {
		t.Errorf("outcome = %s, want partial", res.Outcome)
	}
	if len(rec.calls) != 12 {
		t.Errorf("requests = %d, want 12 (3 users x 4 variants)", len(rec.calls))
	}

	stats := w.Stats()
	if stats.Runs != 1 || stats.UsersWarmed != 2 || stats.Failures != 1 || stats.LastOutcome != WarmOutcomePartial || stats.Running {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastRunAt.IsZero() || stats.LastUsers != 3 {
		t.Errorf("last run not recorded: %+v", stats)
	}
}

func TestWarmerOutcomes(t *testing.T) {
	t.Run("no active users", func(t *testing.T) {
		w := NewWarmer(&recordingRecommender{}, nil, nil, warmerSettings(nil), zerolog.Nop())
		res, err := w.Run(context.Background())
		if err != nil || res.Outcome != WarmOutcomeSuccess {
			t.Errorf("Run = %+v, %v", res, err)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		rec := &recordingRecommender{failFor: map[string]bool{"u1": true}}
		w := NewWarmer(rec, staticActiveUsers{users: []string{"u1"}}, nil, warmerSettings(nil), zerolog.Nop())
		res, _ := w.Run(context.Background())
		if res.Outcome != WarmOutcomeFailed {
			t.Errorf("outcome = %s", res.Outcome)
		}
	})

	t.Run("user listing fails", func(t *testing.T) {
		w := NewWarmer(&recordingRecommender{}, staticActiveUsers{err: errBoom}, nil, warmerSettings(nil), zerolog.Nop())
		res, err := w.Run(context.Background())
		if !errors.Is(err, errBoom) || res.Outcome != WarmOutcomeFailed {
			t.Errorf("Run = %+v, %v", res, err)
		}
		if w.Stats().Runs != 1 {
			t.Error("failed run should still be counted")
		}
	})

	t.Run("profile refresh fails", func(t *testing.T) {
		rec := &recordingRecommender{}
		w := NewWarmer(rec, staticActiveUsers{users: []string{"u1"}}, failingRefresher{}, warmerSettings(nil), zerolog.Nop())
		res, _ := w.Run(context.Background())
		if res.Failed != 1 || len(rec.calls) != 0 {
			t.Errorf("result = %+v, calls = %d", res, len(rec.calls))
		}
	})
}

type failingRefresher struct{}

func (failingRefresher) RefreshProfile(context.Context, string) (*UserProfile, error) {
	return nil, errBoom
}

func TestWarmerRejectsOverlappingRuns(t *testing.T) {
	rec := &recordingRecommender{block: make(chan struct{})}
	w := NewWarmer(rec, staticActiveUsers{users: []string{"u1"}}, nil, warmerSettings(nil), zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Run(context.Background())
	}()

	deadline := time.Now().Add(time.Second)
	for !w.Stats().Running {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	res, err := w.Run(context.Background())
	if !errors.Is(err, ErrWarmerRunning) || res.Outcome != WarmOutcomeSkipped {
		t.Errorf("overlapping Run = %+v, %v", res, err)
	}

	close(rec.block)
	<-done
	if w.Stats().Running {
		t.Error("running flag not cleared")
	}
}

func TestWarmerRunTimeout(t *testing.T) {
	rec := &recordingRecommender{block: make(chan struct{})}
	settings := warmerSettings(func(c *config.WarmerConfig) { c.RunTimeout = 30 * time.Millisecond })
	w := NewWarmer(rec, staticActiveUsers{users: []string{"u1", "u2"}}, nil, settings, zerolog.Nop())

	res, err := w.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != WarmOutcomeFailed || res.Warmed != 0 {
		t.Errorf("timed-out run = %+v", res)
	}
}

func TestWarmerPopulatesResultCache(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Warmer.Types = []string{"AI"}
		c.Warmer.Limits = []int{5}
	})
	env.profiles.profiles["u1"] = richProfile()
	w := NewWarmer(env.svc, staticActiveUsers{users: []string{"u1"}}, env.svc.Profiles(), env.settings, zerolog.Nop())

	if res, err := w.Run(context.Background()); err != nil || res.Warmed != 1 {
		t.Fatalf("Run = %+v, %v", res, err)
	}
	if c := env.profiles.calls.Load(); c != 1 {
		t.Errorf("profile refreshes = %d, want 1", c)
	}

	resp, err := env.svc.GetRecommendations(context.Background(), Request{UserID: "u1", Type: "AI", Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Meta.Cached {
		t.Error("warmed request should be served from cache")
	}
	if c := env.openai.calls.Load(); c != 1 {
		t.Errorf("provider calls = %d, want 1", c)
	}
}
