// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/recommend"
)

func openTestdata(t *testing.T) *Fixtures {
	t.Helper()
	f, err := Open(config.SourcesConfig{
		CandidatesPath:  filepath.Join("testdata", "candidates.json"),
		ProfilesPath:    filepath.Join("testdata", "profiles.json"),
		ActiveUsersPath: filepath.Join("testdata", "active_users.json"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return f
}

func TestOpen_EmptyConfig(t *testing.T) {
	f, err := Open(config.SourcesConfig{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if c, _ := f.Candidates(ctx, "u-1", 10); len(c) != 0 {
		t.Errorf("candidates = %d, want 0", len(c))
	}
	if p, err := f.Profile(ctx, "u-1"); p != nil || err != nil {
		t.Errorf("Profile = %v, %v, want nil, nil", p, err)
	}
	if u, _ := f.ActiveUsers(ctx, time.Time{}, 0, 10); len(u) != 0 {
		t.Errorf("active users = %v, want none", u)
	}
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.json")
	if err := os.WriteFile(garbage, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	badTier := filepath.Join(dir, "users.json")
	if err := os.WriteFile(badTier, []byte(`[{"userId":"u","tier":"diamond"}]`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name         string
		cfg          config.SourcesConfig
		wantNotExist bool
	}{
		{name: "missing file", cfg: config.SourcesConfig{CandidatesPath: filepath.Join(dir, "nope.json")}, wantNotExist: true},
		{name: "malformed json", cfg: config.SourcesConfig{ProfilesPath: garbage}},
		{name: "unknown tier", cfg: config.SourcesConfig{ActiveUsersPath: badTier}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.cfg)
			if err == nil {
				t.Fatal("Open succeeded, want error")
			}
			if got := errors.Is(err, os.ErrNotExist); got != tt.wantNotExist {
				t.Errorf("errors.Is(err, os.ErrNotExist) = %v, want %v (%v)", got, tt.wantNotExist, err)
			}
		})
	}
}

func TestFixtures_Candidates(t *testing.T) {
	f := openTestdata(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		userID  string
		limit   int
		wantIDs []int64
	}{
		{"default list", "u-1", 10, []int64{101, 102, 103, 104}},
		{"capped", "u-1", 2, []int64{101, 102}},
		{"no cap", "u-1", 0, []int64{101, 102, 103, 104}},
		{"per-user list", "u-gold", 10, []int64{201}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Candidates(ctx, tt.userID, tt.limit)
			if err != nil {
				t.Fatalf("Candidates: %v", err)
			}
			ids := make([]int64, 0, len(got))
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			if !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}

	t.Run("result is a copy", func(t *testing.T) {
		first, _ := f.Candidates(ctx, "u-1", 10)
		first[0].ID = 999
		again, _ := f.Candidates(ctx, "u-1", 10)
		if again[0].ID != 101 {
			t.Error("caller mutation leaked into the fixture")
		}
	})

	t.Run("optional fields decode", func(t *testing.T) {
		got, _ := f.Candidates(ctx, "u-1", 10)
		c := got[1]
		if c.Difficulty != recommend.DifficultyMedium || c.DaysOverdue == nil || *c.DaysOverdue != 3 {
			t.Errorf("candidate 102 = %+v", c)
		}
	})
}

func TestFixtures_Profile(t *testing.T) {
	f := openTestdata(t)
	ctx := context.Background()

	p, err := f.Profile(ctx, "u-gold")
	if err != nil || p == nil {
		t.Fatalf("Profile = %v, %v", p, err)
	}
	if p.UserID != "u-gold" {
		t.Errorf("UserID = %q, want key fallback u-gold", p.UserID)
	}
	if weak := p.WeakDomains(); !slices.Equal(weak, []string{"graph"}) {
		t.Errorf("WeakDomains = %v, want [graph]", weak)
	}

	p.OverallMastery = 0
	if again, _ := f.Profile(ctx, "u-gold"); again.OverallMastery != 0.62 {
		t.Error("caller mutation leaked into the fixture")
	}

	if ghost, _ := f.Profile(ctx, "u-ghost"); ghost != nil {
		t.Error("null profile entry should read as no profile")
	}
}

func TestFixtures_ActiveUsers(t *testing.T) {
	f := openTestdata(t)
	ctx := context.Background()
	since := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		minReviews int
		limit      int
		want       []string
	}{
		{"recent with enough reviews", 5, 10, []string{"u-gold", "u-free"}},
		{"low threshold keeps order", 0, 10, []string{"u-gold", "u-casual", "u-free"}},
		{"limit", 0, 1, []string{"u-gold"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.ActiveUsers(ctx, since, tt.minReviews, tt.limit)
			if err != nil {
				t.Fatalf("ActiveUsers: %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("ActiveUsers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFixtures_Tier(t *testing.T) {
	f := openTestdata(t)
	ctx := context.Background()

	tests := []struct {
		userID string
		want   recommend.Tier
		ok     bool
	}{
		{"u-gold", recommend.TierGold, true},
		{"u-free", recommend.TierFree, true},
		{"u-old", "", false},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.userID, func(t *testing.T) {
			got, ok, err := f.Tier(ctx, tt.userID)
			if err != nil || got != tt.want || ok != tt.ok {
				t.Errorf("Tier = %q, %v, %v, want %q, %v", got, ok, err, tt.want, tt.ok)
			}
		})
	}
}

func TestFixtures_CanceledContext(t *testing.T) {
	f := openTestdata(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Candidates(ctx, "u-1", 1); !errors.Is(err, context.Canceled) {
		t.Errorf("Candidates err = %v", err)
	}
	if _, err := f.Profile(ctx, "u-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Profile err = %v", err)
	}
	if _, err := f.ActiveUsers(ctx, time.Time{}, 0, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("ActiveUsers err = %v", err)
	}
	if _, _, err := f.Tier(ctx, "u-1"); !errors.Is(err, context.Canceled) {
		t.Errorf("Tier err = %v", err)
	}
}
