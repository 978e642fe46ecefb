// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package source

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/recoplane/internal/config"
	"github.com/tomtom215/recoplane/internal/recommend"
)

// CandidateFile is the layout of the candidates fixture. Users without
// their own list get Default.
type CandidateFile struct {
	Default []recommend.ProblemCandidate            `json:"default"`
	Users   map[string][]recommend.ProblemCandidate `json:"users"`
}

// ActiveUser is one entry of the active users fixture.
type ActiveUser struct {
	UserID       string    `json:"userId"`
	Reviews      int       `json:"reviews"`
	LastReviewAt time.Time `json:"lastReviewAt"`
	Tier         string    `json:"tier,omitempty"`
}

// Fixtures serves candidates, profiles, active users and tiers from local
// JSON files. It is read-only after Open and safe for concurrent use.
type Fixtures struct {
	candidates CandidateFile
	profiles   map[string]*recommend.UserProfile
	users      []ActiveUser
	tiers      map[string]recommend.Tier
}

var (
	_ recommend.CandidateSource  = (*Fixtures)(nil)
	_ recommend.ProfileSource    = (*Fixtures)(nil)
	_ recommend.ActiveUserSource = (*Fixtures)(nil)
	_ recommend.TierResolver     = (*Fixtures)(nil)
)

// Open loads the files named in cfg. An empty path leaves that source
// empty; a path that does not exist or does not parse is an error.
func Open(cfg config.SourcesConfig) (*Fixtures, error) {
	f := &Fixtures{
		profiles: map[string]*recommend.UserProfile{},
		tiers:    map[string]recommend.Tier{},
	}

	if err := readJSON(cfg.CandidatesPath, &f.candidates); err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	if err := readJSON(cfg.ProfilesPath, &f.profiles); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if err := readJSON(cfg.ActiveUsersPath, &f.users); err != nil {
		return nil, fmt.Errorf("load active users: %w", err)
	}

	for uid, p := range f.profiles {
		if p == nil {
			delete(f.profiles, uid)
			continue
		}
		if p.UserID == "" {
			p.UserID = uid
		}
	}
	for _, u := range f.users {
		if u.Tier == "" {
			continue
		}
		tier, ok := recommend.ParseTier(u.Tier)
		if !ok {
			return nil, fmt.Errorf("load active users: user %q has unknown tier %q", u.UserID, u.Tier)
		}
		f.tiers[u.UserID] = tier
	}

	// Most recent reviewers first.
	slices.SortStableFunc(f.users, func(a, b ActiveUser) int {
		return b.LastReviewAt.Compare(a.LastReviewAt)
	})
	return f, nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Candidates returns the user's list, or the default list, capped at limit.
func (f *Fixtures) Candidates(ctx context.Context, userID string, limit int) ([]recommend.ProblemCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, ok := f.candidates.Users[userID]
	if !ok {
		list = f.candidates.Default
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return slices.Clone(list), nil
}

// Profile returns a copy of the stored profile, or nil for unknown users.
func (f *Fixtures) Profile(ctx context.Context, userID string) (*recommend.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// ActiveUsers lists users with at least minReviews reviews whose last
// review is not before since, most recent first.
func (f *Fixtures) ActiveUsers(ctx context.Context, since time.Time, minReviews, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	for _, u := range f.users {
		if limit > 0 && len(out) >= limit {
			break
		}
		if u.UserID == "" || u.Reviews < minReviews || u.LastReviewAt.Before(since) {
			continue
		}
		out = append(out, u.UserID)
	}
	return out, nil
}

// Tier returns the tier recorded in the active users file.
func (f *Fixtures) Tier(ctx context.Context, userID string) (recommend.Tier, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	tier, ok := f.tiers[userID]
	return tier, ok, nil
}
