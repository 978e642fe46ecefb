// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package recommend

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Cache key purposes. Every per-user key has the form
// <purpose>:<userId>:<suffix> so invalidation can match by pattern.
const (
	PurposeResult     = "rec-ai"
	PurposeCandidates = "rec-candidates"
	PurposeProfile    = "userProfile"
)

// objectiveHashLen is the number of hex characters kept from the digest.
const objectiveHashLen = 12

// KeyParams are the request dimensions that select a cached result.
// ForceRefresh is deliberately absent: it changes whether the cache is
// read, never which entry.
type KeyParams struct {
	UserID        string
	Type          RecommendationType
	Limit         int
	PromptVersion string
	Tier          Tier
	ABGroup       string
	ChainID       string
	ObjectiveHash string
}

// ResultKey returns the result cache key for p.
func ResultKey(p KeyParams) string {
	fp := strings.Join([]string{
		strconv.Itoa(p.Limit),
		p.PromptVersion,
		string(p.Tier),
		p.ABGroup,
		p.ChainID,
		p.ObjectiveHash,
		string(p.Type),
	}, "|")
	return fmt.Sprintf("%s:%s:%016x", PurposeResult, p.UserID, xxh3.HashString(fp))
}

// CandidatesKey returns the key of the cached candidate list for a user and
// candidate cap.
func CandidatesKey(userID string, limit int) string {
	return fmt.Sprintf("%s:%s:%d", PurposeCandidates, userID, limit)
}

// ProfileKey returns the key of a user's cached profile.
func ProfileKey(userID string) string {
	return PurposeProfile + ":" + userID
}

// UserResultPattern matches every cached result of a user.
func UserResultPattern(userID string) string {
	return PurposeResult + ":" + userID + ":*"
}

// ObjectiveHash fingerprints the learning-objective fields of a request: the
// first 12 hex characters of a SHA-256 over objective, sorted domains,
// difficulty and timebox. A request without any of them hashes to "".
func ObjectiveHash(objective Objective, domains []string, difficulty Difficulty, timeboxMinutes int) string {
	if objective == "" && len(domains) == 0 && difficulty == "" && timeboxMinutes <= 0 {
		return ""
	}

	sorted := make([]string, len(domains))
	copy(sorted, domains)
	sort.Strings(sorted)

	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(objective),
		strings.Join(sorted, ","),
		string(difficulty),
		strconv.Itoa(timeboxMinutes),
	}, "|")))
	return hex.EncodeToString(sum[:])[:objectiveHashLen]
}

// KeyParamsFor derives key parameters from a request context.
func KeyParamsFor(rctx *RequestContext, resolved RecommendationType, promptVersion, chainID string) KeyParams {
	return KeyParams{
		UserID:        rctx.UserID,
		Type:          resolved,
		Limit:         rctx.Limit,
		PromptVersion: promptVersion,
		Tier:          rctx.Tier,
		ABGroup:       rctx.ABGroup,
		ChainID:       chainID,
		ObjectiveHash: ObjectiveHash(rctx.Objective, rctx.TargetDomains, rctx.DesiredDifficulty, rctx.TimeboxMinutes),
	}
}
