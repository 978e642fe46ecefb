// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tidwall/match"
)

var (
	// ErrNotFound is returned by Get, GetFloat and GetInt on a missing or
	// expired key.
	ErrNotFound = errors.New("cache: key not found")

	// ErrCorrupt is returned when a stored value cannot be decoded, e.g. a
	// counter read that finds a non-numeric payload.
	ErrCorrupt = errors.New("cache: corrupt value")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("cache: store closed")
)

// Store is the shared key/value and counter store behind the result cache
// and the cost guard. Implementations: MemoryStore, RedisStore, BadgerStore.
//
// Counter semantics follow Redis: counters are stored as decimal text,
// IncrBy/IncrByFloat create missing keys from zero, and ttl is applied only
// when the increment creates the key so later increments never extend it.
// A ttl <= 0 means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes keys matching a glob ('*' and '?') and returns
	// how many were removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)

	IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	GetFloat(ctx context.Context, key string) (float64, error)
	GetInt(ctx context.Context, key string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
)

// MatchPattern reports whether key matches a Redis-style glob.
func MatchPattern(key, pattern string) bool {
	return match.Match(key, pattern)
}

// parseFloat decodes a counter payload; a missing payload reads as zero.
func parseFloat(b []byte) (float64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, ErrCorrupt
	}
	return f, nil
}

func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrCorrupt
	}
	return n, nil
}

func formatFloat(f float64) []byte {
	return strconv.AppendFloat(nil, f, 'f', -1, 64)
}

func formatInt(n int64) []byte {
	return strconv.AppendInt(nil, n, 10)
}
