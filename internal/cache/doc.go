// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

/*
Package cache provides the shared key/value and counter store used by the
recommendation result cache and the LLM cost guard.

# Overview

Store is a small Redis-shaped contract: byte values with TTL, set-if-absent,
glob deletes and atomic counters. Three backends implement it:

  - MemoryStore: in-process, on top of the generic LRU (default)
  - RedisStore: go-redis client; counters via Lua so the expiry is applied
    only when an increment creates the key
  - BadgerStore: embedded BadgerDB with TTL entries and transactional
    counters retried on write conflicts

Open selects the backend from config.CacheConfig.

# Counter Semantics

Counters are stored as decimal text. Increments create missing keys from zero
and never extend an existing expiry, so a daily budget key created at 09:00
with a 7 day TTL expires 7 days after 09:00 no matter how often it is bumped.

# LRU

LRU[V] is a generic, mutex-guarded least recently used map with per-entry
expiry. Beyond MemoryStore it backs the per-user semaphore pool of the
admission controller, which relies on:

  - GetOrAdd with a sliding idle TTL
  - WithEvictionGuard so entries with held permits are never evicted

# Usage Example

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
	    return err
	}
	defer store.Close()

	spent, err := store.IncrByFloat(ctx, "llm:cost:daily:2026-10-15", 0.0012, 7*24*time.Hour)

# Thread Safety

All stores are safe for concurrent use. Values passed to and returned from
MemoryStore are copied.
*/
package cache
