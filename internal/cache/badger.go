// Recoplane - LLM Recommendation Control Plane
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/recoplane

package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/recoplane/internal/config"
)

// badgerConflictRetries bounds how often a counter transaction is retried
// after a write conflict.
const badgerConflictRetries = 64

// badgerGCRatio is the value log discard ratio used by Maintain.
const badgerGCRatio = 0.5

// BadgerStore is a Store persisted in an embedded BadgerDB. Counters and
// cached results survive restarts of a single instance.
type BadgerStore struct {
	db     *badger.DB
	owned  bool
	closed atomic.Bool
}

// NewBadgerStore opens (or creates) the database described by cfg.
func NewBadgerStore(cfg config.BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB internal logs
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache store: %w", err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

// NewBadgerStoreFromDB wraps an existing database. Close leaves db open.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// Get implements Store.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set implements Store.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(key, value, ttl))
	})
}

// SetNX implements Store.
func (s *BadgerStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	var stored bool
	err := s.retryConflicts(func(txn *badger.Txn) error {
		stored = false
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		stored = true
		return txn.SetEntry(newEntry(key, value, ttl))
	})
	return stored, err
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, keys ...string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete([]byte(k)); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return wb.Flush()
}

// DeletePattern implements Store. The literal prefix of the glob bounds the
// key scan; the remaining keys are matched one by one.
func (s *BadgerStore) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	prefix := []byte(globPrefix(pattern))
	var matched [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := it.Item().KeyCopy(nil)
			if MatchPattern(string(key), pattern) {
				matched = append(matched, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", pattern, err)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range matched {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush deletes: %w", err)
	}
	return len(matched), nil
}

// Exists implements Store.
func (s *BadgerStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IncrByFloat implements Store.
func (s *BadgerStore) IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var result float64
	err := s.mutateCounter(key, ttl, func(old []byte) ([]byte, error) {
		cur, err := parseFloat(old)
		if err != nil {
			return nil, err
		}
		result = cur + delta
		return formatFloat(result), nil
	})
	return result, err
}

// IncrBy implements Store.
func (s *BadgerStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var result int64
	err := s.mutateCounter(key, ttl, func(old []byte) ([]byte, error) {
		cur, err := parseInt(old)
		if err != nil {
			return nil, err
		}
		result = cur + delta
		return formatInt(result), nil
	})
	return result, err
}

// GetFloat implements Store.
func (s *BadgerStore) GetFloat(ctx context.Context, key string) (float64, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseFloat(b)
}

// GetInt implements Store.
func (s *BadgerStore) GetInt(ctx context.Context, key string) (int64, error) {
	b, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return parseInt(b)
}

// Ping implements Store.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) || !s.owned {
		return nil
	}
	return s.db.Close()
}

// Maintain runs value log garbage collection until nothing is left to
// rewrite. In-memory databases have no value log and return immediately.
func (s *BadgerStore) Maintain(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if s.db.Opts().InMemory {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(badgerGCRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}

// mutateCounter applies fn to the stored value inside a transaction. An
// existing key keeps its expiry; a new key gets ttl.
func (s *BadgerStore) mutateCounter(key string, ttl time.Duration, fn func(old []byte) ([]byte, error)) error {
	return s.retryConflicts(func(txn *badger.Txn) error {
		k := []byte(key)
		var (
			old       []byte
			expiresAt uint64
			exists    bool
		)

		item, err := txn.Get(k)
		switch {
		case err == nil:
			exists = true
			expiresAt = item.ExpiresAt()
			if old, err = item.ValueCopy(nil); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next, err := fn(old)
		if err != nil {
			return err
		}

		if !exists {
			return txn.SetEntry(newEntry(key, next, ttl))
		}
		e := badger.NewEntry(k, next)
		e.ExpiresAt = expiresAt
		return txn.SetEntry(e)
	})
}

func (s *BadgerStore) retryConflicts(fn func(txn *badger.Txn) error) error {
	var err error
	for range badgerConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), bytes.Clone(value))
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// globPrefix returns the part of pattern before its first wildcard.
func globPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?["); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
