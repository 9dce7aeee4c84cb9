// Package cache provides an in-memory ports.CacheStore and a caching
// decorator for scoring oracles.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.CacheStore = (*LRUStore)(nil)

const (
	defaultStoreSize = 256
)

type entry struct {
	value     any
	expiresAt time.Time // zero never expires
}

// LRUStore is a size-bounded ports.CacheStore with per-entry expiry. Expired
// entries are dropped lazily on read.
type LRUStore struct {
	cache *lru.Cache[string, entry]
	now   func() time.Time
}

// NewLRUStore creates a store holding at most size entries. A non-positive
// size uses the default.
func NewLRUStore(size int) (*LRUStore, error) {
	if size <= 0 {
		size = defaultStoreSize
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &LRUStore{cache: c, now: time.Now}, nil
}

// Get implements ports.CacheStore.
func (s *LRUStore) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	e, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.cache.Remove(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements ports.CacheStore.
func (s *LRUStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if expiration < 0 {
		return ports.NewCacheError(key, "set", fmt.Errorf("negative expiration %s", expiration))
	}
	e := entry{value: value}
	if expiration > 0 {
		e.expiresAt = s.now().Add(expiration)
	}
	s.cache.Add(key, e)
	return nil
}

// Delete implements ports.CacheStore.
func (s *LRUStore) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// Clear implements ports.CacheStore.
func (s *LRUStore) Clear(context.Context) error {
	s.cache.Purge()
	return nil
}

// Len reports the number of entries, including expired ones not yet read.
func (s *LRUStore) Len() int { return s.cache.Len() }
