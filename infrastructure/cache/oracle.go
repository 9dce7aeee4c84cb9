package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.ScoringOracle = (*CachingOracle)(nil)

// CachingOracle serves repeated initial-phase requests from a CacheStore.
// Discussion and tiebreak requests depend on peer verdicts and always reach
// the wrapped oracle. A strict request evicts the cached reply for the same
// request, since it follows a reply the judge runner could not use.
// Concurrent identical misses share one upstream call.
type CachingOracle struct {
	next      ports.ScoringOracle
	store     ports.CacheStore
	ttl       time.Duration
	namespace string
	group     singleflight.Group

	hits, misses atomic.Int64
}

// CachingOption configures a CachingOracle.
type CachingOption func(*CachingOracle)

// WithNamespace separates keys of oracles backed by different models.
func WithNamespace(ns string) CachingOption {
	return func(c *CachingOracle) { c.namespace = ns }
}

// NewCachingOracle wraps next. A zero ttl keeps entries until evicted.
func NewCachingOracle(next ports.ScoringOracle, store ports.CacheStore, ttl time.Duration, opts ...CachingOption) *CachingOracle {
	c := &CachingOracle{next: next, store: store, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ScoreDocument implements ports.ScoringOracle.
func (c *CachingOracle) ScoreDocument(ctx context.Context, req domain.JudgmentRequest) (domain.OracleResponse, error) {
	if req.Phase != domain.PhaseInitial || req.Rubric == nil {
		return c.next.ScoreDocument(ctx, req)
	}
	key := c.Key(req)

	if req.Strict {
		// A failed store must not fail scoring.
		_ = c.store.Delete(ctx, key)
		return c.next.ScoreDocument(ctx, req)
	}

	if v, ok, err := c.store.Get(ctx, key); err == nil && ok {
		if resp, ok := v.(domain.OracleResponse); ok {
			c.hits.Add(1)
			return resp, nil
		}
		_ = c.store.Delete(ctx, key)
	}
	c.misses.Add(1)

	// The flight outlives any one caller: each waiter stops on its own ctx
	// while the shared call keeps running for the others.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		resp, err := c.next.ScoreDocument(flightCtx, req)
		if err != nil {
			return nil, err
		}
		_ = c.store.Set(flightCtx, key, resp, c.ttl)
		return resp, nil
	})
	select {
	case <-ctx.Done():
		return domain.OracleResponse{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return domain.OracleResponse{}, r.Err
		}
		return r.Val.(domain.OracleResponse), nil
	}
}

// Stats returns the number of cache hits and misses.
func (c *CachingOracle) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Key derives the cache key for req from everything that shapes the
// oracle's answer in the initial phase.
func (c *CachingOracle) Key(req domain.JudgmentRequest) string {
	h := murmur3.New128()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	write(c.namespace)
	write(string(req.Phase))
	write(string(req.Persona.Role))
	write(req.Persona.Stance)
	for _, f := range req.Persona.FocusDimensions {
		write(f)
	}
	for _, d := range req.Rubric.Dimensions() {
		write(d.Name)
		write(strconv.FormatFloat(d.Weight, 'g', -1, 64))
		write(d.Description)
		write(d.Guidelines)
	}
	write(req.Document)

	hi, lo := h.Sum128()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], hi)
	binary.BigEndian.PutUint64(buf[8:], lo)
	return "oracle:" + hex.EncodeToString(buf[:])
}
