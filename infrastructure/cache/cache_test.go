package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
	"github.com/ahrav/go-tribunal/internal/testutils"
)

func TestLRUStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewLRUStore(2)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, s.Set(ctx, "b", 2, 0))

	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	t.Run("evicts least recently used", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "c", 3, 0))
		_, ok, _ := s.Get(ctx, "b")
		assert.False(t, ok)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("expires entries", func(t *testing.T) {
		now = now.Add(time.Minute)
		_, ok, _ := s.Get(ctx, "a")
		assert.False(t, ok)
		_, ok, _ = s.Get(ctx, "c")
		assert.True(t, ok, "zero expiration never expires")
	})

	t.Run("delete and clear", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "missing"))
		require.NoError(t, s.Clear(ctx))
		assert.Zero(t, s.Len())
	})

	t.Run("rejects negative expiration", func(t *testing.T) {
		err := s.Set(ctx, "x", 1, -time.Second)
		var cerr *ports.CacheError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "x", cerr.Key)
	})

	t.Run("honors cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := s.Get(cctx, "c")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func newCachingOracle(t *testing.T, mock *testutils.MockOracle) *CachingOracle {
	t.Helper()
	store, err := NewLRUStore(16)
	require.NoError(t, err)
	return NewCachingOracle(mock, store, time.Hour, WithNamespace("openai/gpt-4.1"))
}

func TestCachingOracle_InitialPhaseHits(t *testing.T) {
	rubric := domain.DefaultRubric()
	mock := testutils.NewMockOracle().
		On(domain.RoleSkeptic, domain.PhaseInitial, testutils.OracleStep{Response: testutils.UniformResponse(rubric, 6, 0.7)})
	c := newCachingOracle(t, mock)

	req := domain.SkepticPersona().BuildJudgmentRequest("doc", rubric)
	first, err := c.ScoreDocument(context.Background(), req)
	require.NoError(t, err)
	second, err := c.ScoreDocument(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, mock.Calls(), 1)
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	other := domain.SkepticPersona().BuildJudgmentRequest("another doc", rubric)
	_, err = c.ScoreDocument(context.Background(), other)
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 2)
}

func TestCachingOracle_Bypass(t *testing.T) {
	rubric := domain.DefaultRubric()
	resp := testutils.UniformResponse(rubric, 6, 0.7)
	mock := testutils.NewMockOracle().
		On(domain.RoleSkeptic, domain.PhaseInitial, testutils.OracleStep{Response: resp}).
		On(domain.RoleSkeptic, domain.PhaseDiscussion, testutils.OracleStep{Response: resp})
	c := newCachingOracle(t, mock)
	ctx := context.Background()

	req := domain.SkepticPersona().BuildJudgmentRequest("doc", rubric)
	_, err := c.ScoreDocument(ctx, req)
	require.NoError(t, err)

	discussion := req
	discussion.Phase = domain.PhaseDiscussion
	for range 2 {
		_, err = c.ScoreDocument(ctx, discussion)
		require.NoError(t, err)
	}
	assert.Len(t, mock.Calls(), 3, "discussion requests are never cached")

	strict := req
	strict.Strict = true
	_, err = c.ScoreDocument(ctx, strict)
	require.NoError(t, err)
	_, err = c.ScoreDocument(ctx, req)
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 5, "a strict request evicts the cached reply")
}

func TestCachingOracle_ErrorsAreNotCached(t *testing.T) {
	rubric := domain.DefaultRubric()
	mock := testutils.NewMockOracle().On(domain.RoleAdvocate, domain.PhaseInitial,
		testutils.OracleStep{Err: errors.New("down")},
		testutils.OracleStep{Response: testutils.UniformResponse(rubric, 7, 0.9)},
	)
	c := newCachingOracle(t, mock)
	req := domain.AdvocatePersona().BuildJudgmentRequest("doc", rubric)

	_, err := c.ScoreDocument(context.Background(), req)
	require.Error(t, err)
	_, err = c.ScoreDocument(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 2)
}

func TestCachingOracle_ConcurrentMissesShareOneCall(t *testing.T) {
	rubric := domain.DefaultRubric()
	mock := testutils.NewMockOracle().On(domain.RoleGeneralist, domain.PhaseInitial,
		testutils.OracleStep{Response: testutils.UniformResponse(rubric, 5, 0.5), Delay: 50 * time.Millisecond})
	c := newCachingOracle(t, mock)
	req := domain.GeneralistPersona().BuildJudgmentRequest("doc", rubric)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.ScoreDocument(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, mock.Calls(), 1)
}

func TestCachingOracle_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	rubric := domain.DefaultRubric()
	mock := testutils.NewMockOracle().On(domain.RoleGeneralist, domain.PhaseInitial,
		testutils.OracleStep{Response: testutils.UniformResponse(rubric, 6, 0.5), Delay: 100 * time.Millisecond})
	c := newCachingOracle(t, mock)
	req := domain.GeneralistPersona().BuildJudgmentRequest("doc", rubric)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.ScoreDocument(ctx, req)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return len(mock.Calls()) == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	var resp domain.OracleResponse
	go func() {
		var err error
		resp, err = c.ScoreDocument(context.Background(), req)
		second <- err
	}()
	cancel()

	assert.ErrorIs(t, <-firstErr, context.Canceled)
	require.NoError(t, <-second)
	require.NotNil(t, resp.Confidence)
	assert.Equal(t, 0.5, *resp.Confidence)
	assert.Len(t, mock.Calls(), 1, "the waiter shares the original call")
}

func TestCachingOracle_Key(t *testing.T) {
	rubric := domain.DefaultRubric()
	c := NewCachingOracle(nil, nil, 0)
	base := domain.SkepticPersona().BuildJudgmentRequest("doc", rubric)

	assert.Equal(t, c.Key(base), c.Key(base))
	assert.Regexp(t, `^oracle:[0-9a-f]{32}$`, c.Key(base))
	assert.NotEqual(t, c.Key(base), c.Key(domain.AdvocatePersona().BuildJudgmentRequest("doc", rubric)))
	assert.NotEqual(t, c.Key(base), c.Key(domain.SkepticPersona().BuildJudgmentRequest("doc.", rubric)))

	namespaced := NewCachingOracle(nil, nil, 0, WithNamespace("anthropic/claude-4-sonnet"))
	assert.NotEqual(t, c.Key(base), namespaced.Key(base))
}
