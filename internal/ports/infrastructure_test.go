package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/internal/domain"
)

// mockLLMClient implements LLMClient.
type mockLLMClient struct{ model string }

func (m *mockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	return "mock response", nil
}

func (m *mockLLMClient) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }

func (m *mockLLMClient) GetModel() string { return m.model }

// mockCacheStore implements CacheStore.
type mockCacheStore struct{ data map[string]any }

func newMockCacheStore() *mockCacheStore { return &mockCacheStore{data: make(map[string]any)} }

func (m *mockCacheStore) Get(ctx context.Context, key string) (any, bool, error) {
	val, exists := m.data[key]
	return val, exists, nil
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mockCacheStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *mockCacheStore) Clear(ctx context.Context) error {
	m.data = make(map[string]any)
	return nil
}

// mockMetricsCollector implements MetricsCollector.
type mockMetricsCollector struct {
	latencies  []time.Duration
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

func newMockMetricsCollector() *mockMetricsCollector {
	return &mockMetricsCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *mockMetricsCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	m.latencies = append(m.latencies, duration)
}

func (m *mockMetricsCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	m.counters[metric] += value
}

func (m *mockMetricsCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	m.gauges[metric] = value
}

func (m *mockMetricsCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	m.histograms[metric] = append(m.histograms[metric], value)
}

// fixedOracle implements ScoringOracle with a canned reply.
type fixedOracle struct{ resp domain.OracleResponse }

func (o fixedOracle) ScoreDocument(context.Context, domain.JudgmentRequest) (domain.OracleResponse, error) {
	return o.resp, nil
}

func TestInterfaces_Implementation(t *testing.T) {
	var _ LLMClient = (*mockLLMClient)(nil)
	var _ CacheStore = (*mockCacheStore)(nil)
	var _ MetricsCollector = (*mockMetricsCollector)(nil)
	var _ ScoringOracle = fixedOracle{}
	var _ EventSink = NopEventSink{}
	var _ ExecutionRecorder = NopRecorder{}

	llm := &mockLLMClient{model: "test-model"}
	assert.Equal(t, "test-model", llm.GetModel())

	response, err := llm.Complete(context.Background(), "test prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "mock response", response)

	tokens, err := llm.EstimateTokens("hello world test")
	require.NoError(t, err)
	assert.Greater(t, tokens, 0)
}

func TestCacheStore_Operations(t *testing.T) {
	ctx := context.Background()
	cache := newMockCacheStore()

	require.NoError(t, cache.Set(ctx, "key1", "value1", time.Hour))
	val, exists, err := cache.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "value1", val)

	_, exists, err = cache.Get(ctx, "nonexistent")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, cache.Delete(ctx, "key1"))
	_, exists, _ = cache.Get(ctx, "key1")
	assert.False(t, exists)

	require.NoError(t, cache.Set(ctx, "key2", "value2", 0))
	require.NoError(t, cache.Clear(ctx))
	assert.Empty(t, cache.data)
}

func TestMetricsCollector_Recording(t *testing.T) {
	metrics := newMockMetricsCollector()
	labels := map[string]string{"provider": "test"}

	metrics.RecordLatency("complete", 100*time.Millisecond, labels)
	metrics.RecordCounter("requests", 1, labels)
	metrics.RecordCounter("requests", 2, labels)
	metrics.RecordGauge("budget_tokens_used", 10, labels)
	metrics.RecordGauge("budget_tokens_used", 5, labels)
	metrics.RecordHistogram("final_score", 7.5, labels)
	metrics.RecordHistogram("final_score", 8.0, labels)

	assert.Equal(t, []time.Duration{100 * time.Millisecond}, metrics.latencies)
	assert.Equal(t, float64(3), metrics.counters["requests"])
	assert.Equal(t, float64(5), metrics.gauges["budget_tokens_used"])
	assert.Len(t, metrics.histograms["final_score"], 2)
}

func TestNopSinks(t *testing.T) {
	assert.NotPanics(t, func() {
		NopEventSink{}.Emit(context.Background(), domain.Event{})
		NopRecorder{}.RecordExecution(context.Background(), domain.ExecutionRecord{})
	})
}
