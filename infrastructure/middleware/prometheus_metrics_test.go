package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/infrastructure/llm"
	"github.com/ahrav/go-tribunal/internal/domain"
)

func newTestMetrics(t *testing.T) (*PrometheusMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewPrometheusMetrics(reg), reg
}

func TestPrometheusMetrics_LLMMiddlewareMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)
	client := llm.NewClientFromCore(&stubLLM{in: 12, out: 3}, nil, llm.MetricsMiddleware(pm, "openai"))

	for range 2 {
		_, err := client.Complete(context.Background(), "p", nil)
		require.NoError(t, err)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("openai", "stub-model", "success")))
	assert.Equal(t, 24.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "stub-model", "input")))
	assert.Equal(t, 6.0, testutil.ToFloat64(pm.llmTokens.WithLabelValues("openai", "stub-model", "output")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.llmLatency))
}

func TestPrometheusMetrics_GenericMetrics(t *testing.T) {
	pm, _ := newTestMetrics(t)

	pm.RecordCounter("cache_hits", 3, nil)
	pm.RecordGauge("queue_depth", 7, nil)
	pm.RecordHistogram("edit_count", 4, nil)
	pm.RecordLatency("reconcile", 20*time.Millisecond, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.counters.WithLabelValues("cache_hits")))
	assert.Equal(t, 7.0, testutil.ToFloat64(pm.gauges.WithLabelValues("queue_depth")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.histograms))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.opLatency))
}

func TestPrometheusMetrics_BudgetGauges(t *testing.T) {
	pm, _ := newTestMetrics(t)
	obs := NewOTelBudgetObserver(pm, "judges")

	obs.PostCheck(context.Background(), Usage{Tokens: 40, Calls: 2}, Budget{MaxTokens: 100}, time.Millisecond, nil)

	assert.Equal(t, 40.0, testutil.ToFloat64(pm.budgetUsed.WithLabelValues("judges", "tokens")))
	assert.Equal(t, 60.0, testutil.ToFloat64(pm.budgetRemaining.WithLabelValues("judges", "tokens")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.budgetUsed.WithLabelValues("judges", "calls")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.budgetRemaining), "unlimited calls have no remaining gauge")
}

func TestPrometheusMetrics_RecordExecution(t *testing.T) {
	pm, reg := newTestMetrics(t)
	ctx := context.Background()

	pm.RecordExecution(ctx, domain.ExecutionRecord{
		Operation: "judge", Phase: domain.PhaseInitial, Role: domain.RoleSkeptic,
		Attempts: 2, Duration: time.Second, Success: true, Score: 6.5,
	})
	pm.RecordExecution(ctx, domain.ExecutionRecord{
		Operation: "judge", Phase: domain.PhaseInitial, Role: domain.RoleAdvocate,
		Attempts: 3, Duration: time.Second, Error: "timeout",
	})
	pm.RecordExecution(ctx, domain.ExecutionRecord{Operation: "evaluate", Success: true, Score: 7})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.executions.WithLabelValues("judge", "initial", "skeptic", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.executions.WithLabelValues("judge", "initial", "advocate", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.executions.WithLabelValues("evaluate", "none", "none", "success")))

	expected := `
# HELP tribunal_judge_attempts Oracle calls per judge execution.
# TYPE tribunal_judge_attempts histogram
tribunal_judge_attempts_bucket{phase="initial",le="1"} 0
tribunal_judge_attempts_bucket{phase="initial",le="2"} 1
tribunal_judge_attempts_bucket{phase="initial",le="3"} 2
tribunal_judge_attempts_bucket{phase="initial",le="4"} 2
tribunal_judge_attempts_bucket{phase="initial",le="5"} 2
tribunal_judge_attempts_bucket{phase="initial",le="+Inf"} 2
tribunal_judge_attempts_sum{phase="initial"} 5
tribunal_judge_attempts_count{phase="initial"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tribunal_judge_attempts"))
}

func TestPrometheusMetrics_MissingLabelsFallBack(t *testing.T) {
	pm, _ := newTestMetrics(t)
	pm.RecordCounter(llm.MetricLLMRequests, 1, map[string]string{"provider": "google"})
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.llmRequests.WithLabelValues("google", "unknown", "unknown")))
}
