package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/go-tribunal/internal/ports"
)

// Metric names emitted by MetricsMiddleware.
const (
	MetricLLMLatency  = "llm_request_duration_seconds"
	MetricLLMRequests = "llm_requests_total"
	MetricLLMTokens   = "llm_tokens_total"
)

type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
	provider  string
}

// MetricsMiddleware records latency, request outcome and token usage per
// provider and model.
func MetricsMiddleware(collector ports.MetricsCollector, provider string) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector, provider: provider}
	}
}

func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	resp, in, out, err := m.next.DoRequest(ctx, prompt, opts)
	if m.collector == nil {
		return resp, in, out, err
	}

	labels := map[string]string{
		"provider": m.provider,
		"model":    m.next.GetModel(),
		"status":   requestStatus(err),
	}
	m.collector.RecordLatency(MetricLLMLatency, time.Since(start), labels)
	m.collector.RecordCounter(MetricLLMRequests, 1, labels)
	if err == nil {
		m.collector.RecordCounter(MetricLLMTokens, float64(in), withLabel(labels, "direction", "input"))
		m.collector.RecordCounter(MetricLLMTokens, float64(out), withLabel(labels, "direction", "output"))
	}
	return resp, in, out, err
}

func (m *metricsLLM) GetModel() string  { return m.next.GetModel() }
func (m *metricsLLM) SetModel(s string) { m.next.SetModel(s) }

func requestStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

func withLabel(labels map[string]string, k, v string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for lk, lv := range labels {
		out[lk] = lv
	}
	out[k] = v
	return out
}
