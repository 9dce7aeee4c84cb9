package ports

import (
	"context"
	"time"
)

// LLMClient is a completion endpoint for one model. The oracle and the
// fixers are built on it; provider details stay behind the interface.
type LLMClient interface {
	// Complete returns the model's reply to prompt. Recognised options are
	// "system", "temperature", "max_tokens", "top_p" and "response_format".
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of text.
	EstimateTokens(text string) (int, error)

	GetModel() string
}

// CacheStore holds oracle replies. The engine behaves identically without
// one.
type CacheStore interface {
	// Get reports whether key is present and unexpired.
	Get(ctx context.Context, key string) (any, bool, error)

	// Set stores value for expiration; zero keeps it until evicted.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error

	Clear(ctx context.Context) error
}

// MetricsCollector receives operational metrics from the LLM middleware
// and the budget observer.
type MetricsCollector interface {
	RecordLatency(operation string, duration time.Duration, labels map[string]string)
	RecordCounter(metric string, value float64, labels map[string]string)
	RecordGauge(metric string, value float64, labels map[string]string)
	RecordHistogram(metric string, value float64, labels map[string]string)
}
