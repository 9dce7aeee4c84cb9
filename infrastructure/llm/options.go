package llm

import (
	"cmp"
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Request option keys understood by every provider.
const (
	OptModel          = "model"
	OptSystem         = "system"
	OptTemperature    = "temperature"
	OptTopP           = "top_p"
	OptMaxTokens      = "max_tokens"
	OptResponseFormat = "response_format"
)

// ResponseFormatJSON asks the provider for a JSON object when it supports a
// dedicated mode.
const ResponseFormatJSON = "json"

// Parameter bounds shared across providers.
const (
	DefaultMaxTokens = 4096
	MinTemperature   = 0.0
	MaxTemperature   = 1.0
	MinTopP          = 0.0
	MaxTopP          = 1.0
	MinTimeout       = time.Second
	MaxTimeout       = 10 * time.Minute
)

// RequestOptions is the normalized form of a request option map.
type RequestOptions struct {
	Model     string
	System    string
	MaxTokens int

	// Temperature and TopP are nil when the provider default applies.
	Temperature *float64
	TopP        *float64

	// JSON is set when the caller asked for a JSON object response.
	JSON bool

	// Extra holds provider-specific keys.
	Extra map[string]any
}

// ParseRequestOptions normalizes opts. Values of the wrong type or out of
// range fall back to defaults; unknown keys land in Extra.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	ro := RequestOptions{
		Model:     optional(opts, OptModel, defaultModel, nonEmpty),
		System:    optional(opts, OptSystem, "", nil),
		MaxTokens: optional(opts, OptMaxTokens, DefaultMaxTokens, positive),
		JSON:      optional(opts, OptResponseFormat, "", nil) == ResponseFormatJSON,
		Extra:     map[string]any{},
	}
	if v, ok := lookup(opts, OptTemperature, inRange(MinTemperature, MaxTemperature)); ok {
		ro.Temperature = &v
	}
	if v, ok := lookup(opts, OptTopP, inRange(MinTopP, MaxTopP)); ok {
		ro.TopP = &v
	}
	for k, v := range opts {
		switch k {
		case OptModel, OptSystem, OptMaxTokens, OptResponseFormat, OptTemperature, OptTopP:
		default:
			ro.Extra[k] = v
		}
	}
	return ro
}

// optional returns opts[key] when it has type T and passes valid.
func optional[T any](opts map[string]any, key string, def T, valid func(T) bool) T {
	if v, ok := lookup(opts, key, valid); ok {
		return v
	}
	return def
}

func lookup[T any](opts map[string]any, key string, valid func(T) bool) (T, bool) {
	var zero T
	raw, ok := opts[key]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok || (valid != nil && !valid(v)) {
		return zero, false
	}
	return v, true
}

func nonEmpty(s string) bool { return s != "" }

func positive(n int) bool { return n > 0 }

func inRange(lo, hi float64) func(float64) bool {
	return func(v float64) bool { return v >= lo && v <= hi }
}

func clamp[T cmp.Ordered](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// ValidateBaseURL checks that baseURL is an absolute http(s) URL. An empty
// string is accepted and means the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must include a host")
	}
	return u.String(), nil
}

// ClampTimeout bounds d to [MinTimeout, MaxTimeout].
func ClampTimeout(d time.Duration) time.Duration {
	return clamp(d, MinTimeout, MaxTimeout)
}

// BaseProvider holds the model name behind a lock so SetModel can race with
// in-flight requests.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel replaces the configured model.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// tokenCount prefers the provider-reported count and estimates otherwise.
func tokenCount[N int | int32 | int64](reported N, text string) int {
	if reported > 0 {
		return int(reported)
	}
	return estimateTokens(text)
}
