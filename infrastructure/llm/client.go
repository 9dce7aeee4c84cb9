// Package llm adapts hosted language-model providers to ports.LLMClient and
// builds the scoring oracle and the fixer on top of them.
//
// Providers implement the small CoreLLM interface. Cross-cutting behavior
// (rate limiting, circuit breaking, timeouts, metrics, tracing) is layered on
// with Middleware:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-4-sonnet",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("anthropic"),
//	        llm.RateLimitMiddleware(5, 10),
//	        llm.CircuitBreakerMiddleware(5, 30*time.Second),
//	    },
//	})
//	oracle := llm.NewOracle(client)
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-tribunal/internal/ports"
)

// CoreLLM is the minimal surface a provider implements. Middleware wraps it.
type CoreLLM interface {
	// DoRequest sends prompt to the provider and returns the response text
	// with input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model name.
	GetModel() string

	// SetModel changes the model used by subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts before a request is made.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Middleware wraps a CoreLLM with additional behavior.
type Middleware func(CoreLLM) CoreLLM

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

// ClientConfig configures a Client.
type ClientConfig struct {
	// APIKey authenticates against the provider.
	APIKey string

	// Model is the provider-specific model name.
	Model string

	// BaseURL overrides the provider endpoint. Empty uses the default.
	BaseURL string

	// Timeout bounds the provider's HTTP client. Zero leaves the SDK default.
	Timeout time.Duration

	// TokenEstimator replaces the character heuristic when set.
	TokenEstimator TokenEstimator

	// Middleware is applied so that the first entry is the outermost layer.
	Middleware []Middleware
}

var (
	factoriesMu sync.RWMutex
	factories   = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient.
// Registering the same name twice replaces the earlier factory.
func RegisterProviderFactory(provider string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[provider] = factory
}

// RegisteredProviders lists the provider names known to NewClient, sorted.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ ports.LLMClient = (*Client)(nil)

// Client implements ports.LLMClient on top of a middleware-wrapped CoreLLM.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

// NewClient builds a Client for the named provider.
func NewClient(provider string, cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	factoriesMu.RLock()
	factory, ok := factories[provider]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	core, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}
	return NewClientFromCore(core, cfg.TokenEstimator, cfg.Middleware...), nil
}

// NewClientFromCore wraps an existing CoreLLM. A nil estimator falls back to
// the character heuristic.
func NewClientFromCore(core CoreLLM, estimator TokenEstimator, middleware ...Middleware) *Client {
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}
	if estimator == nil {
		estimator = charEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Complete implements ports.LLMClient.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	resp, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return resp, err
}

// CompleteWithUsage is Complete with token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens implements ports.LLMClient.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel implements ports.LLMClient.
func (c *Client) GetModel() string { return c.core.GetModel() }

// charEstimator assumes roughly four characters per token.
type charEstimator struct{}

func (charEstimator) EstimateTokens(text string) int { return estimateTokens(text) }

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
