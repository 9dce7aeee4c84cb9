package llm

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ahrav/go-tribunal/internal/ports"
)

// ProviderConfig describes one provider known to a Registry.
type ProviderConfig struct {
	// Type is the factory name passed to NewClient.
	Type string

	// EnvVar holds the API key.
	EnvVar string

	// DefaultModel is used when a spec names only the provider.
	DefaultModel string

	// SupportedModels restricts the accepted models. Empty accepts any.
	SupportedModels []string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// Middleware is applied inside the registry-wide middleware.
	Middleware []Middleware
}

// DefaultProviders covers the providers with a built-in factory.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
		SupportedModels: []string{
			"gpt-4.1", "gpt-4.1-mini", "gpt-4.1-nano",
			"gpt-4o", "gpt-4o-mini",
			"o4-mini", "o3", "o3-mini",
		},
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
		SupportedModels: []string{
			"claude-4-opus", "claude-4-sonnet", "claude-4.1-opus",
			"claude-3.7-sonnet", "claude-3.5-sonnet", "claude-3.5-haiku",
		},
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
		SupportedModels: []string{
			"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite",
			"gemini-2.0-flash", "gemini-2.0-flash-lite",
		},
	},
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Providers defaults to DefaultProviders.
	Providers map[string]ProviderConfig

	// Timeout is passed to every provider's HTTP client.
	Timeout time.Duration

	// Middleware wraps every client; the first entry is outermost. The
	// function receives the provider name so per-provider labels can be set.
	Middleware func(provider string) []Middleware

	// LookupEnv reads API keys. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Registry creates and caches one client per "provider/model" spec.
type Registry struct {
	cfg     RegistryConfig
	mu      sync.RWMutex
	clients map[string]ports.LLMClient
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Providers == nil {
		cfg.Providers = DefaultProviders
	}
	if cfg.LookupEnv == nil {
		cfg.LookupEnv = os.LookupEnv
	}
	return &Registry{cfg: cfg, clients: map[string]ports.LLMClient{}}
}

// GetClient returns the client for spec, creating it on first use. A spec is
// "provider", "provider/model" or "provider/model@version"; the version pins
// a dated snapshot and is appended to the model name with a dash.
func (r *Registry) GetClient(spec string) (ports.LLMClient, error) {
	provider, model, err := r.parseSpec(spec)
	if err != nil {
		return nil, err
	}
	key := provider + "/" + model

	r.mu.RLock()
	c, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	c, err = r.create(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = c
	return c, nil
}

// Register installs client under spec, replacing any cached client.
func (r *Registry) Register(spec string, client ports.LLMClient) error {
	provider, model, err := r.parseSpec(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider+"/"+model] = client
	return nil
}

func (r *Registry) parseSpec(spec string) (provider, model string, err error) {
	if spec == "" {
		return "", "", fmt.Errorf("model spec cannot be empty")
	}
	provider, model, _ = strings.Cut(spec, "/")
	pc, ok := r.cfg.Providers[provider]
	if !ok {
		return "", "", fmt.Errorf("unknown provider %q", provider)
	}
	if model == "" {
		model = pc.DefaultModel
	}

	base, version, pinned := strings.Cut(model, "@")
	if len(pc.SupportedModels) > 0 && !slices.Contains(pc.SupportedModels, base) {
		return "", "", fmt.Errorf("model %q is not supported by provider %q", base, provider)
	}
	if pinned {
		if version == "" {
			return "", "", fmt.Errorf("model %q has an empty version", model)
		}
		model = base + "-" + version
	}
	return provider, model, nil
}

func (r *Registry) create(provider, model string) (ports.LLMClient, error) {
	pc := r.cfg.Providers[provider]
	key, ok := r.cfg.LookupEnv(pc.EnvVar)
	if !ok || key == "" {
		return nil, fmt.Errorf("%s is not set for provider %q", pc.EnvVar, provider)
	}

	var mw []Middleware
	if r.cfg.Middleware != nil {
		mw = append(mw, r.cfg.Middleware(provider)...)
	}
	mw = append(mw, pc.Middleware...)

	return NewClient(pc.Type, ClientConfig{
		APIKey:     key,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.cfg.Timeout,
		Middleware: mw,
	})
}
