package main

import (
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-tribunal/infrastructure/cache"
	"github.com/ahrav/go-tribunal/infrastructure/fixers"
	"github.com/ahrav/go-tribunal/infrastructure/llm"
	"github.com/ahrav/go-tribunal/infrastructure/middleware"
	"github.com/ahrav/go-tribunal/infrastructure/observability"
	"github.com/ahrav/go-tribunal/infrastructure/reconcile"
	"github.com/ahrav/go-tribunal/internal/application"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// engine holds the wired components behind one CLI invocation.
type engine struct {
	evaluator *application.Evaluator
	refiner   *application.RefinementController
	fleet     *fixers.Fleet
	sink      *observability.ZapSink
	metrics   *prometheus.Registry
	budget    *middleware.BudgetManager
	cache     *cache.CachingOracle
}

// engineDeps are the process-level seams tests replace.
type engineDeps struct {
	lookupEnv   func(string) (string, bool)
	newRegistry func(llm.RegistryConfig) *llm.Registry
}

// buildEngine wires every component cfg describes. Logs go to logOut.
func buildEngine(cfg *application.EngineConfig, deps engineDeps, logOut io.Writer) (*engine, error) {
	sink, err := observability.NewZapSink(observability.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOut,
	})
	if err != nil {
		return nil, err
	}

	e := &engine{sink: sink, metrics: prometheus.NewRegistry()}
	metrics := middleware.NewPrometheusMetrics(e.metrics)

	if b := cfg.LLM.Budget; b.MaxCalls > 0 || b.MaxTokens > 0 {
		e.budget, err = middleware.NewBudgetManager(
			middleware.Budget{MaxCalls: b.MaxCalls, MaxTokens: b.MaxTokens},
			"llm",
			middleware.NewOTelBudgetObserver(metrics, "llm"),
		)
		if err != nil {
			return nil, err
		}
	}

	registry, err := e.newRegistry(cfg, deps, metrics)
	if err != nil {
		return nil, err
	}

	judgeClient, err := registry.GetClient(cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("judge client: %w", err)
	}
	fixerSpec := cfg.LLM.FixerModel
	if fixerSpec == "" {
		fixerSpec = cfg.LLM.Model
	}
	fixerClient, err := registry.GetClient(fixerSpec)
	if err != nil {
		return nil, fmt.Errorf("fixer client: %w", err)
	}

	var oracle ports.ScoringOracle = llm.NewOracle(judgeClient,
		llm.WithOracleTemperature(cfg.LLM.Temperature),
		llm.WithOracleMaxTokens(cfg.LLM.MaxTokens),
	)
	if cfg.Cache.Enabled {
		store, err := cache.NewLRUStore(cfg.Cache.Size)
		if err != nil {
			return nil, err
		}
		e.cache = cache.NewCachingOracle(oracle, store, cfg.Cache.TTL, cache.WithNamespace(cfg.LLM.Model))
		oracle = e.cache
	}

	e.evaluator, err = application.NewEvaluator(cfg, oracle,
		application.WithEvaluatorEvents(sink),
		application.WithEvaluatorRecorder(metrics),
	)
	if err != nil {
		return nil, err
	}

	fixer := llm.NewFixer(fixerClient, cfg.LLM.Temperature, cfg.LLM.MaxTokens)
	e.fleet, err = fixers.NewFleet(fixer,
		fixers.Config{Workers: cfg.Fixers.Workers, Timeout: cfg.Fixers.Timeout},
		fixers.WithEventSink(sink),
	)
	if err != nil {
		return nil, err
	}

	e.refiner, err = application.NewRefinementController(
		e.evaluator, e.fleet, reconcile.New(),
		e.evaluator.Critiques(), e.evaluator.Rubric(),
		cfg.Refinement, sink,
	)
	if err != nil {
		e.fleet.Close()
		return nil, err
	}
	return e, nil
}

// newRegistry builds the client registry with the middleware chain from
// cfg. The first middleware listed is outermost.
func (e *engine) newRegistry(cfg *application.EngineConfig, deps engineDeps, metrics *middleware.PrometheusMetrics) (*llm.Registry, error) {
	providers := maps.Clone(llm.DefaultProviders)
	if cfg.LLM.BaseURL != "" {
		name, _, _ := strings.Cut(cfg.LLM.Model, "/")
		pc, ok := providers[name]
		if !ok {
			return nil, fmt.Errorf("unknown provider in %q", cfg.LLM.Model)
		}
		pc.BaseURL = cfg.LLM.BaseURL
		providers[name] = pc
	}

	chain := func(provider string) []llm.Middleware {
		mw := []llm.Middleware{
			llm.TracingMiddleware(provider),
			llm.MetricsMiddleware(metrics, provider),
		}
		if e.budget != nil {
			mw = append(mw, e.budget.Middleware())
		}
		if rl := cfg.LLM.RateLimit; rl.RequestsPerSecond > 0 {
			mw = append(mw, llm.RateLimitMiddleware(rate.Limit(rl.RequestsPerSecond), max(rl.Burst, 1)))
		}
		if cb := cfg.LLM.CircuitBreaker; cb.MaxFailures > 0 {
			mw = append(mw, llm.CircuitBreakerMiddleware(cb.MaxFailures, cb.Cooldown))
		}
		if cfg.LLM.Timeout > 0 {
			mw = append(mw, llm.TimeoutMiddleware(cfg.LLM.Timeout))
		}
		return mw
	}

	rc := llm.RegistryConfig{
		Providers:  providers,
		Timeout:    cfg.LLM.Timeout,
		Middleware: chain,
		LookupEnv:  deps.lookupEnv,
	}
	if deps.newRegistry != nil {
		return deps.newRegistry(rc), nil
	}
	return llm.NewRegistry(rc), nil
}

// close releases pooled resources and flushes logs.
func (e *engine) close() {
	if e.fleet != nil {
		e.fleet.Close()
	}
	_ = e.sink.Sync()
}

// writeMetrics dumps the Prometheus registry in text format to path.
func (e *engine) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, e.metrics); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
