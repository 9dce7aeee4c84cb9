package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-tribunal/infrastructure/judging"
	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// Refinement defaults.
const (
	DefaultTargetScore = 8.0
	DefaultMaxAttempts = 3
)

// EngineConfig is the complete configuration of the scoring and refinement
// engine. Zero-valued sections are filled from DefaultEngineConfig when the
// configuration is parsed.
type EngineConfig struct {
	// Rubric overrides the default seven-dimension rubric when non-empty.
	Rubric []domain.ScoringDimension `yaml:"rubric" validate:"omitempty,dive"`

	Panel        PanelSection        `yaml:"panel"`
	Judge        judging.RetryPolicy `yaml:"judge"`
	Disagreement DisagreementSection `yaml:"disagreement"`
	Discussion   DiscussionSection   `yaml:"discussion"`
	Tiebreaker   TiebreakerSection   `yaml:"tiebreaker"`
	Aggregation  AggregationSection  `yaml:"aggregation"`
	Critique     CritiqueSection     `yaml:"critique"`
	Refinement   RefinementSection   `yaml:"refinement"`
	Fixers       FixerSection        `yaml:"fixers"`
	LLM          LLMSection          `yaml:"llm"`
	Logging      LoggingSection      `yaml:"logging"`
	Cache        CacheSection        `yaml:"cache"`
}

// PanelSection configures the primary judge panel.
type PanelSection struct {
	// Policy is "strict" (any failure aborts) or "quorum".
	Policy string `yaml:"policy" validate:"failpolicy"`
	// MinJudges is the quorum size; it cannot exceed the panel size.
	MinJudges int `yaml:"min_judges" validate:"min=1,max=3"`
	// Budget is the soft wall-time target for a panel round.
	Budget time.Duration `yaml:"budget" validate:"min=0"`
}

// DisagreementSection configures the disagreement detector.
type DisagreementSection struct {
	// Threshold is the exclusive spread above which a dimension is disputed.
	Threshold float64 `yaml:"threshold" validate:"gt=0,lte=10"`
}

// DiscussionSection configures the peer discussion round.
type DiscussionSection struct {
	Enabled     bool          `yaml:"enabled"`
	MaxRevision float64       `yaml:"max_revision" validate:"gt=0,lte=10"`
	Policy      string        `yaml:"policy" validate:"failpolicy"`
	MinJudges   int           `yaml:"min_judges" validate:"min=1,max=3"`
	Budget      time.Duration `yaml:"budget" validate:"min=0"`
}

// TiebreakerSection configures the arbiter.
type TiebreakerSection struct {
	Enabled bool `yaml:"enabled"`
}

// AggregationSection configures final score aggregation.
type AggregationSection struct {
	ArbiterWeight   float64 `yaml:"arbiter_weight" validate:"gt=0,lte=10"`
	DegradedPenalty float64 `yaml:"degraded_penalty" validate:"min=0,max=1"`
}

// CritiqueSection configures issue deduplication and ranking.
type CritiqueSection struct {
	Similarity float64 `yaml:"similarity" validate:"gt=0,lt=1"`
	MaxIssues  int     `yaml:"max_issues" validate:"min=1,max=50"`
}

// RefinementSection configures the refinement loop.
type RefinementSection struct {
	TargetScore float64 `yaml:"target_score" validate:"gt=0,lte=10"`
	MaxAttempts int     `yaml:"max_attempts" validate:"min=1,max=10"`
}

// FixerSection configures the fixer fleet.
type FixerSection struct {
	// Workers bounds the number of fixers running at once.
	Workers int `yaml:"workers" validate:"min=1,max=64"`
	// Timeout bounds a single fixer call; zero disables it.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// LLMSection configures the LLM client shared by oracle and fixers.
type LLMSection struct {
	// Model is "provider/model", for example "anthropic/claude-4-sonnet".
	Model string `yaml:"model" validate:"required,modelformat"`
	// FixerModel optionally routes fixers to a different model.
	FixerModel  string        `yaml:"fixer_model" validate:"omitempty,modelformat"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Temperature float64       `yaml:"temperature" validate:"min=0,max=1"`
	MaxTokens   int           `yaml:"max_tokens" validate:"min=1,max=200000"`
	Timeout     time.Duration `yaml:"timeout" validate:"min=0"`

	RateLimit      RateLimitSection      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerSection `yaml:"circuit_breaker"`
	Budget         BudgetSection         `yaml:"budget"`
}

// RateLimitSection configures the token bucket in front of the provider.
type RateLimitSection struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"min=0"`
	Burst             int     `yaml:"burst" validate:"min=0"`
}

// CircuitBreakerSection configures the provider circuit breaker.
type CircuitBreakerSection struct {
	MaxFailures int           `yaml:"max_failures" validate:"min=0"`
	Cooldown    time.Duration `yaml:"cooldown" validate:"min=0"`
}

// BudgetSection caps LLM usage per process. Zero means unlimited.
type BudgetSection struct {
	MaxCalls  int64 `yaml:"max_calls" validate:"min=0"`
	MaxTokens int64 `yaml:"max_tokens" validate:"min=0"`
}

// LoggingSection configures the event sink.
type LoggingSection struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// CacheSection configures the initial-round oracle cache.
type CacheSection struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size" validate:"min=1,max=100000"`
	TTL     time.Duration `yaml:"ttl" validate:"min=0"`
}

// DefaultEngineConfig returns the configuration the engine runs with when
// nothing is overridden.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Panel: PanelSection{
			Policy:    string(judging.PolicyStrict),
			MinJudges: 2,
			Budget:    judging.DefaultPanelBudget,
		},
		Judge:        judging.DefaultRetryPolicy(),
		Disagreement: DisagreementSection{Threshold: judging.DefaultDisagreementThreshold},
		Discussion: DiscussionSection{
			Enabled:     true,
			MaxRevision: judging.DefaultMaxRevision,
			Policy:      string(judging.PolicyStrict),
			MinJudges:   2,
			Budget:      judging.DefaultDiscussionBudget,
		},
		Tiebreaker: TiebreakerSection{Enabled: true},
		Aggregation: AggregationSection{
			ArbiterWeight:   judging.DefaultArbiterWeight,
			DegradedPenalty: judging.DefaultDegradedPenalty,
		},
		Critique: CritiqueSection{
			Similarity: judging.DefaultSimilarityThreshold,
			MaxIssues:  judging.DefaultMaxIssues,
		},
		Refinement: RefinementSection{
			TargetScore: DefaultTargetScore,
			MaxAttempts: DefaultMaxAttempts,
		},
		Fixers: FixerSection{Workers: 4, Timeout: 60 * time.Second},
		LLM: LLMSection{
			Model:          "anthropic/claude-4-sonnet",
			Temperature:    0.2,
			MaxTokens:      4096,
			Timeout:        45 * time.Second,
			RateLimit:      RateLimitSection{RequestsPerSecond: 5, Burst: 10},
			CircuitBreaker: CircuitBreakerSection{MaxFailures: 5, Cooldown: 30 * time.Second},
		},
		Logging: LoggingSection{Level: "info", Format: "json"},
		Cache:   CacheSection{Enabled: false, Size: 256, TTL: 15 * time.Minute},
	}
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ports.NewConfigError(path, ports.ErrConfigNotFound)
		}
		return nil, ports.NewConfigError(path, fmt.Errorf("failed to read config: %w", err))
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultEngineConfig and validates the
// result. Unknown fields are rejected so typos do not pass silently.
func ParseConfig(data []byte) (*EngineConfig, error) {
	cfg := DefaultEngineConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ports.NewConfigError("yaml", fmt.Errorf("YAML decode failed: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules tags cannot
// express.
func (c *EngineConfig) Validate() error {
	v, err := newConfigValidator()
	if err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return ports.NewConfigError("struct", fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err))
	}
	if err := c.validateSemantics(); err != nil {
		return ports.NewConfigError("semantics", fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err))
	}
	return nil
}

func (c *EngineConfig) validateSemantics() error {
	if len(c.Rubric) > 0 {
		if _, err := domain.NewRubric(c.Rubric); err != nil {
			return err
		}
	}
	panelSize := len(domain.PrimaryPanel())
	if c.Panel.MinJudges > panelSize {
		return fmt.Errorf("panel.min_judges %d exceeds panel size %d", c.Panel.MinJudges, panelSize)
	}
	if c.Discussion.MinJudges > panelSize {
		return fmt.Errorf("discussion.min_judges %d exceeds panel size %d", c.Discussion.MinJudges, panelSize)
	}
	if c.LLM.CircuitBreaker.MaxFailures > 0 && c.LLM.CircuitBreaker.Cooldown <= 0 {
		return errors.New("llm.circuit_breaker.cooldown must be positive when max_failures is set")
	}
	return nil
}

// BuildRubric returns the configured rubric, or the default one when the
// configuration does not override it.
func (c *EngineConfig) BuildRubric() (*domain.Rubric, error) {
	if len(c.Rubric) == 0 {
		return domain.DefaultRubric(), nil
	}
	return domain.NewRubric(c.Rubric)
}

// PanelConfig converts the panel section for the judging package.
func (c *EngineConfig) PanelConfig() judging.PanelConfig {
	return judging.PanelConfig{
		Personas:  domain.PrimaryPanel(),
		Policy:    judging.FailurePolicy(c.Panel.Policy),
		MinJudges: c.Panel.MinJudges,
		Budget:    c.Panel.Budget,
	}
}

// DiscussionConfig converts the discussion section for the judging package.
func (c *EngineConfig) DiscussionConfig() judging.DiscussionConfig {
	return judging.DiscussionConfig{
		MaxRevision: c.Discussion.MaxRevision,
		Policy:      judging.FailurePolicy(c.Discussion.Policy),
		MinJudges:   c.Discussion.MinJudges,
		Budget:      c.Discussion.Budget,
	}
}

// newConfigValidator returns a validator with the engine's custom tags
// registered.
func newConfigValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, err
	}
	return v, nil
}
