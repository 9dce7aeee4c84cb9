package judging

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the number of extra attempts after the first.
	DefaultMaxRetries = 2
	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = 500 * time.Millisecond
	// DefaultMaxDelay caps the exponential backoff.
	DefaultMaxDelay = 3 * time.Second
	// DefaultMaxJitter is the upper bound of the random delay added to each backoff.
	DefaultMaxJitter = 200 * time.Millisecond
)

// RetryPolicy controls how a judge runner retries failed oracle calls.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" validate:"min=0,max=10"`

	// BaseDelay is the delay before the first retry; it doubles per retry.
	BaseDelay time.Duration `yaml:"base_delay" validate:"min=0"`

	// MaxDelay caps the backoff before jitter is added.
	MaxDelay time.Duration `yaml:"max_delay" validate:"min=0"`

	// MaxJitter bounds the random delay added on top of the backoff.
	MaxJitter time.Duration `yaml:"max_jitter" validate:"min=0"`
}

// DefaultRetryPolicy returns 2 retries with 500ms base delay doubling to a
// 3s cap plus up to 200ms of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
		MaxJitter:  DefaultMaxJitter,
	}
}

// Backoff returns the delay before the given 1-based retry, excluding jitter.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	delay := p.BaseDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) jitter() time.Duration {
	if p.MaxJitter <= 0 {
		return 0
	}
	//nolint:gosec // G404: math/rand is acceptable for retry jitter timing.
	return time.Duration(rand.Int64N(int64(p.MaxJitter) + 1))
}

// JudgeOutcome is a successful judge run.
type JudgeOutcome struct {
	// Verdict is the validated verdict.
	Verdict domain.Verdict

	// Resolution is the oracle's dispute resolution text, if any.
	Resolution string

	// Attempts records every oracle call made, including failed ones.
	Attempts []domain.JudgeAttempt

	// Duration is the wall time across all attempts and backoff.
	Duration time.Duration
}

// RunnerOption configures a JudgeRunner.
type RunnerOption func(*JudgeRunner)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) RunnerOption {
	return func(r *JudgeRunner) { r.policy = p }
}

// WithRunnerEvents sets the sink for retry and failure events.
func WithRunnerEvents(sink ports.EventSink) RunnerOption {
	return func(r *JudgeRunner) { r.events = sink }
}

// WithRunnerClock overrides the verdict timestamp source.
func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *JudgeRunner) { r.now = now }
}

// JudgeRunner invokes the scoring oracle under one persona and turns the
// response into a validated Verdict, retrying transient and malformed
// responses. A runner holds no per-call state and is safe for concurrent use.
type JudgeRunner struct {
	oracle ports.ScoringOracle
	rubric *domain.Rubric
	policy RetryPolicy
	events ports.EventSink
	now    func() time.Time
}

// NewJudgeRunner creates a JudgeRunner.
func NewJudgeRunner(oracle ports.ScoringOracle, rubric *domain.Rubric, opts ...RunnerOption) (*JudgeRunner, error) {
	if oracle == nil {
		return nil, ErrNilOracle
	}
	if rubric == nil {
		return nil, ErrNilRubric
	}
	r := &JudgeRunner{
		oracle: oracle,
		rubric: rubric,
		policy: DefaultRetryPolicy(),
		events: ports.NopEventSink{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rubric returns the rubric verdicts are validated against.
func (r *JudgeRunner) Rubric() *domain.Rubric { return r.rubric }

// Run scores document under persona in the initial phase.
func (r *JudgeRunner) Run(ctx context.Context, document string, persona domain.Persona) (*JudgeOutcome, error) {
	return r.Judge(ctx, persona.BuildJudgmentRequest(document, r.rubric))
}

// Judge executes req with retries.
//
// Transport failures are retried up to MaxRetries times with exponential
// backoff. A malformed response is retried once with Strict set; a second
// malformed response fails immediately. Both kinds of retry share the
// MaxRetries budget. Permanent failure returns a *domain.JudgeFailedError.
func (r *JudgeRunner) Judge(ctx context.Context, req domain.JudgmentRequest) (*JudgeOutcome, error) {
	if req.Rubric == nil {
		req.Rubric = r.rubric
	}
	role := req.Persona.Role

	start := time.Now()
	var (
		attempts    []domain.JudgeAttempt
		lastErr     error
		retries     int
		parseFailed bool
	)
	for attempt := 1; ; attempt++ {
		callStart := time.Now()
		outcome, err := r.attempt(ctx, req, attempt)
		attempts = append(attempts, domain.JudgeAttempt{
			Attempt:  attempt,
			Strict:   req.Strict,
			Duration: time.Since(callStart),
			Error:    errString(err),
		})
		if err == nil {
			outcome.Attempts = attempts
			outcome.Duration = time.Since(start)
			return outcome, nil
		}
		lastErr = err

		var perr *domain.OracleParseError
		isParse := errors.As(err, &perr)
		if isParse && parseFailed {
			break
		}
		if retries >= r.policy.MaxRetries {
			break
		}
		if isParse {
			parseFailed = true
			req.Strict = true
		}
		retries++

		delay := r.policy.Backoff(retries) + r.policy.jitter()
		emit(ctx, r.events, domain.EventJudgeRetry, domain.LevelWarn, "retrying judge", map[string]any{
			"role":    string(role),
			"attempt": attempt,
			"strict":  req.Strict,
			"delay":   delay.String(),
			"error":   err.Error(),
		})

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			lastErr = domain.NewOracleInvocationError(role, attempt, ctx.Err())
			return nil, r.fail(ctx, role, attempts, lastErr)
		case <-t.C:
		}
	}

	return nil, r.fail(ctx, role, attempts, lastErr)
}

func (r *JudgeRunner) fail(ctx context.Context, role domain.JudgeRole, attempts []domain.JudgeAttempt, lastErr error) error {
	emit(ctx, r.events, domain.EventJudgeFailed, domain.LevelError, "judge failed permanently", map[string]any{
		"role":     string(role),
		"attempts": len(attempts),
		"error":    lastErr.Error(),
	})
	return domain.NewJudgeFailedError(role, len(attempts), lastErr, attempts)
}

// attempt makes one oracle call and validates the response.
func (r *JudgeRunner) attempt(ctx context.Context, req domain.JudgmentRequest, attempt int) (*JudgeOutcome, error) {
	role := req.Persona.Role
	resp, err := r.oracle.ScoreDocument(ctx, req)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidResponse) {
			return nil, domain.NewOracleParseError(role, attempt, req.Strict, "undecodable response", err)
		}
		return nil, domain.NewOracleInvocationError(role, attempt, err)
	}

	verdict, err := r.toVerdict(req, resp)
	if err != nil {
		return nil, domain.NewOracleParseError(role, attempt, req.Strict, "schema violation", err)
	}
	return &JudgeOutcome{Verdict: verdict, Resolution: resp.Resolution}, nil
}

// toVerdict validates resp against the schema and the rubric.
func (r *JudgeRunner) toVerdict(req domain.JudgmentRequest, resp domain.OracleResponse) (domain.Verdict, error) {
	if err := validate.Struct(resp); err != nil {
		return domain.Verdict{}, fmt.Errorf("response structure: %w", err)
	}

	scores := make([]domain.DimensionScore, len(resp.Dimensions))
	for i, d := range resp.Dimensions {
		scores[i] = domain.DimensionScore{
			Dimension: d.Dimension,
			Score:     *d.Score,
			Reasoning: d.Reasoning,
			Issues:    d.Issues,
		}
	}

	issues := make([]domain.Issue, 0, len(resp.Issues))
	for _, is := range resp.Issues {
		if !req.Rubric.Has(is.Dimension) {
			return domain.Verdict{}, fmt.Errorf("issue references unknown dimension %q", is.Dimension)
		}
		issues = append(issues, domain.Issue{
			Dimension:    is.Dimension,
			Severity:     domain.Severity(is.Severity),
			Description:  is.Description,
			Quote:        is.Quote,
			SuggestedFix: is.SuggestedFix,
		})
	}

	return domain.NewVerdict(req.Rubric, domain.VerdictInput{
		Role:       req.Persona.Role,
		Phase:      req.Phase,
		Scores:     scores,
		Critique:   resp.Critique,
		Issues:     issues,
		Confidence: *resp.Confidence,
		Timestamp:  r.now(),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
