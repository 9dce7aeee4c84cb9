package application

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ahrav/go-tribunal/infrastructure/judging"
	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// warningDimensions is how many of the weakest dimensions a failure
// warning names.
const warningDimensions = 3

// RefinementController drives the bounded fix, reconcile and rescore loop.
// Attempts run strictly in sequence; each starts from the previous
// attempt's document whether or not its score improved.
type RefinementController struct {
	scorer     ports.Scorer
	deployer   ports.FixDeployer
	reconciler ports.Reconciler
	critiques  *judging.CritiqueAggregator
	rubric     *domain.Rubric
	cfg        RefinementSection
	events     ports.EventSink
}

// NewRefinementController creates a RefinementController. Zero-valued
// config fields take their defaults.
func NewRefinementController(
	scorer ports.Scorer,
	deployer ports.FixDeployer,
	reconciler ports.Reconciler,
	critiques *judging.CritiqueAggregator,
	rubric *domain.Rubric,
	cfg RefinementSection,
	events ports.EventSink,
) (*RefinementController, error) {
	if scorer == nil || deployer == nil || reconciler == nil {
		return nil, fmt.Errorf("%w: refinement needs a scorer, a fix deployer and a reconciler",
			domain.ErrInvalidConfiguration)
	}
	if rubric == nil {
		return nil, judging.ErrNilRubric
	}
	if critiques == nil {
		c, err := judging.NewCritiqueAggregator(rubric, 0, 0)
		if err != nil {
			return nil, err
		}
		critiques = c
	}
	if cfg.TargetScore <= 0 {
		cfg.TargetScore = DefaultTargetScore
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if events == nil {
		events = ports.NopEventSink{}
	}
	return &RefinementController{
		scorer:     scorer,
		deployer:   deployer,
		reconciler: reconciler,
		critiques:  critiques,
		rubric:     rubric,
		cfg:        cfg,
		events:     events,
	}, nil
}

// Refine improves document until its score reaches the target or the loop
// gives up. Falling short is reported through Success and WarningReason,
// not as an error. An error is returned only when a step cannot complete;
// the partial result is returned alongside it and its FinalScore belongs
// to FinalDocument.
func (c *RefinementController) Refine(
	ctx context.Context,
	document string,
	initial domain.FinalScore,
) (*domain.RefinementResult, error) {
	if document == "" {
		return nil, domain.ErrEmptyDocument
	}
	start := time.Now()
	res := &domain.RefinementResult{
		FinalDocument: document,
		FinalScore:    initial,
		Attempts:      []domain.RefinementAttempt{},
	}

	if initial.OverallScore >= c.cfg.TargetScore {
		res.StopReason = domain.StopAlreadyPassing
		return c.finish(ctx, res, start), nil
	}

	current, score := document, initial
	for n := 1; n <= c.cfg.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			res.StopReason = domain.StopCancelled
			c.finish(ctx, res, start)
			return res, err
		}

		step, err := c.attempt(ctx, n, current, score)
		res.Attempts = append(res.Attempts, step.record)
		c.reportAttempt(ctx, step.record)

		if err != nil {
			res.StopReason = step.stop
			c.finish(ctx, res, start)
			return res, err
		}
		if step.record.Rescored {
			current, score = step.document, step.score
			res.FinalDocument, res.FinalScore = current, score
		}
		if step.stop != "" {
			res.StopReason = step.stop
			break
		}
	}
	if res.StopReason == "" {
		res.StopReason = domain.StopMaxAttempts
	}
	return c.finish(ctx, res, start), nil
}

// attemptStep is the outcome of one loop iteration.
type attemptStep struct {
	record   domain.RefinementAttempt
	document string
	score    domain.FinalScore
	stop     domain.StopReason
}

func (c *RefinementController) attempt(
	ctx context.Context,
	n int,
	document string,
	score domain.FinalScore,
) (attemptStep, error) {
	start := time.Now()
	targets := c.targets(score)
	step := attemptStep{
		record: domain.RefinementAttempt{
			AttemptNumber:    n,
			TargetDimensions: make([]string, 0, len(targets)),
			ScoreBefore:      score.OverallScore,
			ScoreAfter:       score.OverallScore,
		},
	}
	finish := func(outcome domain.RefinementState, stop domain.StopReason) {
		step.record.Outcome = outcome
		step.record.Duration = time.Since(start)
		step.stop = stop
	}

	// Deploying.
	report := c.critiques.Aggregate(score.AllVerdicts())
	reqs := make([]domain.FixRequest, 0, len(targets))
	for _, t := range targets {
		dim, _ := c.rubric.Dimension(t.Dimension)
		step.record.TargetDimensions = append(step.record.TargetDimensions, t.Dimension)
		reqs = append(reqs, domain.FixRequest{
			Document:     document,
			Dimension:    dim,
			CurrentScore: t.Score,
			TargetScore:  c.cfg.TargetScore,
			Critique:     dimensionCritique(score, t.Dimension, report),
			Issues:       report.ForDimension(t.Dimension),
		})
	}

	deployment, err := c.deployer.Deploy(ctx, document, reqs)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			finish(domain.StateAbandon, domain.StopCancelled)
			return step, ctxErr
		}
		c.events.Emit(ctx, domain.NewEvent(domain.EventFixerFailed, domain.LevelWarn,
			"fixer deployment failed", map[string]any{"attempt": n, "error": err.Error()}))
		deployment = &domain.FixDeployment{}
	}
	step.record.FixersDeployed = deployment.FixersDeployed
	step.record.EditsProposed = len(deployment.Edits)
	if len(deployment.Edits) == 0 {
		finish(domain.StateAbandon, domain.StopNoEditsProposed)
		return step, nil
	}

	// Reconciling.
	rec, err := c.reconciler.Reconcile(ctx, document, deployment.Edits)
	if err != nil {
		finish(domain.StateAbandon, domain.StopReconcileFailed)
		return step, fmt.Errorf("failed to reconcile edits: %w", err)
	}
	step.record.EditsApplied = len(rec.Applied)
	step.record.EditsSkipped = len(rec.Skipped)
	if len(rec.Applied) == 0 {
		finish(domain.StateAbandon, domain.StopNoEditsApplied)
		return step, nil
	}

	// Rescoring.
	rescored, err := c.scorer.Score(ctx, rec.RevisedDocument)
	if err != nil {
		if ctx.Err() != nil {
			finish(domain.StateAbandon, domain.StopCancelled)
			return step, fmt.Errorf("failed to rescore revised document: %w", err)
		}
		finish(domain.StateAbandon, domain.StopRescoreFailed)
		return step, fmt.Errorf("failed to rescore revised document: %w", err)
	}
	step.document, step.score = rec.RevisedDocument, rescored
	step.record.Rescored = true
	step.record.ScoreAfter = rescored.OverallScore
	step.record.DimensionDeltas = dimensionDeltas(score, rescored)

	switch {
	case rescored.OverallScore >= c.cfg.TargetScore:
		finish(domain.StateSucceed, domain.StopTargetReached)
	case n >= c.cfg.MaxAttempts:
		finish(domain.StateAbandon, domain.StopMaxAttempts)
	default:
		finish(domain.StateContinue, "")
	}
	return step, nil
}

// targets returns the dimensions scoring below the target, weakest first.
// Ties keep rubric order. When rounding leaves the overall score short with
// every dimension at target, the weakest dimensions are targeted instead.
func (c *RefinementController) targets(score domain.FinalScore) []domain.DimensionResult {
	var under []domain.DimensionResult
	for _, d := range score.Breakdown {
		if d.Score < c.cfg.TargetScore {
			under = append(under, d)
		}
	}
	if len(under) == 0 {
		return score.LowestDimensions(warningDimensions)
	}
	slices.SortStableFunc(under, func(a, b domain.DimensionResult) int { return cmp.Compare(a.Score, b.Score) })
	return under
}

func (c *RefinementController) finish(ctx context.Context, res *domain.RefinementResult, start time.Time) *domain.RefinementResult {
	res.TotalDuration = time.Since(start)
	res.Success = res.FinalScore.OverallScore >= c.cfg.TargetScore
	if !res.Success {
		res.WarningReason = c.warning(res)
	}

	level := domain.LevelInfo
	if !res.Success {
		level = domain.LevelWarn
	}
	c.events.Emit(ctx, domain.NewEvent(domain.EventRefinementFinished, level,
		fmt.Sprintf("refinement finished: %s", res.StopReason),
		map[string]any{
			"success":       res.Success,
			"stop_reason":   string(res.StopReason),
			"attempts":      len(res.Attempts),
			"final_score":   res.FinalScore.OverallScore,
			"target_score":  c.cfg.TargetScore,
			"duration_ms":   res.TotalDuration.Milliseconds(),
			"warning":       res.WarningReason,
			"document_size": len(res.FinalDocument),
		}))
	return res
}

func (c *RefinementController) warning(res *domain.RefinementResult) string {
	lowest := res.FinalScore.LowestDimensions(warningDimensions)
	parts := make([]string, 0, len(lowest))
	for _, d := range lowest {
		parts = append(parts, fmt.Sprintf("%s %.1f", d.Dimension, d.Score))
	}
	return fmt.Sprintf("score %.1f below target %.1f after %d attempt(s) (%s); weakest dimensions: %s",
		res.FinalScore.OverallScore, c.cfg.TargetScore, len(res.Attempts), stopDescription(res.StopReason),
		strings.Join(parts, ", "))
}

func (c *RefinementController) reportAttempt(ctx context.Context, a domain.RefinementAttempt) {
	c.events.Emit(ctx, domain.NewEvent(domain.EventRefinementAttempt, domain.LevelInfo,
		fmt.Sprintf("refinement attempt %d: %.1f → %.1f", a.AttemptNumber, a.ScoreBefore, a.ScoreAfter),
		map[string]any{
			"attempt":         a.AttemptNumber,
			"targets":         a.TargetDimensions,
			"fixers_deployed": a.FixersDeployed,
			"edits_proposed":  a.EditsProposed,
			"edits_applied":   a.EditsApplied,
			"edits_skipped":   a.EditsSkipped,
			"outcome":         string(a.Outcome),
			"duration_ms":     a.Duration.Milliseconds(),
		}))
}

func stopDescription(r domain.StopReason) string {
	switch r {
	case domain.StopNoEditsProposed:
		return "fixers proposed no edits"
	case domain.StopNoEditsApplied:
		return "no proposed edit could be applied"
	case domain.StopReconcileFailed:
		return "edits could not be reconciled"
	case domain.StopRescoreFailed:
		return "the revised document could not be scored"
	case domain.StopMaxAttempts:
		return "attempts exhausted"
	case domain.StopCancelled:
		return "refinement was cancelled"
	default:
		return string(r)
	}
}

// dimensionCritique collects every judge's reasoning on dimension followed
// by the ranked issues raised against it.
func dimensionCritique(score domain.FinalScore, dimension string, report domain.CritiqueReport) string {
	var b strings.Builder
	for _, v := range score.AllVerdicts() {
		ds, ok := v.DimensionScore(dimension)
		if !ok || ds.Reasoning == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(v.Role)), ds.Reasoning)
	}
	for _, is := range report.ForDimension(dimension) {
		fmt.Fprintf(&b, "- (%s) %s", is.Priority, is.Issue)
		if is.SuggestedFix != "" {
			fmt.Fprintf(&b, " Fix: %s", is.SuggestedFix)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func dimensionDeltas(before, after domain.FinalScore) []domain.DimensionDelta {
	deltas := make([]domain.DimensionDelta, 0, len(after.Breakdown))
	for _, d := range after.Breakdown {
		prev, _ := before.DimensionScore(d.Dimension)
		deltas = append(deltas, domain.DimensionDelta{
			Dimension: d.Dimension,
			Before:    prev,
			After:     d.Score,
			Delta:     domain.Round1(d.Score - prev),
		})
	}
	return deltas
}
