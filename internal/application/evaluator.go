package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-tribunal/infrastructure/judging"
	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

const tracerName = "github.com/ahrav/go-tribunal/internal/application"

var _ ports.Scorer = (*Evaluator)(nil)

// Evaluation is the full record of one evaluation round.
type Evaluation struct {
	// Panel is the initial panel round.
	Panel *judging.PanelResult `json:"-"`

	// InitialDisagreement is measured on the panel verdicts.
	InitialDisagreement domain.DisagreementResult `json:"initial_disagreement"`

	// Discussion is set when a discussion round ran.
	Discussion *judging.DiscussionResult `json:"discussion,omitempty"`

	// Disagreement is the state after the last round, used for aggregation.
	Disagreement domain.DisagreementResult `json:"disagreement"`

	// Tiebreak is set when the arbiter ran.
	Tiebreak *judging.TiebreakResult `json:"tiebreak,omitempty"`

	Final    domain.FinalScore `json:"final"`
	Duration time.Duration     `json:"duration"`
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*evaluatorOptions)

type evaluatorOptions struct {
	events   ports.EventSink
	recorder ports.ExecutionRecorder
	tracer   trace.Tracer
	now      func() time.Time
}

// WithEvaluatorEvents sets the sink for structured events.
func WithEvaluatorEvents(sink ports.EventSink) EvaluatorOption {
	return func(o *evaluatorOptions) { o.events = sink }
}

// WithEvaluatorRecorder sets the execution telemetry recorder.
func WithEvaluatorRecorder(rec ports.ExecutionRecorder) EvaluatorOption {
	return func(o *evaluatorOptions) { o.recorder = rec }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) EvaluatorOption {
	return func(o *evaluatorOptions) { o.tracer = t }
}

// WithEvaluatorClock sets the clock used to stamp final scores.
func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(o *evaluatorOptions) { o.now = now }
}

// Evaluator runs one complete consensus round: panel, disagreement
// detection, an optional discussion round, an optional arbiter tiebreak and
// final aggregation. It holds no per-round state and is safe for concurrent
// use.
type Evaluator struct {
	rubric     *domain.Rubric
	panel      *judging.Panel
	detector   *judging.DisagreementDetector
	discussion *judging.DiscussionFacilitator
	tiebreaker *judging.Tiebreaker
	aggregator *judging.FinalAggregator
	critiques  *judging.CritiqueAggregator

	events   ports.EventSink
	recorder ports.ExecutionRecorder
	tracer   trace.Tracer
}

// NewEvaluator wires the judging components described by cfg around oracle.
func NewEvaluator(cfg *EngineConfig, oracle ports.ScoringOracle, opts ...EvaluatorOption) (*Evaluator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil engine config", domain.ErrInvalidConfiguration)
	}
	o := evaluatorOptions{
		events:   ports.NopEventSink{},
		recorder: ports.NopRecorder{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.events == nil {
		o.events = ports.NopEventSink{}
	}
	if o.recorder == nil {
		o.recorder = ports.NopRecorder{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.now == nil {
		o.now = time.Now
	}

	rubric, err := cfg.BuildRubric()
	if err != nil {
		return nil, fmt.Errorf("failed to build rubric: %w", err)
	}
	runner, err := judging.NewJudgeRunner(oracle, rubric,
		judging.WithRetryPolicy(cfg.Judge),
		judging.WithRunnerEvents(o.events),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge runner: %w", err)
	}
	panel, err := judging.NewPanel(runner, cfg.PanelConfig(), o.events, o.recorder)
	if err != nil {
		return nil, fmt.Errorf("failed to create panel: %w", err)
	}
	detector, err := judging.NewDisagreementDetector(rubric, cfg.Disagreement.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create disagreement detector: %w", err)
	}
	aggregator, err := judging.NewFinalAggregator(rubric,
		judging.WithArbiterWeight(cfg.Aggregation.ArbiterWeight),
		judging.WithDegradedPenalty(cfg.Aggregation.DegradedPenalty),
		judging.WithAggregatorClock(o.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create final aggregator: %w", err)
	}
	critiques, err := judging.NewCritiqueAggregator(rubric, cfg.Critique.Similarity, cfg.Critique.MaxIssues)
	if err != nil {
		return nil, fmt.Errorf("failed to create critique aggregator: %w", err)
	}

	e := &Evaluator{
		rubric:     rubric,
		panel:      panel,
		detector:   detector,
		aggregator: aggregator,
		critiques:  critiques,
		events:     o.events,
		recorder:   o.recorder,
		tracer:     o.tracer,
	}
	if cfg.Discussion.Enabled {
		e.discussion = judging.NewDiscussionFacilitator(runner, cfg.DiscussionConfig(), o.events, o.recorder)
	}
	if cfg.Tiebreaker.Enabled {
		e.tiebreaker = judging.NewTiebreaker(runner, o.events, o.recorder)
	}
	return e, nil
}

// Rubric returns the rubric the evaluator scores against.
func (e *Evaluator) Rubric() *domain.Rubric { return e.rubric }

// Critiques returns the critique aggregator sharing the evaluator's rubric.
func (e *Evaluator) Critiques() *judging.CritiqueAggregator { return e.critiques }

// Score implements ports.Scorer.
func (e *Evaluator) Score(ctx context.Context, document string) (domain.FinalScore, error) {
	ev, err := e.Evaluate(ctx, document)
	if err != nil {
		return domain.FinalScore{}, err
	}
	return ev.Final, nil
}

// Evaluate runs one round and returns every intermediate result. A failed
// round returns an error and no score; callers must treat the document as
// unscored.
func (e *Evaluator) Evaluate(ctx context.Context, document string) (*Evaluation, error) {
	if document == "" {
		return nil, domain.ErrEmptyDocument
	}
	ctx, span := e.tracer.Start(ctx, "Evaluator.Evaluate",
		trace.WithAttributes(attribute.Int("document.length", len(document))))
	defer span.End()
	start := time.Now()

	ev, err := e.evaluate(ctx, document)
	rec := domain.ExecutionRecord{
		Operation: "evaluate",
		Duration:  time.Since(start),
		Success:   err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
		e.recorder.RecordExecution(ctx, rec)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ev.Duration = rec.Duration
	rec.RunID = ev.Panel.Log.RunID
	rec.Score = ev.Final.OverallScore
	e.recorder.RecordExecution(ctx, rec)

	final := ev.Final
	span.SetAttributes(
		attribute.Float64("score.overall", final.OverallScore),
		attribute.String("score.method", string(final.Method)),
		attribute.Bool("score.needs_review", final.NeedsHumanReview),
	)
	e.events.Emit(ctx, domain.NewEvent(domain.EventScoreAggregated, domain.LevelInfo,
		fmt.Sprintf("document scored %.1f by %s", final.OverallScore, final.Method),
		map[string]any{
			"overall_score":      final.OverallScore,
			"method":             string(final.Method),
			"confidence":         final.Confidence,
			"needs_human_review": final.NeedsHumanReview,
			"duration_ms":        ev.Duration.Milliseconds(),
		}))
	return ev, nil
}

func (e *Evaluator) evaluate(ctx context.Context, document string) (*Evaluation, error) {
	panelRes, err := traced(ctx, e.tracer, "panel", func(ctx context.Context) (*judging.PanelResult, error) {
		return e.panel.Run(ctx, document)
	})
	if err != nil {
		return nil, err
	}
	ev := &Evaluation{Panel: panelRes}
	verdicts := panelRes.Verdicts
	degraded := panelRes.Degraded

	dis := e.detector.Detect(verdicts)
	ev.InitialDisagreement = dis
	e.reportDisagreement(ctx, domain.PhaseInitial, dis)

	discussed := false
	if dis.HasDisagreement && e.discussion != nil {
		res, err := traced(ctx, e.tracer, "discussion", func(ctx context.Context) (*judging.DiscussionResult, error) {
			return e.discussion.Discuss(ctx, document, verdicts, dis)
		})
		if err != nil {
			return nil, err
		}
		ev.Discussion = res
		verdicts = res.Verdicts
		degraded = degraded || res.Degraded
		discussed = true

		dis = e.detector.Detect(verdicts)
		e.reportDisagreement(ctx, domain.PhaseDiscussion, dis)
	}
	ev.Disagreement = dis

	var arbiter *domain.Verdict
	if dis.HasDisagreement && e.tiebreaker != nil {
		res, err := traced(ctx, e.tracer, "tiebreak", func(ctx context.Context) (*judging.TiebreakResult, error) {
			return e.tiebreaker.Arbitrate(ctx, document, verdicts, dis)
		})
		if err != nil {
			return nil, err
		}
		ev.Tiebreak = res
		arbiter = &res.Arbiter
	}

	final, err := e.aggregator.Aggregate(judging.AggregationInput{
		Verdicts:           verdicts,
		Disagreement:       &dis,
		Arbiter:            arbiter,
		DiscussionOccurred: discussed,
		Degraded:           degraded,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate final score: %w", err)
	}
	ev.Final = final
	return ev, nil
}

func (e *Evaluator) reportDisagreement(ctx context.Context, phase domain.Phase, dis domain.DisagreementResult) {
	if !dis.HasDisagreement {
		return
	}
	e.events.Emit(ctx, domain.NewEvent(domain.EventDisagreement, domain.LevelInfo, judging.ReviewReason(dis),
		map[string]any{
			"phase":               string(phase),
			"disputed_dimensions": dis.DisputedDimensions,
			"max_spread":          dis.MaxSpread,
			"overall_spread":      dis.OverallSpread,
		}))
}

// traced runs fn inside a child span named name.
func traced[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}
