package judging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// FailurePolicy decides what a fan-out round does when a judge fails
// permanently.
type FailurePolicy string

// Supported failure policies.
const (
	// PolicyStrict aborts the round if any judge fails.
	PolicyStrict FailurePolicy = "strict"

	// PolicyQuorum continues when at least MinJudges succeed and marks the
	// round degraded.
	PolicyQuorum FailurePolicy = "quorum"
)

// PanelConfig configures the parallel evaluation panel.
type PanelConfig struct {
	// Personas is the primary panel in output order.
	Personas []domain.Persona

	// Policy is the failure policy; defaults to PolicyStrict.
	Policy FailurePolicy

	// MinJudges is the quorum size under PolicyQuorum.
	MinJudges int

	// Budget is the soft wall-time target; exceeding it only logs.
	Budget time.Duration
}

// DefaultPanelConfig returns the three-persona strict panel with an 8s budget.
func DefaultPanelConfig() PanelConfig {
	return PanelConfig{
		Personas:  domain.PrimaryPanel(),
		Policy:    PolicyStrict,
		MinJudges: 2,
		Budget:    DefaultPanelBudget,
	}
}

// PanelResult is the output of one panel round.
type PanelResult struct {
	// Verdicts are ordered by persona order. Under a degraded quorum the
	// failed personas are absent.
	Verdicts []domain.Verdict

	// TotalDuration is the wall time of the round.
	TotalDuration time.Duration

	// PerJudge holds timing for every persona, in persona order.
	PerJudge []domain.JudgeTiming

	// Degraded is set when the quorum policy dropped a failed judge.
	Degraded bool

	// Log is the diagnostic record of the round.
	Log domain.ExecutionLog
}

// Panel runs the primary judges concurrently and collects their verdicts.
type Panel struct {
	runner   *JudgeRunner
	cfg      PanelConfig
	events   ports.EventSink
	recorder ports.ExecutionRecorder
}

// NewPanel creates a Panel. Zero-valued config fields take their defaults.
func NewPanel(runner *JudgeRunner, cfg PanelConfig, events ports.EventSink, recorder ports.ExecutionRecorder) (*Panel, error) {
	def := DefaultPanelConfig()
	if len(cfg.Personas) == 0 {
		cfg.Personas = def.Personas
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.MinJudges <= 0 {
		cfg.MinJudges = def.MinJudges
	}
	if cfg.MinJudges > len(cfg.Personas) {
		return nil, fmt.Errorf("%w: min judges %d exceeds panel size %d",
			domain.ErrInvalidConfiguration, cfg.MinJudges, len(cfg.Personas))
	}
	if cfg.Budget <= 0 {
		cfg.Budget = def.Budget
	}
	if events == nil {
		events = ports.NopEventSink{}
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Panel{runner: runner, cfg: cfg, events: events, recorder: recorder}, nil
}

// Personas returns the configured panel personas.
func (p *Panel) Personas() []domain.Persona { return p.cfg.Personas }

// Policy returns the configured failure policy.
func (p *Panel) Policy() FailurePolicy { return p.cfg.Policy }

// Run evaluates document with every persona concurrently. It waits for all
// judges; a failing judge never cancels its peers.
func (p *Panel) Run(ctx context.Context, document string) (*PanelResult, error) {
	if document == "" {
		return nil, domain.ErrEmptyDocument
	}
	reqs := make([]domain.JudgmentRequest, len(p.cfg.Personas))
	for i, persona := range p.cfg.Personas {
		reqs[i] = persona.BuildJudgmentRequest(document, p.runner.Rubric())
	}

	round := runRound(ctx, p.runner, p.recorder, domain.PhaseInitial, reqs)
	result := &PanelResult{
		TotalDuration: round.log.Duration,
		PerJudge:      round.log.Judges,
		Log:           round.log,
	}

	if round.log.Duration > p.cfg.Budget {
		emit(ctx, p.events, domain.EventPanelSlow, domain.LevelWarn, "panel exceeded target budget", map[string]any{
			"run_id":   round.log.RunID,
			"duration": round.log.Duration.String(),
			"budget":   p.cfg.Budget.String(),
		})
	}

	if failures := round.failures(); len(failures) > 0 {
		succeeded := len(reqs) - len(failures)
		if p.cfg.Policy != PolicyQuorum || succeeded < p.cfg.MinJudges {
			return nil, domain.NewPanelAbortError(domain.PhaseInitial, failures, round.log)
		}
		result.Degraded = true
		emit(ctx, p.events, domain.EventPanelDegraded, domain.LevelWarn, "panel continuing below full strength", map[string]any{
			"run_id":    round.log.RunID,
			"succeeded": succeeded,
			"failed":    len(failures),
		})
	}

	result.Verdicts = round.verdicts()
	emit(ctx, p.events, domain.EventPanelCompleted, domain.LevelInfo, "panel completed", map[string]any{
		"run_id":   round.log.RunID,
		"judges":   len(result.Verdicts),
		"duration": result.TotalDuration.String(),
		"degraded": result.Degraded,
	})
	return result, nil
}

// roundSlot holds one judge's result within a fan-out round.
type roundSlot struct {
	role    domain.JudgeRole
	outcome *JudgeOutcome
	err     error
	elapsed time.Duration
}

type roundResult struct {
	slots []roundSlot
	log   domain.ExecutionLog
}

// runRound executes reqs concurrently and waits for all of them. Output
// order matches reqs regardless of completion order.
func runRound(
	ctx context.Context,
	runner *JudgeRunner,
	recorder ports.ExecutionRecorder,
	phase domain.Phase,
	reqs []domain.JudgmentRequest,
) roundResult {
	runID := uuid.NewString()
	started := time.Now()
	slots := make([]roundSlot, len(reqs))

	// errgroup without a derived context: one judge's failure must not
	// cancel the others.
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			t0 := time.Now()
			out, err := runner.Judge(ctx, req)
			slots[i] = roundSlot{role: req.Persona.Role, outcome: out, err: err, elapsed: time.Since(t0)}
			return err
		})
	}
	_ = g.Wait() // per-slot errors are inspected below

	log := domain.ExecutionLog{
		RunID:     runID,
		Phase:     phase,
		StartedAt: started,
		Duration:  time.Since(started),
		Judges:    make([]domain.JudgeTiming, len(slots)),
	}
	for i, s := range slots {
		timing := domain.JudgeTiming{
			Role:      s.role,
			Duration:  s.elapsed,
			Succeeded: s.err == nil,
			Error:     errString(s.err),
		}
		rec := domain.ExecutionRecord{
			RunID:     runID,
			Operation: "judge",
			Phase:     phase,
			Role:      s.role,
			Duration:  s.elapsed,
			Success:   s.err == nil,
			Error:     errString(s.err),
		}
		if s.outcome != nil {
			timing.Attempts = s.outcome.Attempts
			rec.Attempts = len(s.outcome.Attempts)
			rec.Score = s.outcome.Verdict.OverallScore
		} else if jf := asJudgeFailed(s.err); jf != nil {
			timing.Attempts = jf.Log
			rec.Attempts = jf.Attempts
		}
		log.Judges[i] = timing
		record(ctx, recorder, rec)
	}
	return roundResult{slots: slots, log: log}
}

func (r roundResult) failures() []*domain.JudgeFailedError {
	var out []*domain.JudgeFailedError
	for _, s := range r.slots {
		if s.err == nil {
			continue
		}
		jf := asJudgeFailed(s.err)
		if jf == nil {
			jf = domain.NewJudgeFailedError(s.role, 0, s.err, nil)
		}
		out = append(out, jf)
	}
	return out
}

func (r roundResult) verdicts() []domain.Verdict {
	out := make([]domain.Verdict, 0, len(r.slots))
	for _, s := range r.slots {
		if s.outcome != nil {
			out = append(out, s.outcome.Verdict)
		}
	}
	return out
}

func asJudgeFailed(err error) *domain.JudgeFailedError {
	jf, ok := err.(*domain.JudgeFailedError)
	if !ok {
		return nil
	}
	return jf
}
