package judging

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// DiscussionConfig configures the peer discussion round.
type DiscussionConfig struct {
	// MaxRevision bounds how far a judge may move any one score.
	MaxRevision float64

	// Policy is the failure policy; defaults to PolicyStrict. Under
	// PolicyQuorum a failed discussant keeps its prior verdict.
	Policy FailurePolicy

	// MinJudges is the number of discussants that must succeed under
	// PolicyQuorum.
	MinJudges int

	// Budget is the soft wall-time target; exceeding it only logs.
	Budget time.Duration
}

// DefaultDiscussionConfig returns a strict round with a ±2.0 revision cap
// and a 5s budget.
func DefaultDiscussionConfig() DiscussionConfig {
	return DiscussionConfig{
		MaxRevision: DefaultMaxRevision,
		Policy:      PolicyStrict,
		MinJudges:   2,
		Budget:      DefaultDiscussionBudget,
	}
}

// ScoreChange is one revised dimension score.
type ScoreChange struct {
	Role      domain.JudgeRole `json:"role"`
	Dimension string           `json:"dimension"`
	Before    float64          `json:"before"`
	After     float64          `json:"after"`
	Delta     float64          `json:"delta"`
	Clipped   bool             `json:"clipped,omitempty"`
}

func (c ScoreChange) String() string {
	return fmt.Sprintf("%s changed %s %.1f → %.1f (%+.1f)", c.Role, c.Dimension, c.Before, c.After, c.Delta)
}

// DiscussionResult is the output of one discussion round.
type DiscussionResult struct {
	// Verdicts are the revised verdicts in input order.
	Verdicts []domain.Verdict

	// Changes lists every score that moved.
	Changes []ScoreChange

	// ChangesCount is len(Changes).
	ChangesCount int

	// Summary is a human-readable list of the changes.
	Summary string

	// Clipped counts revisions that were capped to MaxRevision.
	Clipped int

	// Degraded is set when a failed discussant kept its prior verdict.
	Degraded bool

	// Duration is the wall time of the round.
	Duration time.Duration

	// Log is the diagnostic record of the round.
	Log domain.ExecutionLog
}

// DiscussionFacilitator lets every judge revise its verdict after seeing
// its peers' verdicts.
type DiscussionFacilitator struct {
	runner   *JudgeRunner
	cfg      DiscussionConfig
	events   ports.EventSink
	recorder ports.ExecutionRecorder
}

// NewDiscussionFacilitator creates a DiscussionFacilitator. Zero-valued
// config fields take their defaults.
func NewDiscussionFacilitator(
	runner *JudgeRunner,
	cfg DiscussionConfig,
	events ports.EventSink,
	recorder ports.ExecutionRecorder,
) *DiscussionFacilitator {
	def := DefaultDiscussionConfig()
	if cfg.MaxRevision <= 0 {
		cfg.MaxRevision = def.MaxRevision
	}
	if cfg.Policy == "" {
		cfg.Policy = def.Policy
	}
	if cfg.MinJudges <= 0 {
		cfg.MinJudges = def.MinJudges
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
	return &DiscussionFacilitator{runner: runner, cfg: cfg, events: events, recorder: recorder}
}

// Discuss re-invokes every judge concurrently with its own prior verdict and
// a snapshot of its peers' verdicts. Revised scores are clipped to
// ±MaxRevision from the prior score and to the valid score range, and each
// overall score is recomputed from the clipped dimensions.
func (f *DiscussionFacilitator) Discuss(
	ctx context.Context,
	document string,
	verdicts []domain.Verdict,
	disagreement domain.DisagreementResult,
) (*DiscussionResult, error) {
	if document == "" {
		return nil, domain.ErrEmptyDocument
	}
	if len(verdicts) == 0 {
		return nil, domain.ErrNoVerdicts
	}

	// Snapshot before fan-out; no judge sees another's revision.
	snapshot := make([]domain.Verdict, len(verdicts))
	copy(snapshot, verdicts)

	reqs := make([]domain.JudgmentRequest, len(snapshot))
	for i := range snapshot {
		prior := snapshot[i]
		persona, ok := domain.PersonaFor(prior.Role)
		if !ok {
			persona = domain.Persona{Role: prior.Role}
		}
		req := persona.BuildJudgmentRequest(document, f.runner.Rubric())
		req.Phase = domain.PhaseDiscussion
		req.PriorVerdict = &prior
		req.PeerVerdicts = peersOf(snapshot, i)
		dis := disagreement
		req.Disagreement = &dis
		req.MaxRevision = f.cfg.MaxRevision
		reqs[i] = req
	}

	round := runRound(ctx, f.runner, f.recorder, domain.PhaseDiscussion, reqs)
	result := &DiscussionResult{Duration: round.log.Duration, Log: round.log}

	if round.log.Duration > f.cfg.Budget {
		emit(ctx, f.events, domain.EventDiscussionSlow, domain.LevelWarn, "discussion exceeded target budget", map[string]any{
			"run_id":   round.log.RunID,
			"duration": round.log.Duration.String(),
			"budget":   f.cfg.Budget.String(),
		})
	}

	if failures := round.failures(); len(failures) > 0 {
		succeeded := len(reqs) - len(failures)
		if f.cfg.Policy != PolicyQuorum || succeeded < f.cfg.MinJudges {
			return nil, domain.NewPanelAbortError(domain.PhaseDiscussion, failures, round.log)
		}
		result.Degraded = true
	}

	result.Verdicts = make([]domain.Verdict, len(snapshot))
	for i, slot := range round.slots {
		prior := snapshot[i]
		if slot.outcome == nil {
			result.Verdicts[i] = prior
			continue
		}
		revised, changes, clipped, err := f.clip(prior, slot.outcome.Verdict)
		if err != nil {
			return nil, fmt.Errorf("rebuilding %s verdict: %w", prior.Role, err)
		}
		result.Verdicts[i] = revised
		result.Changes = append(result.Changes, changes...)
		result.Clipped += clipped
	}
	result.ChangesCount = len(result.Changes)
	result.Summary = summarizeChanges(result.Changes)

	if result.Clipped > 0 {
		emit(ctx, f.events, domain.EventDiscussionClipped, domain.LevelWarn, "discussion revisions exceeded the cap", map[string]any{
			"run_id":       round.log.RunID,
			"clipped":      result.Clipped,
			"max_revision": f.cfg.MaxRevision,
		})
	}
	emit(ctx, f.events, domain.EventDiscussionDone, domain.LevelInfo, "discussion completed", map[string]any{
		"run_id":   round.log.RunID,
		"changes":  result.ChangesCount,
		"duration": result.Duration.String(),
		"degraded": result.Degraded,
	})
	return result, nil
}

// clip bounds every revised score to the prior score ± MaxRevision and
// rebuilds the verdict so the overall score reflects the clipped values.
func (f *DiscussionFacilitator) clip(prior, revised domain.Verdict) (domain.Verdict, []ScoreChange, int, error) {
	var (
		changes []ScoreChange
		clipped int
	)
	scores := make([]domain.DimensionScore, len(revised.Scores))
	for i, ds := range revised.Scores {
		before, ok := prior.Score(ds.Dimension)
		if !ok {
			before = ds.Score
		}
		after := domain.ClampScore(ds.Score)
		lo, hi := before-f.cfg.MaxRevision, before+f.cfg.MaxRevision
		wasClipped := false
		if after < lo-scoreEpsilon || after > hi+scoreEpsilon {
			after = domain.ClampScore(math.Min(math.Max(after, lo), hi))
			wasClipped = true
			clipped++
		}
		after = domain.Round1(after)
		ds.Score = after
		scores[i] = ds

		if delta := domain.Round1(after - before); delta != 0 {
			changes = append(changes, ScoreChange{
				Role:      prior.Role,
				Dimension: ds.Dimension,
				Before:    before,
				After:     after,
				Delta:     delta,
				Clipped:   wasClipped,
			})
		}
	}

	v, err := domain.NewVerdict(f.runner.Rubric(), domain.VerdictInput{
		Role:       revised.Role,
		Phase:      domain.PhaseDiscussion,
		Scores:     scores,
		Critique:   revised.Critique,
		Issues:     revised.Issues,
		Confidence: revised.Confidence,
		Timestamp:  revised.Timestamp,
	})
	if err != nil {
		return domain.Verdict{}, nil, 0, err
	}
	return v, changes, clipped, nil
}

// scoreEpsilon absorbs float error on one-decimal scores.
const scoreEpsilon = 1e-9

func peersOf(verdicts []domain.Verdict, self int) []domain.Verdict {
	peers := make([]domain.Verdict, 0, len(verdicts)-1)
	for i, v := range verdicts {
		if i != self {
			peers = append(peers, v)
		}
	}
	return peers
}

func summarizeChanges(changes []ScoreChange) string {
	if len(changes) == 0 {
		return "no judge revised its scores"
	}
	lines := make([]string, len(changes))
	for i, c := range changes {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}
