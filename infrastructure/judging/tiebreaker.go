package judging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// TiebreakResult is the arbiter's contribution to a disputed round.
type TiebreakResult struct {
	// Arbiter is the additional verdict; primary verdicts are untouched.
	Arbiter domain.Verdict

	// ResolutionSummary explains how each disputed dimension was settled.
	ResolutionSummary string

	// Duration is the wall time of the arbiter run including retries.
	Duration time.Duration
}

// Tiebreaker runs the arbiter persona when the panel cannot agree.
type Tiebreaker struct {
	runner   *JudgeRunner
	persona  domain.Persona
	events   ports.EventSink
	recorder ports.ExecutionRecorder
}

// NewTiebreaker creates a Tiebreaker using the built-in arbiter persona.
func NewTiebreaker(runner *JudgeRunner, events ports.EventSink, recorder ports.ExecutionRecorder) *Tiebreaker {
	if events == nil {
		events = ports.NopEventSink{}
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Tiebreaker{runner: runner, persona: domain.ArbiterPersona(), events: events, recorder: recorder}
}

// Arbitrate produces one arbiter verdict covering every dimension. The
// request carries the primary verdicts and each judge's position on the
// disputed dimensions. It returns ErrNothingToArbitrate when disagreement
// does not hold.
func (t *Tiebreaker) Arbitrate(
	ctx context.Context,
	document string,
	verdicts []domain.Verdict,
	disagreement domain.DisagreementResult,
) (*TiebreakResult, error) {
	if document == "" {
		return nil, domain.ErrEmptyDocument
	}
	if len(verdicts) == 0 {
		return nil, domain.ErrNoVerdicts
	}
	if !disagreement.HasDisagreement {
		return nil, ErrNothingToArbitrate
	}

	req := t.persona.BuildJudgmentRequest(document, t.runner.Rubric())
	req.Phase = domain.PhaseTiebreak
	req.PeerVerdicts = append([]domain.Verdict(nil), verdicts...)
	req.Disagreement = &disagreement

	runID := uuid.NewString()
	started := time.Now()
	out, err := t.runner.Judge(ctx, req)
	elapsed := time.Since(started)

	rec := domain.ExecutionRecord{
		RunID:     runID,
		Operation: "judge",
		Phase:     domain.PhaseTiebreak,
		Role:      domain.RoleArbiter,
		Duration:  elapsed,
		Success:   err == nil,
		Error:     errString(err),
	}
	if err != nil {
		jf := asJudgeFailed(err)
		if jf == nil {
			jf = domain.NewJudgeFailedError(domain.RoleArbiter, 0, err, nil)
		}
		rec.Attempts = jf.Attempts
		record(ctx, t.recorder, rec)
		return nil, domain.NewPanelAbortError(domain.PhaseTiebreak, []*domain.JudgeFailedError{jf}, domain.ExecutionLog{
			RunID:     runID,
			Phase:     domain.PhaseTiebreak,
			StartedAt: started,
			Duration:  elapsed,
			Judges: []domain.JudgeTiming{{
				Role:     domain.RoleArbiter,
				Duration: elapsed,
				Attempts: jf.Log,
				Error:    jf.Error(),
			}},
		})
	}
	rec.Attempts = len(out.Attempts)
	rec.Score = out.Verdict.OverallScore
	record(ctx, t.recorder, rec)

	summary := resolutionSummary(out.Verdict, disagreement, out.Resolution)
	emit(ctx, t.events, domain.EventTiebreakDone, domain.LevelInfo, "tiebreak completed", map[string]any{
		"run_id":   runID,
		"disputed": disagreement.DisputedDimensions,
		"overall":  out.Verdict.OverallScore,
		"duration": elapsed.String(),
	})
	return &TiebreakResult{Arbiter: out.Verdict, ResolutionSummary: summary, Duration: elapsed}, nil
}

// resolutionSummary lists the arbiter's score against the primary positions
// for each disputed dimension, followed by the arbiter's own resolution text.
func resolutionSummary(arbiter domain.Verdict, dis domain.DisagreementResult, resolution string) string {
	var b strings.Builder
	for _, name := range dis.DisputedDimensions {
		score, _ := arbiter.Score(name)
		positions := make([]string, 0, len(dis.Positions))
		for _, p := range dis.Positions {
			for _, ps := range p.Disputed {
				if ps.Dimension == name {
					positions = append(positions, fmt.Sprintf("%s %.1f", p.Role, ps.Score))
				}
			}
		}
		fmt.Fprintf(&b, "%s: arbiter %.1f vs %s\n", name, score, strings.Join(positions, ", "))
	}
	if len(dis.DisputedDimensions) == 0 {
		fmt.Fprintf(&b, "overall: arbiter %.1f (spread %.1f)\n", arbiter.OverallScore, dis.OverallSpread)
	}
	if r := strings.TrimSpace(resolution); r != "" {
		b.WriteString(r)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
