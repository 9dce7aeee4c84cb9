package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// FixedTime is the timestamp used by deterministic fixtures.
var FixedTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// MustVerdict builds a verdict scoring every rubric dimension from scores,
// using fallback for missing dimensions. It panics on invalid input.
func MustVerdict(
	rubric *domain.Rubric,
	role domain.JudgeRole,
	scores map[string]float64,
	fallback, confidence float64,
	issues ...domain.Issue,
) domain.Verdict {
	ds := make([]domain.DimensionScore, 0, rubric.Len())
	for _, name := range rubric.Names() {
		s, ok := scores[name]
		if !ok {
			s = fallback
		}
		ds = append(ds, domain.DimensionScore{
			Dimension: name,
			Score:     s,
			Reasoning: fmt.Sprintf("%s on %s", role, name),
		})
	}
	v, err := domain.NewVerdict(rubric, domain.VerdictInput{
		Role:       role,
		Phase:      domain.PhaseInitial,
		Scores:     ds,
		Critique:   fmt.Sprintf("%s critique", role),
		Issues:     issues,
		Confidence: confidence,
		Timestamp:  FixedTime,
	})
	if err != nil {
		panic(err)
	}
	return v
}

// RecordingSink is a ports.EventSink that keeps every event.
type RecordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

// Emit implements ports.EventSink.
func (s *RecordingSink) Emit(_ context.Context, e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

// Named returns the recorded events with the given name.
func (s *RecordingSink) Named(name string) []domain.Event {
	var out []domain.Event
	for _, e := range s.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// RecordingRecorder is a ports.ExecutionRecorder that keeps every record.
type RecordingRecorder struct {
	mu      sync.Mutex
	records []domain.ExecutionRecord
}

// RecordExecution implements ports.ExecutionRecorder.
func (r *RecordingRecorder) RecordExecution(_ context.Context, rec domain.ExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of the recorded executions.
func (r *RecordingRecorder) Records() []domain.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ExecutionRecord(nil), r.records...)
}

var (
	_ ports.EventSink         = (*RecordingSink)(nil)
	_ ports.ExecutionRecorder = (*RecordingRecorder)(nil)
)

// MustFinalScore builds a median FinalScore from a single skeptic verdict
// scoring dimensions from scores and fallback elsewhere.
func MustFinalScore(rubric *domain.Rubric, scores map[string]float64, fallback float64) domain.FinalScore {
	v := MustVerdict(rubric, domain.RoleSkeptic, scores, fallback, 0.8)
	breakdown := make([]domain.DimensionResult, 0, rubric.Len())
	byName := v.ScoreMap()
	for _, d := range rubric.Dimensions() {
		breakdown = append(breakdown, domain.DimensionResult{
			Dimension:     d.Name,
			Weight:        d.Weight,
			Score:         byName[d.Name],
			PrimaryScores: []float64{byName[d.Name]},
		})
	}
	return domain.FinalScore{
		OverallScore: rubric.WeightedScore(byName),
		Breakdown:    breakdown,
		Critique:     "[SKEPTIC] " + v.Critique,
		Confidence:   v.Confidence,
		Verdicts:     []domain.Verdict{v},
		Method:       domain.ConsensusMedian,
		Timestamp:    FixedTime,
	}
}
