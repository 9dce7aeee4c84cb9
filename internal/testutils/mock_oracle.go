package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// OracleStep is one scripted oracle reply.
type OracleStep struct {
	// Response is returned when Err and Func are unset.
	Response domain.OracleResponse
	// Err is returned instead of a response when set.
	Err error
	// Func computes the reply from the request when set.
	Func func(domain.JudgmentRequest) (domain.OracleResponse, error)
	// Delay is slept before replying; the context cancels it.
	Delay time.Duration
}

type scriptKey struct {
	role  domain.JudgeRole
	phase domain.Phase
}

// MockOracle is a scripted ports.ScoringOracle. Replies are keyed by role
// and phase and consumed in order; the last step repeats once the script is
// exhausted. It is safe for concurrent use.
type MockOracle struct {
	mu      sync.Mutex
	scripts map[scriptKey][]OracleStep
	served  map[scriptKey]int
	calls   []domain.JudgmentRequest
}

// NewMockOracle creates an empty MockOracle.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		scripts: make(map[scriptKey][]OracleStep),
		served:  make(map[scriptKey]int),
	}
}

// On appends steps for role in phase and returns the oracle for chaining.
func (m *MockOracle) On(role domain.JudgeRole, phase domain.Phase, steps ...OracleStep) *MockOracle {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scriptKey{role: role, phase: phase}
	m.scripts[k] = append(m.scripts[k], steps...)
	return m
}

// ScoreDocument implements ports.ScoringOracle.
func (m *MockOracle) ScoreDocument(ctx context.Context, req domain.JudgmentRequest) (domain.OracleResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	k := scriptKey{role: req.Persona.Role, phase: req.Phase}
	steps := m.scripts[k]
	if len(steps) == 0 {
		m.mu.Unlock()
		return domain.OracleResponse{}, fmt.Errorf("mock oracle: no script for %s/%s", k.role, k.phase)
	}
	idx := m.served[k]
	if idx >= len(steps) {
		idx = len(steps) - 1
	}
	m.served[k]++
	step := steps[idx]
	m.mu.Unlock()

	if step.Delay > 0 {
		t := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return domain.OracleResponse{}, ctx.Err()
		case <-t.C:
		}
	}
	switch {
	case step.Func != nil:
		return step.Func(req)
	case step.Err != nil:
		return domain.OracleResponse{}, step.Err
	default:
		return step.Response, nil
	}
}

// Calls returns a copy of every request received, in arrival order.
func (m *MockOracle) Calls() []domain.JudgmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.JudgmentRequest(nil), m.calls...)
}

// CallsFor returns the requests received for role in phase.
func (m *MockOracle) CallsFor(role domain.JudgeRole, phase domain.Phase) []domain.JudgmentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.JudgmentRequest
	for _, c := range m.calls {
		if c.Persona.Role == role && c.Phase == phase {
			out = append(out, c)
		}
	}
	return out
}

// UniformResponse scores every rubric dimension at score.
func UniformResponse(rubric *domain.Rubric, score, confidence float64) domain.OracleResponse {
	scores := make(map[string]float64, rubric.Len())
	for _, name := range rubric.Names() {
		scores[name] = score
	}
	return ScoredResponse(rubric, scores, score, confidence)
}

// ScoredResponse scores each rubric dimension from scores, using fallback
// for dimensions not in the map.
func ScoredResponse(rubric *domain.Rubric, scores map[string]float64, fallback, confidence float64) domain.OracleResponse {
	dims := make([]domain.OracleDimensionScore, 0, rubric.Len())
	for _, name := range rubric.Names() {
		s, ok := scores[name]
		if !ok {
			s = fallback
		}
		dims = append(dims, domain.OracleDimensionScore{
			Dimension: name,
			Score:     Float(s),
			Reasoning: fmt.Sprintf("%s reasoning", name),
		})
	}
	return domain.OracleResponse{
		Dimensions: dims,
		Critique:   "mock critique",
		Confidence: Float(confidence),
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

var _ ports.ScoringOracle = (*MockOracle)(nil)
