package testutils

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var (
	_ ports.Scorer      = (*MockScorer)(nil)
	_ ports.FixDeployer = (*MockDeployer)(nil)
	_ ports.Reconciler  = (*MockReconciler)(nil)
	_ ports.Fixer       = (*MockFixer)(nil)
)

// ScoreStep is one scripted scorer reply.
type ScoreStep struct {
	Score domain.FinalScore
	Err   error
}

// MockScorer is a scripted ports.Scorer. Steps are consumed in order and
// the last one repeats.
type MockScorer struct {
	mu    sync.Mutex
	steps []ScoreStep
	docs  []string
}

// NewMockScorer creates a MockScorer replying with steps.
func NewMockScorer(steps ...ScoreStep) *MockScorer {
	return &MockScorer{steps: steps}
}

// Score implements ports.Scorer.
func (m *MockScorer) Score(_ context.Context, document string) (domain.FinalScore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, document)
	if len(m.steps) == 0 {
		return domain.FinalScore{}, errors.New("mock scorer: no script")
	}
	idx := min(len(m.docs)-1, len(m.steps)-1)
	return m.steps[idx].Score, m.steps[idx].Err
}

// Documents returns every document passed to Score, in call order.
func (m *MockScorer) Documents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.docs...)
}

// DeployStep is one scripted deployment.
type DeployStep struct {
	Deployment domain.FixDeployment
	Err        error

	// OnCall runs before the step is returned.
	OnCall func()
}

// MockDeployer is a scripted ports.FixDeployer that records its requests.
type MockDeployer struct {
	mu    sync.Mutex
	steps []DeployStep
	calls [][]domain.FixRequest
}

// NewMockDeployer creates a MockDeployer replying with steps; the last one
// repeats.
func NewMockDeployer(steps ...DeployStep) *MockDeployer {
	return &MockDeployer{steps: steps}
}

// Deploy implements ports.FixDeployer.
func (m *MockDeployer) Deploy(_ context.Context, _ string, reqs []domain.FixRequest) (*domain.FixDeployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, reqs)
	if len(m.steps) == 0 {
		return &domain.FixDeployment{FixersDeployed: len(reqs)}, nil
	}
	step := m.steps[min(len(m.calls)-1, len(m.steps)-1)]
	if step.OnCall != nil {
		step.OnCall()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	d := step.Deployment
	return &d, nil
}

// Calls returns the requests of every Deploy call.
func (m *MockDeployer) Calls() [][]domain.FixRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]domain.FixRequest(nil), m.calls...)
}

// MockReconciler applies every edit with a single string replacement and
// skips edits whose original text is absent. Err, when set, is returned
// instead.
type MockReconciler struct {
	Err error

	mu    sync.Mutex
	calls int
}

// Reconcile implements ports.Reconciler.
func (m *MockReconciler) Reconcile(_ context.Context, document string, edits []domain.SuggestedEdit) (*domain.ReconcileResult, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	res := &domain.ReconcileResult{RevisedDocument: document}
	for _, e := range edits {
		if !strings.Contains(res.RevisedDocument, e.OriginalText) {
			res.Skipped = append(res.Skipped, domain.SkippedEdit{Edit: e, Reason: "original text not found"})
			continue
		}
		res.RevisedDocument = strings.Replace(res.RevisedDocument, e.OriginalText, e.ReplacementText, 1)
		res.Applied = append(res.Applied, e)
	}
	return res, nil
}

// Calls returns how many times Reconcile ran.
func (m *MockReconciler) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockFixer is a ports.Fixer returning canned edits per dimension.
type MockFixer struct {
	// Edits maps a dimension name to the edits proposed for it.
	Edits map[string][]domain.SuggestedEdit
	// Errs maps a dimension name to a failure.
	Errs map[string]error
	// Block, when set, makes ProposeFixes wait for context cancellation.
	Block bool

	mu    sync.Mutex
	calls []domain.FixRequest
}

// ProposeFixes implements ports.Fixer.
func (m *MockFixer) ProposeFixes(ctx context.Context, req domain.FixRequest) ([]domain.SuggestedEdit, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := m.Errs[req.Dimension.Name]; err != nil {
		return nil, err
	}
	return append([]domain.SuggestedEdit(nil), m.Edits[req.Dimension.Name]...), nil
}

// Calls returns every request received.
func (m *MockFixer) Calls() []domain.FixRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FixRequest(nil), m.calls...)
}
