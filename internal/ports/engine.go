package ports

import (
	"context"

	"github.com/ahrav/go-tribunal/internal/domain"
)

// ScoringOracle scores a document under one persona.
// A response that cannot be decoded must be reported as an error wrapping
// ErrInvalidResponse so callers can tell it apart from transport failures.
type ScoringOracle interface {
	ScoreDocument(ctx context.Context, req domain.JudgmentRequest) (domain.OracleResponse, error)
}

// Fixer proposes textual edits that target one under-threshold dimension.
type Fixer interface {
	ProposeFixes(ctx context.Context, req domain.FixRequest) ([]domain.SuggestedEdit, error)
}

// FixDeployer runs fixers for a set of dimensions and collects their edits.
// It may fan out internally; callers treat it as one step.
type FixDeployer interface {
	Deploy(ctx context.Context, document string, requests []domain.FixRequest) (*domain.FixDeployment, error)
}

// Reconciler applies a non-conflicting subset of edits to a document.
// Implementations must never apply two edits whose original text overlaps.
type Reconciler interface {
	Reconcile(ctx context.Context, document string, edits []domain.SuggestedEdit) (*domain.ReconcileResult, error)
}

// Scorer runs a complete evaluation round and returns the consensus score.
type Scorer interface {
	Score(ctx context.Context, document string) (domain.FinalScore, error)
}

// EventSink receives structured events. Emit must not block for long and
// must never fail the caller.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event)
}

// ExecutionRecorder is a fire-and-forget telemetry sink. Nothing it records
// is read back by the engine.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, record domain.ExecutionRecord)
}

// NopEventSink discards every event.
type NopEventSink struct{}

// Emit implements EventSink.
func (NopEventSink) Emit(context.Context, domain.Event) {}

// NopRecorder discards every execution record.
type NopRecorder struct{}

// RecordExecution implements ExecutionRecorder.
func (NopRecorder) RecordExecution(context.Context, domain.ExecutionRecord) {}
