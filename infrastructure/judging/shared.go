// Package judging implements the consensus protocol: judge runs with retry,
// the parallel panel, disagreement detection, the discussion round, the
// arbiter tiebreak, final score aggregation and critique aggregation.
package judging

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// Defaults for the consensus protocol.
const (
	DefaultDisagreementThreshold = 2.0
	DefaultMaxRevision           = 2.0
	DefaultArbiterWeight         = 1.5
	DefaultPanelBudget           = 8 * time.Second
	DefaultDiscussionBudget      = 5 * time.Second
	DefaultSimilarityThreshold   = 0.6
	DefaultMaxIssues             = 5
)

// Common errors returned by the judging components.
var (
	// ErrNilOracle is returned when a runner is built without an oracle.
	ErrNilOracle = errors.New("scoring oracle cannot be nil")

	// ErrNilRubric is returned when a component is built without a rubric.
	ErrNilRubric = errors.New("rubric cannot be nil")

	// ErrNothingToArbitrate is returned when a tiebreak is requested
	// without an active disagreement.
	ErrNothingToArbitrate = errors.New("no disagreement to arbitrate")

	// ErrEmptyPanel is returned when a panel has no personas.
	ErrEmptyPanel = errors.New("panel has no personas")
)

// Package-level validator instance for oracle response validation.
var validate = validator.New()

// emit sends an event when a sink is configured.
func emit(ctx context.Context, sink ports.EventSink, name string, level domain.EventLevel, msg string, fields map[string]any) {
	if sink == nil {
		return
	}
	sink.Emit(ctx, domain.NewEvent(name, level, msg, fields))
}

// record sends an execution record when a recorder is configured.
func record(ctx context.Context, rec ports.ExecutionRecorder, r domain.ExecutionRecord) {
	if rec == nil {
		return
	}
	rec.RecordExecution(ctx, r)
}
