package domain

import "time"

// SuggestedEdit is a textual replacement proposed by a fixer.
type SuggestedEdit struct {
	ID              string `json:"id"`
	Dimension       string `json:"dimension"`
	OriginalText    string `json:"original_text"`
	ReplacementText string `json:"replacement_text"`
	Rationale       string `json:"rationale,omitempty"`
}

// FixRequest asks a fixer to improve one under-threshold dimension.
type FixRequest struct {
	Document     string             `json:"-"`
	Dimension    ScoringDimension   `json:"dimension"`
	CurrentScore float64            `json:"current_score"`
	TargetScore  float64            `json:"target_score"`
	Critique     string             `json:"critique"`
	Issues       []PrioritizedIssue `json:"issues,omitempty"`
}

// FixerFailure records a fixer that could not propose edits.
type FixerFailure struct {
	Dimension string `json:"dimension"`
	Error     string `json:"error"`
}

// FixDeployment is the collected output of one fixer fan-out.
type FixDeployment struct {
	Edits          []SuggestedEdit `json:"edits"`
	FixersDeployed int             `json:"fixers_deployed"`
	Failures       []FixerFailure  `json:"failures,omitempty"`
}

// SkippedEdit is an edit the reconciler declined to apply.
type SkippedEdit struct {
	Edit   SuggestedEdit `json:"edit"`
	Reason string        `json:"reason"`
}

// ReconcileResult is the outcome of applying a set of edits.
type ReconcileResult struct {
	RevisedDocument string          `json:"revised_document"`
	Applied         []SuggestedEdit `json:"applied"`
	Skipped         []SkippedEdit   `json:"skipped"`
}

// RefinementState is a state of the refinement loop.
type RefinementState string

// Refinement loop states.
const (
	StateEvaluating  RefinementState = "evaluating"
	StateDeploying   RefinementState = "deploying"
	StateReconciling RefinementState = "reconciling"
	StateRescoring   RefinementState = "rescoring"
	StateContinue    RefinementState = "continue"
	StateSucceed     RefinementState = "succeed"
	StateAbandon     RefinementState = "abandon"
)

// StopReason explains why the refinement loop ended.
type StopReason string

// Refinement stop reasons.
const (
	StopAlreadyPassing  StopReason = "already_passing"
	StopTargetReached   StopReason = "target_reached"
	StopNoEditsProposed StopReason = "no_edits_proposed"
	StopNoEditsApplied  StopReason = "no_edits_applied"
	StopReconcileFailed StopReason = "reconcile_failed"
	StopMaxAttempts     StopReason = "max_attempts_exhausted"
	StopRescoreFailed   StopReason = "rescore_failed"
	StopCancelled       StopReason = "cancelled"
)

// DimensionDelta is the before/after score of one dimension in an attempt.
type DimensionDelta struct {
	Dimension string  `json:"dimension"`
	Before    float64 `json:"before"`
	After     float64 `json:"after"`
	Delta     float64 `json:"delta"`
}

// RefinementAttempt records one loop iteration.
type RefinementAttempt struct {
	// AttemptNumber is 1-based and strictly increasing.
	AttemptNumber int `json:"attempt_number"`

	// TargetDimensions lists the under-threshold dimensions fixers addressed.
	TargetDimensions []string `json:"target_dimensions"`

	FixersDeployed int `json:"fixers_deployed"`
	EditsProposed  int `json:"edits_proposed"`
	EditsApplied   int `json:"edits_applied"`
	EditsSkipped   int `json:"edits_skipped"`

	ScoreBefore float64 `json:"score_before"`
	ScoreAfter  float64 `json:"score_after"`

	// Rescored is false when the attempt stopped before rescoring.
	Rescored bool `json:"rescored"`

	DimensionDeltas []DimensionDelta `json:"dimension_deltas,omitempty"`

	Duration time.Duration `json:"duration"`

	// Outcome is the state the loop moved to after this attempt.
	Outcome RefinementState `json:"outcome"`
}

// RefinementResult is the terminal outcome of the refinement loop.
type RefinementResult struct {
	FinalDocument string              `json:"final_document"`
	FinalScore    FinalScore          `json:"final_score"`
	Success       bool                `json:"success"`
	Attempts      []RefinementAttempt `json:"attempts"`
	TotalDuration time.Duration       `json:"total_duration"`
	WarningReason string              `json:"warning_reason,omitempty"`
	StopReason    StopReason          `json:"stop_reason"`
}
