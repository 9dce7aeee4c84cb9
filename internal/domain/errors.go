package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors.
var (
	// ErrEmptyDocument indicates that an operation received no document text.
	ErrEmptyDocument = errors.New("empty document")

	// ErrNoVerdicts indicates that aggregation received no verdicts.
	ErrNoVerdicts = errors.New("no verdicts")

	// ErrInvalidConfiguration indicates that configuration is invalid or incomplete.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrBudgetExceeded indicates that an LLM call or token budget ran out.
	ErrBudgetExceeded = errors.New("budget exceeded")
)

// OracleInvocationError is a transport or timeout failure calling the
// scoring oracle.
type OracleInvocationError struct {
	// Role is the persona the call was made for.
	Role JudgeRole

	// Attempt is the 1-based attempt number.
	Attempt int

	// Err is the underlying transport error.
	Err error
}

// Error implements the error interface for OracleInvocationError.
func (e *OracleInvocationError) Error() string {
	return fmt.Sprintf("oracle invocation failed: role=%s, attempt=%d, err=%v", e.Role, e.Attempt, e.Err)
}

// Unwrap returns the underlying error.
func (e *OracleInvocationError) Unwrap() error { return e.Err }

// NewOracleInvocationError creates a new OracleInvocationError.
func NewOracleInvocationError(role JudgeRole, attempt int, err error) *OracleInvocationError {
	return &OracleInvocationError{Role: role, Attempt: attempt, Err: err}
}

// OracleParseError is a structurally invalid oracle response: unparsable,
// missing fields, or out-of-range values.
type OracleParseError struct {
	Role    JudgeRole
	Attempt int
	Strict  bool
	Reason  string
	Err     error
}

// Error implements the error interface for OracleParseError.
func (e *OracleParseError) Error() string {
	msg := fmt.Sprintf("oracle response invalid: role=%s, attempt=%d, strict=%t, reason=%s",
		e.Role, e.Attempt, e.Strict, e.Reason)
	if e.Err != nil {
		msg += fmt.Sprintf(", err=%v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *OracleParseError) Unwrap() error { return e.Err }

// NewOracleParseError creates a new OracleParseError.
func NewOracleParseError(role JudgeRole, attempt int, strict bool, reason string, err error) *OracleParseError {
	return &OracleParseError{Role: role, Attempt: attempt, Strict: strict, Reason: reason, Err: err}
}

// JudgeFailedError reports that a judge exhausted its retries.
type JudgeFailedError struct {
	// Role is the persona that failed.
	Role JudgeRole

	// Attempts is the number of oracle calls made.
	Attempts int

	// LastErr is the error from the final attempt.
	LastErr error

	// Log holds per-attempt timing.
	Log []JudgeAttempt
}

// Error implements the error interface for JudgeFailedError.
func (e *JudgeFailedError) Error() string {
	return fmt.Sprintf("judge %s failed after %d attempts: %v", e.Role, e.Attempts, e.LastErr)
}

// Unwrap returns the last attempt's error.
func (e *JudgeFailedError) Unwrap() error { return e.LastErr }

// NewJudgeFailedError creates a new JudgeFailedError.
func NewJudgeFailedError(role JudgeRole, attempts int, lastErr error, log []JudgeAttempt) *JudgeFailedError {
	return &JudgeFailedError{Role: role, Attempts: attempts, LastErr: lastErr, Log: log}
}

// PanelAbortError reports that a fan-out round could not produce a usable
// verdict set. It pairs the failures with the round's diagnostic log.
type PanelAbortError struct {
	Phase    Phase
	Failures []*JudgeFailedError
	Log      ExecutionLog
}

// Error implements the error interface for PanelAbortError.
func (e *PanelAbortError) Error() string {
	roles := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		roles[i] = string(f.Role)
	}
	return fmt.Sprintf("%s round aborted: %d judge(s) failed [%s]", e.Phase, len(e.Failures), strings.Join(roles, ", "))
}

// Unwrap exposes every judge failure to errors.Is and errors.As.
func (e *PanelAbortError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// NewPanelAbortError creates a new PanelAbortError.
func NewPanelAbortError(phase Phase, failures []*JudgeFailedError, log ExecutionLog) *PanelAbortError {
	return &PanelAbortError{Phase: phase, Failures: failures, Log: log}
}

// BudgetExceededError reports that a call or token limit was hit.
type BudgetExceededError struct {
	// LimitType is "tokens" or "calls".
	LimitType string
	Limit     int
	Used      int
	Scope     string
}

// Error implements the error interface for BudgetExceededError.
func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded: scope=%s, %s used=%d, limit=%d", e.Scope, e.LimitType, e.Used, e.Limit)
}

// Unwrap returns ErrBudgetExceeded.
func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// NewBudgetExceededError creates a new BudgetExceededError.
func NewBudgetExceededError(limitType string, limit, used int, scope string) *BudgetExceededError {
	return &BudgetExceededError{LimitType: limitType, Limit: limit, Used: used, Scope: scope}
}

// ValidationError represents an error that occurred during validation.
// It can contain multiple validation failures.
type ValidationError struct {
	// Entity is the name of the entity that failed validation.
	Entity string

	// Errors contains the list of validation error messages.
	Errors []string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation error for %s: %s", e.Entity, e.Errors[0])
	}
	return fmt.Sprintf("validation errors for %s: %v", e.Entity, e.Errors)
}

// AddError adds a new error message to the validation error.
func (e *ValidationError) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// HasErrors returns true if there are any validation errors.
func (e *ValidationError) HasErrors() bool { return len(e.Errors) > 0 }

// NewValidationError creates a new ValidationError for the given entity.
func NewValidationError(entity string) *ValidationError {
	return &ValidationError{
		Entity: entity,
		Errors: make([]string, 0),
	}
}
