package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOracleErrors(t *testing.T) {
	cause := errors.New("connection reset")

	inv := NewOracleInvocationError(RoleSkeptic, 2, cause)
	assert.Equal(t, "oracle invocation failed: role=skeptic, attempt=2, err=connection reset", inv.Error())
	assert.True(t, errors.Is(inv, cause))

	parse := NewOracleParseError(RoleAdvocate, 1, true, "missing confidence", nil)
	assert.Equal(t, "oracle response invalid: role=advocate, attempt=1, strict=true, reason=missing confidence", parse.Error())
	assert.Nil(t, parse.Unwrap())
}

func TestJudgeFailedError(t *testing.T) {
	last := NewOracleParseError(RoleGeneralist, 2, true, "bad json", nil)
	err := NewJudgeFailedError(RoleGeneralist, 2, last, []JudgeAttempt{{Attempt: 1}, {Attempt: 2, Strict: true}})

	assert.Contains(t, err.Error(), "judge generalist failed after 2 attempts")

	var perr *OracleParseError
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Strict)
	assert.Len(t, err.Log, 2)
}

func TestPanelAbortError(t *testing.T) {
	cause := errors.New("timeout")
	f1 := NewJudgeFailedError(RoleSkeptic, 3, cause, nil)
	f2 := NewJudgeFailedError(RoleAdvocate, 3, errors.New("boom"), nil)

	err := NewPanelAbortError(PhaseInitial, []*JudgeFailedError{f1, f2}, ExecutionLog{RunID: "run-1"})

	assert.Equal(t, "initial round aborted: 2 judge(s) failed [skeptic, advocate]", err.Error())
	assert.True(t, errors.Is(err, cause), "joined unwrap should reach judge causes")

	var jf *JudgeFailedError
	require.True(t, errors.As(err, &jf))
	assert.Equal(t, RoleSkeptic, jf.Role)
	assert.Equal(t, "run-1", err.Log.RunID)
}

func TestBudgetExceededError(t *testing.T) {
	err := NewBudgetExceededError("calls", 10, 11, "oracle")
	assert.Equal(t, "budget exceeded: scope=oracle, calls used=11, limit=10", err.Error())
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
}

func TestValidationError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		err := NewValidationError("Rubric")
		err.AddError("weights sum to 0.9")

		assert.Equal(t, "validation error for Rubric: weights sum to 0.9", err.Error())
		assert.True(t, err.HasErrors())
	})

	t.Run("multiple errors", func(t *testing.T) {
		err := NewValidationError("Verdict")
		err.AddError("missing dimension")
		err.AddError("confidence out of range")

		assert.Contains(t, err.Error(), "validation errors for Verdict")
		assert.Len(t, err.Errors, 2)
	})

	t.Run("no errors", func(t *testing.T) {
		err := NewValidationError("Config")
		assert.False(t, err.HasErrors())
		assert.Empty(t, err.Errors)
	})
}
