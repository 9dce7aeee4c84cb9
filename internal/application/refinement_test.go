package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/testutils"
)

const refineDoc = "alpha beta gamma delta"

func edit(id, from, to string) domain.SuggestedEdit {
	return domain.SuggestedEdit{ID: id, Dimension: domain.DimensionClarity, OriginalText: from, ReplacementText: to}
}

func deployEdits(edits ...domain.SuggestedEdit) testutils.DeployStep {
	return testutils.DeployStep{Deployment: domain.FixDeployment{Edits: edits, FixersDeployed: 1}}
}

type refinementHarness struct {
	scorer     *testutils.MockScorer
	deployer   *testutils.MockDeployer
	reconciler *testutils.MockReconciler
	sink       *testutils.RecordingSink
	ctrl       *RefinementController
}

func newRefinementHarness(t *testing.T, scorer *testutils.MockScorer, deployer *testutils.MockDeployer) *refinementHarness {
	t.Helper()
	h := &refinementHarness{
		scorer:     scorer,
		deployer:   deployer,
		reconciler: &testutils.MockReconciler{},
		sink:       &testutils.RecordingSink{},
	}
	ctrl, err := NewRefinementController(h.scorer, h.deployer, h.reconciler, nil, domain.DefaultRubric(),
		RefinementSection{}, h.sink)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func TestRefine_AlreadyPassing(t *testing.T) {
	rubric := domain.DefaultRubric()
	h := newRefinementHarness(t, testutils.NewMockScorer(), testutils.NewMockDeployer())

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 8.5))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Empty(t, res.Attempts)
	assert.Equal(t, domain.StopAlreadyPassing, res.StopReason)
	assert.Equal(t, refineDoc, res.FinalDocument)
	assert.Empty(t, res.WarningReason)
	assert.Empty(t, h.deployer.Calls())
	assert.Empty(t, h.scorer.Documents())
	assert.Len(t, h.sink.Named(domain.EventRefinementFinished), 1)
}

func TestRefine_StallsWhenNoEditsProposed(t *testing.T) {
	rubric := domain.DefaultRubric()
	h := newRefinementHarness(t, testutils.NewMockScorer(), testutils.NewMockDeployer(deployEdits()))

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 5.0))
	require.NoError(t, err)

	assert.False(t, res.Success)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, domain.StopNoEditsProposed, res.StopReason)
	assert.Equal(t, 1, res.Attempts[0].AttemptNumber)
	assert.Equal(t, domain.StateAbandon, res.Attempts[0].Outcome)
	assert.False(t, res.Attempts[0].Rescored)
	assert.Equal(t, 5.0, res.Attempts[0].ScoreAfter)
	assert.Len(t, res.Attempts[0].TargetDimensions, rubric.Len())

	assert.Contains(t, res.WarningReason, "fixers proposed no edits")
	assert.Contains(t, res.WarningReason, "weakest dimensions: clarity 5.0, structure 5.0, evidenceQuality 5.0")
	assert.Equal(t, refineDoc, res.FinalDocument)
	assert.Zero(t, h.reconciler.Calls())
	assert.Empty(t, h.scorer.Documents())
}

func TestRefine_StallsWhenNoEditsApplied(t *testing.T) {
	rubric := domain.DefaultRubric()
	h := newRefinementHarness(t, testutils.NewMockScorer(),
		testutils.NewMockDeployer(deployEdits(edit("e1", "missing text", "x"))))

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, domain.StopNoEditsApplied, res.StopReason)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, 1, res.Attempts[0].EditsProposed)
	assert.Zero(t, res.Attempts[0].EditsApplied)
	assert.Equal(t, 1, res.Attempts[0].EditsSkipped)
	assert.NotEmpty(t, res.WarningReason)
	assert.Empty(t, h.scorer.Documents())
}

func TestRefine_ReachesTargetOnSecondAttempt(t *testing.T) {
	rubric := domain.DefaultRubric()
	scorer := testutils.NewMockScorer(
		testutils.ScoreStep{Score: testutils.MustFinalScore(rubric, nil, 7.0)},
		testutils.ScoreStep{Score: testutils.MustFinalScore(rubric, nil, 8.2)},
	)
	deployer := testutils.NewMockDeployer(
		deployEdits(edit("e1", "alpha", "ALPHA")),
		deployEdits(edit("e2", "beta", "BETA")),
	)
	h := newRefinementHarness(t, scorer, deployer)

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, domain.StopTargetReached, res.StopReason)
	assert.Empty(t, res.WarningReason)
	assert.Equal(t, "ALPHA BETA gamma delta", res.FinalDocument)
	assert.Equal(t, 8.2, res.FinalScore.OverallScore)
	assert.Equal(t, []string{"ALPHA beta gamma delta", "ALPHA BETA gamma delta"}, scorer.Documents())

	require.Len(t, res.Attempts, 2)
	first, second := res.Attempts[0], res.Attempts[1]
	assert.Equal(t, 1, first.AttemptNumber)
	assert.Equal(t, domain.StateContinue, first.Outcome)
	assert.Equal(t, 6.0, first.ScoreBefore)
	assert.Equal(t, 7.0, first.ScoreAfter)
	assert.True(t, first.Rescored)
	require.Len(t, first.DimensionDeltas, rubric.Len())
	assert.Equal(t, domain.DimensionDelta{Dimension: domain.DimensionClarity, Before: 6, After: 7, Delta: 1},
		first.DimensionDeltas[0])

	assert.Equal(t, 2, second.AttemptNumber)
	assert.Equal(t, domain.StateSucceed, second.Outcome)
	assert.Equal(t, 7.0, second.ScoreBefore)
	assert.Equal(t, 8.2, second.ScoreAfter)

	assert.Len(t, h.sink.Named(domain.EventRefinementAttempt), 2)
	finished := h.sink.Named(domain.EventRefinementFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, true, finished[0].Fields["success"])
}

func TestRefine_AlwaysContinuesFromLatestDocument(t *testing.T) {
	rubric := domain.DefaultRubric()
	scorer := testutils.NewMockScorer(
		testutils.ScoreStep{Score: testutils.MustFinalScore(rubric, nil, 6.5)},
		testutils.ScoreStep{Score: testutils.MustFinalScore(rubric, nil, 5.5)},
		testutils.ScoreStep{Score: testutils.MustFinalScore(rubric, nil, 6.0)},
	)
	deployer := testutils.NewMockDeployer(
		deployEdits(edit("e1", "alpha", "one")),
		deployEdits(edit("e2", "beta", "two")),
		deployEdits(edit("e3", "gamma", "three")),
	)
	h := newRefinementHarness(t, scorer, deployer)

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, domain.StopMaxAttempts, res.StopReason)
	require.Len(t, res.Attempts, DefaultMaxAttempts)
	assert.Equal(t, 5.5, res.Attempts[1].ScoreAfter)
	assert.Equal(t, 5.5, res.Attempts[2].ScoreBefore, "a regression is not rolled back")
	assert.Equal(t, "one two three delta", res.FinalDocument)
	assert.Equal(t, 6.0, res.FinalScore.OverallScore)
	assert.Equal(t, domain.StateAbandon, res.Attempts[2].Outcome)
	assert.Contains(t, res.WarningReason, "attempts exhausted")
	for i, a := range res.Attempts {
		assert.Equal(t, i+1, a.AttemptNumber)
	}
}

func TestRefine_TargetsWeakestDimensionsFirst(t *testing.T) {
	rubric := domain.DefaultRubric()
	initial := testutils.MustFinalScore(rubric, map[string]float64{
		domain.DimensionStyle:   6,
		domain.DimensionClarity: 3,
	}, 9)
	require.Less(t, initial.OverallScore, DefaultTargetScore)

	deployer := testutils.NewMockDeployer(deployEdits())
	h := newRefinementHarness(t, testutils.NewMockScorer(), deployer)

	res, err := h.ctrl.Refine(context.Background(), refineDoc, initial)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.DimensionClarity, domain.DimensionStyle}, res.Attempts[0].TargetDimensions)

	calls := deployer.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	req := calls[0][0]
	assert.Equal(t, domain.DimensionClarity, req.Dimension.Name)
	assert.Equal(t, 0.15, req.Dimension.Weight)
	assert.Equal(t, 3.0, req.CurrentScore)
	assert.Equal(t, DefaultTargetScore, req.TargetScore)
	assert.Equal(t, refineDoc, req.Document)
	assert.Contains(t, req.Critique, "[SKEPTIC] skeptic on clarity")
	assert.Equal(t, domain.DimensionStyle, calls[0][1].Dimension.Name)
}

func TestRefine_RescoreFailureReturnsPartialResult(t *testing.T) {
	rubric := domain.DefaultRubric()
	boom := errors.New("panel aborted")
	scorer := testutils.NewMockScorer(testutils.ScoreStep{Err: boom})
	h := newRefinementHarness(t, scorer, testutils.NewMockDeployer(deployEdits(edit("e1", "alpha", "ALPHA"))))

	initial := testutils.MustFinalScore(rubric, nil, 6.0)
	res, err := h.ctrl.Refine(context.Background(), refineDoc, initial)
	require.ErrorIs(t, err, boom)
	require.NotNil(t, res)

	assert.False(t, res.Success)
	assert.Equal(t, domain.StopRescoreFailed, res.StopReason)
	assert.Equal(t, refineDoc, res.FinalDocument, "the unscored revision is not adopted")
	assert.Equal(t, initial.OverallScore, res.FinalScore.OverallScore)
	require.Len(t, res.Attempts, 1)
	assert.False(t, res.Attempts[0].Rescored)
	assert.Equal(t, 1, res.Attempts[0].EditsApplied)
	assert.Contains(t, res.WarningReason, "could not be scored")
}

func TestRefine_ReconcileFailure(t *testing.T) {
	rubric := domain.DefaultRubric()
	h := newRefinementHarness(t, testutils.NewMockScorer(), testutils.NewMockDeployer(deployEdits(edit("e1", "alpha", "ALPHA"))))
	h.reconciler.Err = errors.New("overlap resolution failed")

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.Error(t, err)
	assert.Equal(t, domain.StopReconcileFailed, res.StopReason)
	assert.False(t, res.Success)
}

func TestRefine_DeployErrorCountsAsNoEdits(t *testing.T) {
	rubric := domain.DefaultRubric()
	h := newRefinementHarness(t, testutils.NewMockScorer(),
		testutils.NewMockDeployer(testutils.DeployStep{Err: errors.New("all fixers failed")}))

	res, err := h.ctrl.Refine(context.Background(), refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.NoError(t, err)
	assert.Equal(t, domain.StopNoEditsProposed, res.StopReason)
	assert.Len(t, h.sink.Named(domain.EventFixerFailed), 1)
}

func TestRefine_CancelledContext(t *testing.T) {
	rubric := domain.DefaultRubric()
	h := newRefinementHarness(t, testutils.NewMockScorer(), testutils.NewMockDeployer())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.ctrl.Refine(ctx, refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, res.Attempts)
	assert.False(t, res.Success)
	assert.Equal(t, domain.StopCancelled, res.StopReason)
}

func TestRefine_CancelledDuringDeploy(t *testing.T) {
	rubric := domain.DefaultRubric()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	deployer := testutils.NewMockDeployer(testutils.DeployStep{Err: context.Canceled, OnCall: cancel})
	h := newRefinementHarness(t, testutils.NewMockScorer(), deployer)

	res, err := h.ctrl.Refine(ctx, refineDoc, testutils.MustFinalScore(rubric, nil, 6.0))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, domain.StopCancelled, res.StopReason)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, domain.StateAbandon, res.Attempts[0].Outcome)
	assert.Empty(t, h.sink.Named(domain.EventFixerFailed))
}

func TestRefine_TerminatesWithinMaxAttempts(t *testing.T) {
	rubric := domain.DefaultRubric()
	for _, maxAttempts := range []int{1, 2, 5} {
		scorer := testutils.NewMockScorer(testutils.ScoreStep{Score: testutils.MustFinalScore(rubric, nil, 6.0)})
		// The mock reconciler replaces the first "a" each time, so every
		// attempt applies one edit.
		deployer := testutils.NewMockDeployer(deployEdits(edit("e", "a", "A")))
		ctrl, err := NewRefinementController(scorer, deployer, &testutils.MockReconciler{}, nil, rubric,
			RefinementSection{TargetScore: 8, MaxAttempts: maxAttempts}, nil)
		require.NoError(t, err)

		res, err := ctrl.Refine(context.Background(), "a a a a a a", testutils.MustFinalScore(rubric, nil, 5.0))
		require.NoError(t, err)
		assert.Len(t, res.Attempts, maxAttempts)
		assert.False(t, res.Success)
		assert.NotEmpty(t, res.WarningReason)
	}
}

func TestNewRefinementController_Validation(t *testing.T) {
	rubric := domain.DefaultRubric()
	_, err := NewRefinementController(nil, testutils.NewMockDeployer(), &testutils.MockReconciler{}, nil, rubric,
		RefinementSection{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = NewRefinementController(testutils.NewMockScorer(), testutils.NewMockDeployer(), &testutils.MockReconciler{},
		nil, nil, RefinementSection{}, nil)
	assert.Error(t, err)

	h := newRefinementHarness(t, testutils.NewMockScorer(), testutils.NewMockDeployer())
	_, err = h.ctrl.Refine(context.Background(), "", domain.FinalScore{})
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
}
