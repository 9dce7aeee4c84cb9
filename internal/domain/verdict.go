package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JudgeRole enumerates the personas a judge can evaluate under.
type JudgeRole string

// Supported judge roles. The first three form the primary panel.
const (
	RoleSkeptic    JudgeRole = "skeptic"
	RoleAdvocate   JudgeRole = "advocate"
	RoleGeneralist JudgeRole = "generalist"
	RoleArbiter    JudgeRole = "arbiter"
)

// String returns the role identifier.
func (r JudgeRole) String() string { return string(r) }

// IsPrimary reports whether the role belongs to the primary panel.
func (r JudgeRole) IsPrimary() bool {
	switch r {
	case RoleSkeptic, RoleAdvocate, RoleGeneralist:
		return true
	default:
		return false
	}
}

// Phase identifies which round of the evaluation protocol produced a Verdict.
type Phase string

// Evaluation phases.
const (
	PhaseInitial    Phase = "initial"
	PhaseDiscussion Phase = "discussion"
	PhaseTiebreak   Phase = "tiebreak"
)

// Severity grades how serious an Issue is.
type Severity string

// Issue severities, lowest to highest.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Score maps the severity onto the 1..3 scale used for prioritization.
// Unknown severities score as low.
func (s Severity) Score() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// DimensionScore is one judge's score on one rubric dimension.
type DimensionScore struct {
	// Dimension is the rubric dimension name.
	Dimension string `json:"dimension"`

	// Score lies in [0,10] with one decimal of precision.
	Score float64 `json:"score"`

	// Reasoning explains the score.
	Reasoning string `json:"reasoning"`

	// Issues lists short problem descriptions for this dimension.
	Issues []string `json:"issues,omitempty"`
}

// Issue is a problem flagged by a judge.
type Issue struct {
	Dimension    string   `json:"dimension"`
	Severity     Severity `json:"severity"`
	Description  string   `json:"description"`
	Quote        string   `json:"quote,omitempty"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
}

// Verdict is one judge's complete assessment for one round.
// Verdicts are values: a revision produces a new Verdict with the same Role.
type Verdict struct {
	// ID uniquely identifies this verdict.
	ID string `json:"id"`

	// Role is the persona that produced the verdict.
	Role JudgeRole `json:"role"`

	// Phase is the protocol round that produced the verdict.
	Phase Phase `json:"phase"`

	// Scores holds exactly one entry per rubric dimension, in rubric order.
	Scores []DimensionScore `json:"dimensions"`

	// OverallScore is round(Σ score·weight / Σ weight, 1).
	OverallScore float64 `json:"overall_score"`

	// Critique is the judge's free-text assessment.
	Critique string `json:"critique"`

	// Issues lists every problem the judge flagged.
	Issues []Issue `json:"issues,omitempty"`

	// Confidence is the judge's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// Timestamp records when the verdict was produced.
	Timestamp time.Time `json:"timestamp"`
}

// VerdictInput carries the raw material for NewVerdict.
type VerdictInput struct {
	Role       JudgeRole
	Phase      Phase
	Scores     []DimensionScore
	Critique   string
	Issues     []Issue
	Confidence float64
	Timestamp  time.Time
}

// NewVerdict validates in against rubric and builds a Verdict whose scores
// follow rubric order and whose OverallScore is derived from the weights.
// Every registered dimension must appear exactly once.
func NewVerdict(rubric *Rubric, in VerdictInput) (Verdict, error) {
	verr := NewValidationError("Verdict")
	byName := make(map[string]DimensionScore, len(in.Scores))
	for _, s := range in.Scores {
		switch {
		case !rubric.Has(s.Dimension):
			verr.AddError(fmt.Sprintf("unknown dimension %q", s.Dimension))
		case hasKey(byName, s.Dimension):
			verr.AddError(fmt.Sprintf("dimension %q scored more than once", s.Dimension))
		case s.Score < MinScore || s.Score > MaxScore:
			verr.AddError(fmt.Sprintf("dimension %q score %.2f outside [0,10]", s.Dimension, s.Score))
		default:
			byName[s.Dimension] = s
		}
	}
	for _, name := range rubric.Names() {
		if _, ok := byName[name]; !ok && !containsDimension(in.Scores, name) {
			verr.AddError(fmt.Sprintf("missing dimension %q", name))
		}
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		verr.AddError(fmt.Sprintf("confidence %.3f outside [0,1]", in.Confidence))
	}
	if verr.HasErrors() {
		return Verdict{}, verr
	}

	scores := make([]DimensionScore, 0, rubric.Len())
	values := make(map[string]float64, rubric.Len())
	for _, name := range rubric.Names() {
		s := byName[name]
		s.Score = Round1(s.Score)
		scores = append(scores, s)
		values[name] = s.Score
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Verdict{
		ID:           uuid.NewString(),
		Role:         in.Role,
		Phase:        in.Phase,
		Scores:       scores,
		OverallScore: rubric.WeightedScore(values),
		Critique:     in.Critique,
		Issues:       in.Issues,
		Confidence:   in.Confidence,
		Timestamp:    ts,
	}, nil
}

// Score returns the verdict's score for the named dimension.
func (v Verdict) Score(dimension string) (float64, bool) {
	for _, s := range v.Scores {
		if s.Dimension == dimension {
			return s.Score, true
		}
	}
	return 0, false
}

// DimensionScore returns the full score entry for the named dimension.
func (v Verdict) DimensionScore(dimension string) (DimensionScore, bool) {
	for _, s := range v.Scores {
		if s.Dimension == dimension {
			return s, true
		}
	}
	return DimensionScore{}, false
}

// ScoreMap returns the verdict's scores keyed by dimension.
func (v Verdict) ScoreMap() map[string]float64 {
	m := make(map[string]float64, len(v.Scores))
	for _, s := range v.Scores {
		m[s.Dimension] = s.Score
	}
	return m
}

func hasKey(m map[string]DimensionScore, k string) bool {
	_, ok := m[k]
	return ok
}

func containsDimension(scores []DimensionScore, name string) bool {
	for _, s := range scores {
		if s.Dimension == name {
			return true
		}
	}
	return false
}
