package domain

import (
	"sort"
	"time"
)

// DimensionSpread is the min/max/spread of one dimension across a verdict set.
type DimensionSpread struct {
	Dimension string  `json:"dimension"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Spread    float64 `json:"spread"`
	Disputed  bool    `json:"disputed"`
}

// PositionScore is one judge's score on one disputed dimension.
type PositionScore struct {
	Dimension string  `json:"dimension"`
	Score     float64 `json:"score"`
}

// JudgePosition captures a judge's stance on the disputed dimensions.
// Discussion and tiebreak prompts are built from these.
type JudgePosition struct {
	Role         JudgeRole       `json:"role"`
	VerdictID    string          `json:"verdict_id"`
	OverallScore float64         `json:"overall_score"`
	Disputed     []PositionScore `json:"disputed"`
}

// DisagreementResult is the output of spread analysis over one round.
type DisagreementResult struct {
	// HasDisagreement is true when any dimension or the overall score is disputed.
	HasDisagreement bool `json:"has_disagreement"`

	// DisputedDimensions lists disputed dimensions in rubric order.
	DisputedDimensions []string `json:"disputed_dimensions"`

	// MaxSpread is the largest per-dimension spread.
	MaxSpread float64 `json:"max_spread"`

	// OverallSpread is the spread of the verdicts' overall scores.
	OverallSpread float64 `json:"overall_spread"`

	// OverallDisputed is true when OverallSpread exceeds the threshold.
	OverallDisputed bool `json:"overall_disputed"`

	// Threshold is the spread above which a dimension is disputed.
	Threshold float64 `json:"threshold"`

	// Spreads lists every dimension in rubric order.
	Spreads []DimensionSpread `json:"spreads"`

	// Positions lists each judge's scores on the disputed dimensions.
	Positions []JudgePosition `json:"positions"`
}

// IsDisputed reports whether dimension is in the disputed set.
func (d DisagreementResult) IsDisputed(dimension string) bool {
	for _, name := range d.DisputedDimensions {
		if name == dimension {
			return true
		}
	}
	return false
}

// ConsensusMethod names the aggregation rule that produced a FinalScore.
type ConsensusMethod string

// Consensus methods, in selection priority order.
const (
	ConsensusTiebreaker     ConsensusMethod = "tiebreaker"
	ConsensusPostDiscussion ConsensusMethod = "post-discussion"
	ConsensusMedian         ConsensusMethod = "median"
)

// DimensionResult is the consensus score for one dimension.
type DimensionResult struct {
	Dimension     string    `json:"dimension"`
	Weight        float64   `json:"weight"`
	Score         float64   `json:"score"`
	Disputed      bool      `json:"disputed"`
	PrimaryScores []float64 `json:"primary_scores"`
	ArbiterScore  *float64  `json:"arbiter_score,omitempty"`
}

// FinalScore is the consensus output of one evaluation round.
type FinalScore struct {
	// OverallScore is round(Σ score·weight / Σ weight, 1) over Breakdown.
	OverallScore float64 `json:"overall_score"`

	// Breakdown lists every dimension in rubric order.
	Breakdown []DimensionResult `json:"breakdown"`

	// Critique concatenates every contributing judge's critique, role-labelled.
	Critique string `json:"critique"`

	// Confidence is the mean confidence of the contributing verdicts.
	Confidence float64 `json:"confidence"`

	// Verdicts holds the primary verdicts that contributed.
	Verdicts []Verdict `json:"verdicts"`

	// ArbiterVerdict is set when a tiebreak ran.
	ArbiterVerdict *Verdict `json:"arbiter_verdict,omitempty"`

	// Method names the aggregation rule used.
	Method ConsensusMethod `json:"consensus_method"`

	// HasDisagreement reflects the disagreement state used for aggregation.
	HasDisagreement bool `json:"has_disagreement"`

	// NeedsHumanReview is set when the arbiter had to settle a dispute.
	NeedsHumanReview bool `json:"needs_human_review"`

	// ReviewReason explains why human review is needed.
	ReviewReason string `json:"review_reason,omitempty"`

	// DegradedPanel is set when a quorum policy accepted fewer judges.
	DegradedPanel bool `json:"degraded_panel,omitempty"`

	// Timestamp records when the score was produced.
	Timestamp time.Time `json:"timestamp"`
}

// AllVerdicts returns the primary verdicts followed by the arbiter verdict.
func (f FinalScore) AllVerdicts() []Verdict {
	out := make([]Verdict, 0, len(f.Verdicts)+1)
	out = append(out, f.Verdicts...)
	if f.ArbiterVerdict != nil {
		out = append(out, *f.ArbiterVerdict)
	}
	return out
}

// DimensionScore returns the consensus score for the named dimension.
func (f FinalScore) DimensionScore(dimension string) (float64, bool) {
	for _, d := range f.Breakdown {
		if d.Dimension == dimension {
			return d.Score, true
		}
	}
	return 0, false
}

// LowestDimensions returns up to n dimensions ordered from lowest score.
// Ties keep rubric order.
func (f FinalScore) LowestDimensions(n int) []DimensionResult {
	sorted := make([]DimensionResult, len(f.Breakdown))
	copy(sorted, f.Breakdown)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Median returns the median of values, averaging the middle pair for even
// counts. It returns 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
