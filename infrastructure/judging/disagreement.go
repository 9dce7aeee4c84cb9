package judging

import (
	"fmt"
	"strings"

	"github.com/ahrav/go-tribunal/internal/domain"
)

// DisagreementDetector measures score spread across a verdict set.
type DisagreementDetector struct {
	rubric    *domain.Rubric
	threshold float64
}

// NewDisagreementDetector creates a detector. A non-positive threshold
// falls back to DefaultDisagreementThreshold.
func NewDisagreementDetector(rubric *domain.Rubric, threshold float64) (*DisagreementDetector, error) {
	if rubric == nil {
		return nil, ErrNilRubric
	}
	if threshold <= 0 {
		threshold = DefaultDisagreementThreshold
	}
	return &DisagreementDetector{rubric: rubric, threshold: threshold}, nil
}

// Threshold returns the spread above which a dimension is disputed.
func (d *DisagreementDetector) Threshold() float64 { return d.threshold }

// Detect computes per-dimension and overall spread across verdicts.
// A dimension is disputed when round1(max-min) exceeds the threshold; the
// overall score is judged by the same rule independently. Fewer than two
// verdicts never disagree. The result does not depend on verdict order
// except for the order of Positions, which follows the input.
func (d *DisagreementDetector) Detect(verdicts []domain.Verdict) domain.DisagreementResult {
	result := domain.DisagreementResult{
		Threshold:          d.threshold,
		DisputedDimensions: []string{},
	}
	if len(verdicts) < 2 {
		return result
	}

	for _, name := range d.rubric.Names() {
		spread := d.spreadOf(verdicts, func(v domain.Verdict) (float64, bool) { return v.Score(name) })
		spread.Dimension = name
		result.Spreads = append(result.Spreads, spread)
		if spread.Spread > result.MaxSpread {
			result.MaxSpread = spread.Spread
		}
		if spread.Disputed {
			result.DisputedDimensions = append(result.DisputedDimensions, name)
		}
	}

	overall := d.spreadOf(verdicts, func(v domain.Verdict) (float64, bool) { return v.OverallScore, true })
	result.OverallSpread = overall.Spread
	result.OverallDisputed = overall.Disputed
	result.HasDisagreement = len(result.DisputedDimensions) > 0 || result.OverallDisputed

	result.Positions = make([]domain.JudgePosition, 0, len(verdicts))
	for _, v := range verdicts {
		pos := domain.JudgePosition{
			Role:         v.Role,
			VerdictID:    v.ID,
			OverallScore: v.OverallScore,
			Disputed:     make([]domain.PositionScore, 0, len(result.DisputedDimensions)),
		}
		for _, name := range result.DisputedDimensions {
			score, _ := v.Score(name)
			pos.Disputed = append(pos.Disputed, domain.PositionScore{Dimension: name, Score: score})
		}
		result.Positions = append(result.Positions, pos)
	}
	return result
}

func (d *DisagreementDetector) spreadOf(verdicts []domain.Verdict, pick func(domain.Verdict) (float64, bool)) domain.DimensionSpread {
	var (
		out  domain.DimensionSpread
		seen bool
	)
	for _, v := range verdicts {
		s, ok := pick(v)
		if !ok {
			continue
		}
		if !seen {
			out.Min, out.Max, seen = s, s, true
			continue
		}
		out.Min = min(out.Min, s)
		out.Max = max(out.Max, s)
	}
	out.Spread = domain.Round1(out.Max - out.Min)
	out.Disputed = out.Spread > d.threshold
	return out
}

// ReviewReason describes a disagreement for human reviewers. It is empty
// when nothing is disputed.
func ReviewReason(dis domain.DisagreementResult) string {
	if !dis.HasDisagreement {
		return ""
	}
	if len(dis.DisputedDimensions) == 0 {
		return fmt.Sprintf("judges disagree on the overall score (spread %.1f)", dis.OverallSpread)
	}
	return fmt.Sprintf("judges disagree on %s (max spread %.1f)", strings.Join(dis.DisputedDimensions, ", "), dis.MaxSpread)
}
