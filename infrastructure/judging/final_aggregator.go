package judging

import (
	"fmt"
	"strings"
	"time"

	"github.com/ahrav/go-tribunal/internal/domain"
)

// DefaultDegradedPenalty is subtracted from confidence when a quorum panel
// ran below full strength.
const DefaultDegradedPenalty = 0.1

// AggregationInput is everything the final aggregator consumes.
type AggregationInput struct {
	// Verdicts are the latest primary verdicts.
	Verdicts []domain.Verdict

	// Disagreement is the disagreement state after the last round, if computed.
	Disagreement *domain.DisagreementResult

	// Arbiter is the tiebreak verdict, if one ran.
	Arbiter *domain.Verdict

	// DiscussionOccurred is set when a discussion round produced Verdicts.
	DiscussionOccurred bool

	// Degraded is set when a quorum policy dropped a judge.
	Degraded bool

	// Timestamp stamps the FinalScore; zero uses the aggregator clock.
	Timestamp time.Time
}

// AggregatorOption configures a FinalAggregator.
type AggregatorOption func(*FinalAggregator)

// WithArbiterWeight overrides the arbiter's weight on disputed dimensions.
func WithArbiterWeight(w float64) AggregatorOption {
	return func(a *FinalAggregator) {
		if w > 0 {
			a.arbiterWeight = w
		}
	}
}

// WithDegradedPenalty overrides the confidence penalty for degraded panels.
func WithDegradedPenalty(p float64) AggregatorOption {
	return func(a *FinalAggregator) {
		if p >= 0 {
			a.degradedPenalty = p
		}
	}
}

// WithAggregatorClock overrides the timestamp source.
func WithAggregatorClock(now func() time.Time) AggregatorOption {
	return func(a *FinalAggregator) { a.now = now }
}

// FinalAggregator turns a verdict set into a consensus FinalScore. Apart
// from the clock it is a pure function of its input.
type FinalAggregator struct {
	rubric          *domain.Rubric
	arbiterWeight   float64
	degradedPenalty float64
	now             func() time.Time
}

// NewFinalAggregator creates a FinalAggregator.
func NewFinalAggregator(rubric *domain.Rubric, opts ...AggregatorOption) (*FinalAggregator, error) {
	if rubric == nil {
		return nil, ErrNilRubric
	}
	a := &FinalAggregator{
		rubric:          rubric,
		arbiterWeight:   DefaultArbiterWeight,
		degradedPenalty: DefaultDegradedPenalty,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Aggregate selects the consensus method and computes the breakdown.
//
// Method priority: tiebreaker when an arbiter verdict is present and
// disagreement holds; post-discussion when a discussion round ran; median
// otherwise. Under tiebreaker each disputed dimension scores
// (Σ primary + w·arbiter)/(N + w); every other dimension takes the median
// of the primary scores.
func (a *FinalAggregator) Aggregate(in AggregationInput) (domain.FinalScore, error) {
	if len(in.Verdicts) == 0 {
		return domain.FinalScore{}, domain.ErrNoVerdicts
	}

	var dis domain.DisagreementResult
	if in.Disagreement != nil {
		dis = *in.Disagreement
	}

	method := domain.ConsensusMedian
	arbiter := in.Arbiter
	switch {
	case arbiter != nil && dis.HasDisagreement:
		method = domain.ConsensusTiebreaker
	case in.DiscussionOccurred:
		method = domain.ConsensusPostDiscussion
	}
	if method != domain.ConsensusTiebreaker {
		arbiter = nil
	}

	breakdown := make([]domain.DimensionResult, 0, a.rubric.Len())
	scores := make(map[string]float64, a.rubric.Len())
	for _, dim := range a.rubric.Dimensions() {
		primary := make([]float64, 0, len(in.Verdicts))
		for _, v := range in.Verdicts {
			if s, ok := v.Score(dim.Name); ok {
				primary = append(primary, s)
			}
		}
		if len(primary) == 0 {
			return domain.FinalScore{}, fmt.Errorf("no verdict scored dimension %q", dim.Name)
		}

		res := domain.DimensionResult{
			Dimension:     dim.Name,
			Weight:        dim.Weight,
			Disputed:      dis.IsDisputed(dim.Name),
			PrimaryScores: primary,
		}
		if arbiter != nil && res.Disputed {
			as, ok := arbiter.Score(dim.Name)
			if !ok {
				return domain.FinalScore{}, fmt.Errorf("arbiter did not score disputed dimension %q", dim.Name)
			}
			res.ArbiterScore = &as
			res.Score = domain.Round1(a.weightedWithArbiter(primary, as))
		} else {
			res.Score = domain.Round1(domain.Median(primary))
		}
		breakdown = append(breakdown, res)
		scores[dim.Name] = res.Score
	}

	contributing := in.Verdicts
	if arbiter != nil {
		contributing = append(append([]domain.Verdict(nil), in.Verdicts...), *arbiter)
	}

	final := domain.FinalScore{
		OverallScore:    a.rubric.WeightedScore(scores),
		Breakdown:       breakdown,
		Critique:        a.critique(in.Verdicts, arbiter, dis),
		Confidence:      a.confidence(contributing, in.Degraded),
		Verdicts:        append([]domain.Verdict(nil), in.Verdicts...),
		ArbiterVerdict:  arbiter,
		Method:          method,
		HasDisagreement: dis.HasDisagreement,
		DegradedPanel:   in.Degraded,
		Timestamp:       in.Timestamp,
	}
	if method == domain.ConsensusTiebreaker {
		final.NeedsHumanReview = true
		final.ReviewReason = ReviewReason(dis)
	}
	if final.Timestamp.IsZero() {
		final.Timestamp = a.now()
	}
	return final, nil
}

func (a *FinalAggregator) weightedWithArbiter(primary []float64, arbiter float64) float64 {
	var sum float64
	for _, s := range primary {
		sum += s
	}
	return (sum + arbiter*a.arbiterWeight) / (float64(len(primary)) + a.arbiterWeight)
}

func (a *FinalAggregator) confidence(verdicts []domain.Verdict, degraded bool) float64 {
	var sum float64
	for _, v := range verdicts {
		sum += v.Confidence
	}
	c := sum / float64(len(verdicts))
	if degraded {
		c -= a.degradedPenalty
	}
	return max(c, 0)
}

// critique concatenates each judge's critique under a role label. Disputed
// dimensions get the arbiter's reasoning under a TIEBREAKER annotation.
func (a *FinalAggregator) critique(verdicts []domain.Verdict, arbiter *domain.Verdict, dis domain.DisagreementResult) string {
	sections := make([]string, 0, len(verdicts)+1)
	for _, v := range verdicts {
		sections = append(sections, fmt.Sprintf("[%s] %s", strings.ToUpper(string(v.Role)), strings.TrimSpace(v.Critique)))
	}
	if arbiter != nil {
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] %s", strings.ToUpper(string(arbiter.Role)), strings.TrimSpace(arbiter.Critique))
		for _, name := range dis.DisputedDimensions {
			ds, ok := arbiter.DimensionScore(name)
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "\nTIEBREAKER %s (%.1f): %s", name, ds.Score, strings.TrimSpace(ds.Reasoning))
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n")
}
