package domain

import (
	"fmt"
	"math"
)

// Canonical dimension names of the default rubric.
const (
	DimensionClarity          = "clarity"
	DimensionStructure        = "structure"
	DimensionEvidenceQuality  = "evidenceQuality"
	DimensionArgumentStrength = "argumentStrength"
	DimensionCompleteness     = "completeness"
	DimensionOriginality      = "originality"
	DimensionStyle            = "style"
)

// WeightTolerance is the allowed deviation of the summed rubric weights from 1.0.
const WeightTolerance = 0.001

// Score bounds shared by every dimension.
const (
	MinScore = 0.0
	MaxScore = 10.0
)

// ScoringDimension is one weighted axis of the rubric.
type ScoringDimension struct {
	// Name identifies the dimension in oracle requests and responses.
	Name string `json:"name" yaml:"name" validate:"required"`

	// Weight is the dimension's share of the overall score, in (0,1).
	Weight float64 `json:"weight" yaml:"weight" validate:"gt=0,lt=1"`

	// Description is a one-line summary shown to judges.
	Description string `json:"description" yaml:"description"`

	// Guidelines is the scoring guidance text shown to judges.
	Guidelines string `json:"guidelines" yaml:"guidelines"`
}

// Rubric is an immutable, ordered registry of scoring dimensions whose
// weights sum to 1.0. It is safe for concurrent use because it is never
// mutated after construction.
type Rubric struct {
	dimensions []ScoringDimension
	index      map[string]int
}

// NewRubric validates dims and returns a Rubric preserving their order.
// It returns a *ValidationError describing every violated constraint.
func NewRubric(dims []ScoringDimension) (*Rubric, error) {
	verr := NewValidationError("Rubric")
	if len(dims) == 0 {
		verr.AddError("at least one dimension is required")
		return nil, verr
	}

	index := make(map[string]int, len(dims))
	total := 0.0
	for i, d := range dims {
		if d.Name == "" {
			verr.AddError(fmt.Sprintf("dimension %d has an empty name", i))
			continue
		}
		if _, dup := index[d.Name]; dup {
			verr.AddError(fmt.Sprintf("dimension %q is registered twice", d.Name))
			continue
		}
		if d.Weight <= 0 || d.Weight >= 1 {
			verr.AddError(fmt.Sprintf("dimension %q weight %.3f outside (0,1)", d.Name, d.Weight))
		}
		index[d.Name] = i
		total += d.Weight
	}
	if math.Abs(total-1.0) > WeightTolerance {
		verr.AddError(fmt.Sprintf("weights sum to %.4f, want 1.0 ± %.3f", total, WeightTolerance))
	}
	if verr.HasErrors() {
		return nil, verr
	}

	cp := make([]ScoringDimension, len(dims))
	copy(cp, dims)
	return &Rubric{dimensions: cp, index: index}, nil
}

// DefaultRubric returns the seven-dimension long-form document rubric.
func DefaultRubric() *Rubric {
	r, err := NewRubric(defaultDimensions())
	if err != nil {
		panic(fmt.Sprintf("default rubric is invalid: %v", err))
	}
	return r
}

func defaultDimensions() []ScoringDimension {
	return []ScoringDimension{
		{
			Name:        DimensionClarity,
			Weight:      0.15,
			Description: "How easily a reader follows the text.",
			Guidelines:  "Reward precise wording and defined terms. Penalize ambiguity, jargon without explanation and run-on sentences.",
		},
		{
			Name:        DimensionStructure,
			Weight:      0.10,
			Description: "Logical organization of sections and paragraphs.",
			Guidelines:  "Reward a clear progression with signposting. Penalize repetition, buried conclusions and sections out of order.",
		},
		{
			Name:        DimensionEvidenceQuality,
			Weight:      0.20,
			Description: "Quality and relevance of supporting evidence.",
			Guidelines:  "Reward specific, attributable sources and data. Penalize unsupported claims, vague citations and cherry-picked numbers.",
		},
		{
			Name:        DimensionArgumentStrength,
			Weight:      0.20,
			Description: "Soundness of the reasoning.",
			Guidelines:  "Reward valid inference and engagement with counterarguments. Penalize logical gaps and overreaching conclusions.",
		},
		{
			Name:        DimensionCompleteness,
			Weight:      0.15,
			Description: "Coverage of what the topic requires.",
			Guidelines:  "Reward coverage of the key questions a reader would ask. Penalize missing context, scope or limitations.",
		},
		{
			Name:        DimensionOriginality,
			Weight:      0.10,
			Description: "Novelty of insight or framing.",
			Guidelines:  "Reward non-obvious synthesis. Penalize restating common knowledge without adding perspective.",
		},
		{
			Name:        DimensionStyle,
			Weight:      0.10,
			Description: "Tone, voice and mechanics.",
			Guidelines:  "Reward a consistent register suited to the audience. Penalize grammatical errors and distracting tone shifts.",
		},
	}
}

// Dimensions returns a copy of the registered dimensions in rubric order.
func (r *Rubric) Dimensions() []ScoringDimension {
	cp := make([]ScoringDimension, len(r.dimensions))
	copy(cp, r.dimensions)
	return cp
}

// Names returns the dimension names in rubric order.
func (r *Rubric) Names() []string {
	names := make([]string, len(r.dimensions))
	for i, d := range r.dimensions {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of registered dimensions.
func (r *Rubric) Len() int { return len(r.dimensions) }

// Dimension looks up a dimension by name.
func (r *Rubric) Dimension(name string) (ScoringDimension, bool) {
	i, ok := r.index[name]
	if !ok {
		return ScoringDimension{}, false
	}
	return r.dimensions[i], true
}

// Has reports whether name is a registered dimension.
func (r *Rubric) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Weight returns the weight of the named dimension, or zero if unknown.
func (r *Rubric) Weight(name string) float64 {
	d, _ := r.Dimension(name)
	return d.Weight
}

// TotalWeight returns the sum of all dimension weights.
func (r *Rubric) TotalWeight() float64 {
	total := 0.0
	for _, d := range r.dimensions {
		total += d.Weight
	}
	return total
}

// WeightedScore computes round(Σ score·weight / Σ weight, 1) over the
// supplied per-dimension scores. Names missing from the rubric are ignored.
func (r *Rubric) WeightedScore(scores map[string]float64) float64 {
	var sum, weights float64
	for _, d := range r.dimensions {
		s, ok := scores[d.Name]
		if !ok {
			continue
		}
		sum += s * d.Weight
		weights += d.Weight
	}
	if weights == 0 {
		return 0
	}
	return Round1(sum / weights)
}

// Round1 rounds v to one decimal place, half away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ClampScore restricts v to the [MinScore, MaxScore] range.
func ClampScore(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
