package domain

// Priority labels a deduplicated issue for triage.
type Priority string

// Priority labels from most to least urgent.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// PriorityForScore maps a priority score onto its label:
// ≥8 critical, ≥5 high, ≥3 medium, otherwise low.
func PriorityForScore(score float64) Priority {
	switch {
	case score >= 8:
		return PriorityCritical
	case score >= 5:
		return PriorityHigh
	case score >= 3:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// PrioritizedIssue is a deduplicated, ranked issue merged across judges.
type PrioritizedIssue struct {
	Dimension          string      `json:"dimension"`
	Issue              string      `json:"issue"`
	SuggestedFix       string      `json:"suggested_fix,omitempty"`
	Priority           Priority    `json:"priority"`
	PriorityScore      float64     `json:"priority_score"`
	Severity           Severity    `json:"severity"`
	Quote              string      `json:"quote,omitempty"`
	AgreedByEvaluators int         `json:"agreed_by_evaluators"`
	RaisedBy           []JudgeRole `json:"raised_by"`
	Occurrences        int         `json:"occurrences"`
}

// CritiqueReport is the output of the critique aggregator.
type CritiqueReport struct {
	// Issues holds at most the configured number of issues, highest priority first.
	Issues []PrioritizedIssue `json:"issues"`

	// Summary counts issues per priority tier.
	Summary string `json:"summary"`

	// TopPriority is the highest-ranked issue, if any.
	TopPriority *PrioritizedIssue `json:"top_priority,omitempty"`

	// TotalRaised counts raw issues before deduplication.
	TotalRaised int `json:"total_raised"`
}

// ForDimension returns the report's issues for one dimension, in rank order.
func (r CritiqueReport) ForDimension(dimension string) []PrioritizedIssue {
	var out []PrioritizedIssue
	for _, is := range r.Issues {
		if is.Dimension == dimension {
			out = append(out, is)
		}
	}
	return out
}
