package domain

// JudgmentRequest is everything the scoring oracle needs for one call.
type JudgmentRequest struct {
	// Document is the text under evaluation.
	Document string

	// Persona is the stance the oracle should adopt.
	Persona Persona

	// Rubric lists the dimensions that must be scored.
	Rubric *Rubric

	// Phase selects initial scoring, discussion revision or arbitration.
	Phase Phase

	// Strict asks the oracle for a stricter output format after a
	// malformed response.
	Strict bool

	// PriorVerdict is the judge's own verdict from the previous round.
	// Set for discussion requests only.
	PriorVerdict *Verdict

	// PeerVerdicts is a read-only snapshot of the other judges' verdicts.
	PeerVerdicts []Verdict

	// Disagreement describes the disputed dimensions and judge positions.
	Disagreement *DisagreementResult

	// MaxRevision bounds how far a discussion revision may move a score.
	MaxRevision float64
}

// OracleResponse is the decoded payload returned by a scoring oracle.
type OracleResponse struct {
	// Dimensions holds one score per rubric dimension.
	Dimensions []OracleDimensionScore `json:"dimensions" validate:"required,min=1,dive"`

	// Critique is the free-text assessment.
	Critique string `json:"critique"`

	// Issues lists flagged problems.
	Issues []OracleIssue `json:"issues" validate:"dive"`

	// Confidence is required; a missing value makes the response invalid.
	Confidence *float64 `json:"confidence" validate:"required,min=0,max=1"`

	// Resolution is the arbiter's summary of how disputes were settled.
	Resolution string `json:"resolution,omitempty"`
}

// OracleDimensionScore is one dimension entry in an OracleResponse.
type OracleDimensionScore struct {
	Dimension string   `json:"dimension" validate:"required"`
	Score     *float64 `json:"score" validate:"required,min=0,max=10"`
	Reasoning string   `json:"reasoning"`
	Issues    []string `json:"issues,omitempty"`
}

// OracleIssue is one issue entry in an OracleResponse.
type OracleIssue struct {
	Dimension    string `json:"dimension" validate:"required"`
	Severity     string `json:"severity" validate:"required,oneof=low medium high"`
	Description  string `json:"description" validate:"required"`
	Quote        string `json:"quote,omitempty"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}
