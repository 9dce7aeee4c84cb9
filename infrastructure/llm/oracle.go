package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.ScoringOracle = (*Oracle)(nil)

// Oracle is a ports.ScoringOracle backed by an LLM. It renders the judge
// prompt, asks for JSON and decodes the reply strictly, rejecting unknown
// fields. Schema checks are left to the judge runner.
type Oracle struct {
	client      ports.LLMClient
	temperature *float64
	maxTokens   int
}

// OracleOption configures an Oracle.
type OracleOption func(*Oracle)

// WithOracleTemperature sets the sampling temperature for judge calls.
func WithOracleTemperature(t float64) OracleOption {
	return func(o *Oracle) { o.temperature = &t }
}

// WithOracleMaxTokens caps the response length of judge calls.
func WithOracleMaxTokens(n int) OracleOption {
	return func(o *Oracle) { o.maxTokens = n }
}

// NewOracle creates an Oracle over client.
func NewOracle(client ports.LLMClient, opts ...OracleOption) *Oracle {
	o := &Oracle{client: client, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ScoreDocument implements ports.ScoringOracle.
func (o *Oracle) ScoreDocument(ctx context.Context, req domain.JudgmentRequest) (domain.OracleResponse, error) {
	system, prompt, err := BuildJudgePrompt(req)
	if err != nil {
		return domain.OracleResponse{}, err
	}

	opts := map[string]any{
		OptSystem:         system,
		OptMaxTokens:      o.maxTokens,
		OptResponseFormat: ResponseFormatJSON,
	}
	if o.temperature != nil {
		opts[OptTemperature] = *o.temperature
	}
	// A strict retry runs cold to cut formatting drift.
	if req.Strict {
		opts[OptTemperature] = 0.0
	}

	raw, err := o.client.Complete(ctx, prompt, opts)
	if err != nil {
		return domain.OracleResponse{}, ports.NewLLMError(o.client.GetModel(), "score_document", err)
	}
	return DecodeOracleResponse(raw)
}

// DecodeOracleResponse decodes a judge reply. Keys outside the reply shape
// are ignored; structural validity is decided by the judge runner against
// the rubric. Failures wrap ports.ErrInvalidResponse.
func DecodeOracleResponse(raw string) (domain.OracleResponse, error) {
	var resp domain.OracleResponse
	body := extractJSON(raw)
	if body == "" {
		return resp, fmt.Errorf("%w: no JSON object in %d byte reply", ports.ErrInvalidResponse, len(raw))
	}

	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		return domain.OracleResponse{}, fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err)
	}
	return resp, nil
}

// extractJSON returns the JSON object in s, unwrapping a markdown fence when
// present. It returns "" when s holds no object.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "```"); start >= 0 {
		rest := s[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			if inner := strings.TrimSpace(rest[:end]); strings.HasPrefix(inner, "{") {
				return inner
			}
		}
	}

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	end := matchingBrace(s[start:])
	if end < 0 {
		// Unbalanced; hand the tail to the decoder so the error names the fault.
		return s[start:]
	}
	return s[start : start+end+1]
}

// matchingBrace returns the index of the brace closing s[0], skipping braces
// inside JSON strings, or -1.
func matchingBrace(s string) int {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
