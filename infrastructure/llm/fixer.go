package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

var _ ports.Fixer = (*Fixer)(nil)

// Fixer is a ports.Fixer backed by an LLM. Unlike the oracle it parses
// leniently: a malformed edit list is repaired before decoding, and edits
// whose original text is empty are dropped.
type Fixer struct {
	client      ports.LLMClient
	temperature float64
	maxTokens   int
}

// NewFixer creates a Fixer over client.
func NewFixer(client ports.LLMClient, temperature float64, maxTokens int) *Fixer {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Fixer{client: client, temperature: temperature, maxTokens: maxTokens}
}

type fixerReply struct {
	Edits []struct {
		OriginalText    string `json:"original_text"`
		ReplacementText string `json:"replacement_text"`
		Rationale       string `json:"rationale"`
	} `json:"edits"`
}

// ProposeFixes implements ports.Fixer.
func (f *Fixer) ProposeFixes(ctx context.Context, req domain.FixRequest) ([]domain.SuggestedEdit, error) {
	prompt, err := BuildFixerPrompt(req)
	if err != nil {
		return nil, err
	}
	raw, err := f.client.Complete(ctx, prompt, map[string]any{
		OptTemperature:    f.temperature,
		OptMaxTokens:      f.maxTokens,
		OptResponseFormat: ResponseFormatJSON,
	})
	if err != nil {
		return nil, ports.NewLLMError(f.client.GetModel(), "propose_fixes", err)
	}
	return ParseFixerReply(req.Dimension.Name, raw)
}

// ParseFixerReply decodes a fixer reply into edits for dimension, repairing
// malformed JSON first.
func ParseFixerReply(dimension, raw string) ([]domain.SuggestedEdit, error) {
	body := extractJSON(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object in fixer reply", ports.ErrInvalidResponse)
	}

	var reply fixerReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(body)
		if rerr != nil {
			return nil, fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err)
		}
		if err := json.Unmarshal([]byte(repaired), &reply); err != nil {
			return nil, fmt.Errorf("%w: repaired reply: %w", ports.ErrInvalidResponse, err)
		}
	}

	edits := make([]domain.SuggestedEdit, 0, len(reply.Edits))
	for _, e := range reply.Edits {
		if strings.TrimSpace(e.OriginalText) == "" {
			continue
		}
		edits = append(edits, domain.SuggestedEdit{
			ID:              uuid.NewString(),
			Dimension:       dimension,
			OriginalText:    e.OriginalText,
			ReplacementText: e.ReplacementText,
			Rationale:       e.Rationale,
		})
	}
	return edits, nil
}
