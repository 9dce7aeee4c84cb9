package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/ports"
)

// Prompt fragments that identify the two kinds of request the engine sends.
const (
	PatternJudge = "Reply with JSON of this shape"
	PatternFixer = "Propose targeted edits"
)

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)

// MockResponse is a canned reply selected by substring match on the prompt.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt and the
	// "system" option. An empty pattern matches every prompt.
	Pattern string
	// Response is returned for matching prompts.
	Response string
	// Err, when set, is returned instead of Response.
	Err error
	// Reply computes the response from the prompt and takes precedence
	// over Response.
	Reply func(prompt string) string
}

// MockCall records one Complete invocation.
type MockCall struct {
	Prompt  string
	Options map[string]any
}

// MockLLMClient is a deterministic ports.LLMClient for exercising the real
// oracle and fixer adapters. Responses are tried newest first; the defaults
// score every default rubric dimension 7 and propose no edits.
type MockLLMClient struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	calls     []MockCall
}

// NewMockLLMClient creates a MockLLMClient with the default responses.
func NewMockLLMClient(model string) *MockLLMClient {
	m := &MockLLMClient{model: model}
	m.setupDefaultResponses()
	return m
}

func (m *MockLLMClient) setupDefaultResponses() {
	m.responses = []MockResponse{
		{Pattern: PatternFixer, Response: `{"edits":[]}`},
		{Pattern: PatternJudge, Response: JudgeReply(UniformResponse(domain.DefaultRubric(), 7, 0.8))},
	}
}

// AddResponse installs r ahead of every earlier response.
func (m *MockLLMClient) AddResponse(r MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append([]MockResponse{r}, m.responses...)
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if prompt == "" {
		return "", errors.New("prompt cannot be empty")
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: options})
	r, ok := m.match(prompt, options)
	m.mu.Unlock()

	if !ok {
		return "", errors.New("no mock response matches prompt")
	}
	if r.Err != nil {
		return "", r.Err
	}
	if r.Reply != nil {
		return r.Reply(prompt), nil
	}
	return r.Response, nil
}

func (m *MockLLMClient) match(prompt string, options map[string]any) (MockResponse, bool) {
	text := strings.ToLower(prompt)
	if system, ok := options["system"].(string); ok {
		text = strings.ToLower(system) + "\n" + text
	}
	for _, r := range m.responses {
		if strings.Contains(text, strings.ToLower(r.Pattern)) {
			return r, true
		}
	}
	return MockResponse{}, false
}

// EstimateTokens implements ports.LLMClient at roughly four characters per
// token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(len(text)/4, 1), nil
}

// GetModel implements ports.LLMClient.
func (m *MockLLMClient) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel updates the mock model identifier.
func (m *MockLLMClient) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// Calls returns a copy of every recorded call.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount counts recorded prompts containing pattern.
func (m *MockLLMClient) CallCount(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.Contains(strings.ToLower(c.Prompt), strings.ToLower(pattern)) {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and custom responses.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.setupDefaultResponses()
}

// JudgeReply renders resp as the JSON a judge model would send.
func JudgeReply(resp domain.OracleResponse) string {
	b, err := json.Marshal(resp)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// FixerReply renders edits as the JSON a fixer model would send.
func FixerReply(edits ...domain.SuggestedEdit) string {
	type edit struct {
		OriginalText    string `json:"original_text"`
		ReplacementText string `json:"replacement_text"`
		Rationale       string `json:"rationale"`
	}
	out := struct {
		Edits []edit `json:"edits"`
	}{Edits: make([]edit, 0, len(edits))}
	for _, e := range edits {
		out.Edits = append(out.Edits, edit{e.OriginalText, e.ReplacementText, e.Rationale})
	}
	b, err := json.Marshal(out)
	if err != nil {
		panic(err)
	}
	return string(b)
}
