package llm

import (
	"context"
	"errors"
	"math"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when no model is configured.
const GoogleDefaultModel = "gemini-2.5-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

type googleProvider struct {
	BaseProvider
	client *genai.Client
}

func newGoogleProvider(cfg ClientConfig) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	gc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		base, err := ValidateBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		gc.HTTPOptions.BaseURL = base
	}

	client, err := genai.NewClient(context.Background(), gc)
	if err != nil {
		return nil, err
	}
	return &googleProvider{BaseProvider: BaseProvider{model: model}, client: client}, nil
}

// DoRequest implements CoreLLM.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := ParseRequestOptions(opts, p.GetModel())

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, ro.Model, contents, generationConfig(ro))
	if err != nil {
		return "", 0, 0, p.classify(err)
	}

	out := resp.Text()
	if out == "" {
		return "", 0, 0, NewProviderError("google", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	var in, outTokens int32
	if u := resp.UsageMetadata; u != nil {
		in, outTokens = u.PromptTokenCount, u.CandidatesTokenCount
	}
	return out, tokenCount(in, prompt), tokenCount(outTokens, out), nil
}

func generationConfig(ro RequestOptions) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(min(ro.MaxTokens, math.MaxInt32)),
	}
	if ro.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(ro.System, genai.RoleUser)
	}
	if ro.Temperature != nil {
		gc.Temperature = genai.Ptr(float32(*ro.Temperature))
	}
	if ro.TopP != nil {
		gc.TopP = genai.Ptr(float32(*ro.TopP))
	}
	if ro.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	if k, ok := lookup[int](ro.Extra, "top_k", nil); ok {
		gc.TopK = genai.Ptr(float32(clamp(k, 1, 40)))
	}
	return gc
}

func (p *googleProvider) classify(err error) error {
	if ce := contextError("google", err); ce != nil {
		return ce
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if blockedBySafety(apiErr) {
			return NewProviderError("google", ErrorTypeContentPolicy, apiErr.Code, "request blocked by safety filters", err)
		}
		msg := apiErr.Message
		if msg == "" && len(apiErr.Errors) > 0 {
			msg = apiErr.Errors[0].Message
		}
		return httpError("google", apiErr.Code, msg, err)
	}
	return NewProviderError("google", ErrorTypeNetwork, 0, "request failed", err)
}

func blockedBySafety(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		if e.Reason == "SAFETY" || e.Reason == "BLOCKED" {
			return true
		}
	}
	lower := strings.ToLower(apiErr.Message)
	return strings.Contains(lower, "safety") || strings.Contains(lower, "blocked")
}
