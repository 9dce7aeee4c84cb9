package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when no model is configured.
const OpenAIDefaultModel = "gpt-4.1"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

type openAIProvider struct {
	BaseProvider
	client *openai.Client
}

func newOpenAIProvider(cfg ClientConfig) (CoreLLM, error) {
	if cfg.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		base, err := ValidateBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		oc.BaseURL = base
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: ClampTimeout(cfg.Timeout)}
	}

	return &openAIProvider{
		BaseProvider: BaseProvider{model: model},
		client:       openai.NewClientWithConfig(oc),
	}, nil
}

// DoRequest implements CoreLLM.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	ro := ParseRequestOptions(opts, p.GetModel())

	resp, err := p.client.CreateChatCompletion(ctx, chatRequest(prompt, ro))
	if err != nil {
		return "", 0, 0, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrNoResponseChoice)
	}
	out := resp.Choices[0].Message.Content
	if out == "" {
		return "", 0, 0, NewProviderError("openai", ErrorTypeUnknown, 0, "", ErrEmptyResponse)
	}
	return out, tokenCount(resp.Usage.PromptTokens, prompt), tokenCount(resp.Usage.CompletionTokens, out), nil
}

func chatRequest(prompt string, ro RequestOptions) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if ro.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: ro.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	req := openai.ChatCompletionRequest{
		Model:     ro.Model,
		Messages:  msgs,
		MaxTokens: ro.MaxTokens,
	}
	if ro.Temperature != nil {
		req.Temperature = float32(*ro.Temperature)
	}
	if ro.TopP != nil {
		req.TopP = float32(*ro.TopP)
	}
	if ro.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if v, ok := lookup(ro.Extra, "frequency_penalty", inRange(-2, 2)); ok {
		req.FrequencyPenalty = float32(v)
	}
	if v, ok := lookup(ro.Extra, "presence_penalty", inRange(-2, 2)); ok {
		req.PresencePenalty = float32(v)
	}
	return req
}

func (p *openAIProvider) classify(err error) error {
	if ce := contextError("openai", err); ce != nil {
		return ce
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return httpError("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return httpError("openai", reqErr.HTTPStatusCode, "", err)
	}
	return NewProviderError("openai", ErrorTypeNetwork, 0, "request failed", err)
}
