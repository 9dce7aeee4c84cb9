package application

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-tribunal/infrastructure/llm"
	"github.com/ahrav/go-tribunal/internal/domain"
	"github.com/ahrav/go-tribunal/internal/testutils"
)

// TestMultiProvider_JudgesAndFixersOnSeparateModels routes the panel and the
// fixers to different providers through one registry and checks that each
// model only sees its own kind of request.
func TestMultiProvider_JudgesAndFixersOnSeparateModels(t *testing.T) {
	rubric := domain.DefaultRubric()
	cfg := testConfig()
	cfg.LLM.Model = "anthropic/claude-4-sonnet"
	cfg.LLM.FixerModel = "openai/gpt-4.1-mini"
	require.NoError(t, cfg.Validate())

	judgeModel := testutils.NewMockLLMClient("claude-4-sonnet")
	judgeModel.AddResponse(testutils.MockResponse{
		Pattern: testutils.PatternJudge,
		Reply: func(prompt string) string {
			if strings.Contains(prompt, "Owner: platform team") {
				return testutils.JudgeReply(testutils.UniformResponse(rubric, 8.2, 0.9))
			}
			return testutils.JudgeReply(testutils.UniformResponse(rubric, 6, 0.8))
		},
	})
	fixerModel := testutils.NewMockLLMClient("gpt-4.1-mini")
	fixerModel.AddResponse(testutils.MockResponse{
		Pattern: testutils.PatternFixer,
		Response: testutils.FixerReply(domain.SuggestedEdit{
			OriginalText:    "Owner: TBD",
			ReplacementText: "Owner: platform team",
		}),
	})

	registry := llm.NewRegistry(llm.RegistryConfig{LookupEnv: func(string) (string, bool) { return "", false }})
	require.NoError(t, registry.Register(cfg.LLM.Model, judgeModel))
	require.NoError(t, registry.Register(cfg.LLM.FixerModel, fixerModel))

	judgeClient, err := registry.GetClient(cfg.LLM.Model)
	require.NoError(t, err)
	fixerClient, err := registry.GetClient(cfg.LLM.FixerModel)
	require.NoError(t, err)
	require.Same(t, judgeModel, judgeClient)
	require.Same(t, fixerModel, fixerClient)

	p := newPipeline(t, cfg, judgeModel, fixerModel)
	doc := "Migration runbook.\nOwner: TBD\nRollback: restore the snapshot."

	initial, err := p.evaluator.Score(context.Background(), doc)
	require.NoError(t, err)
	res, err := p.refiner.Refine(context.Background(), doc, initial)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Contains(t, res.FinalDocument, "Owner: platform team")

	assert.Zero(t, judgeModel.CallCount(testutils.PatternFixer))
	assert.Equal(t, 6, judgeModel.CallCount(testutils.PatternJudge))
	assert.Zero(t, fixerModel.CallCount(testutils.PatternJudge))
	assert.Equal(t, rubric.Len(), fixerModel.CallCount(testutils.PatternFixer))
}

func TestMultiProvider_UnregisteredModelNeedsAPIKey(t *testing.T) {
	registry := llm.NewRegistry(llm.RegistryConfig{LookupEnv: func(string) (string, bool) { return "", false }})
	require.NoError(t, registry.Register("anthropic/claude-4-sonnet", testutils.NewMockLLMClient("claude-4-sonnet")))

	_, err := registry.GetClient("anthropic/claude-4-sonnet")
	require.NoError(t, err)

	_, err = registry.GetClient("google/gemini-2.5-pro")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOOGLE_API_KEY")
}
