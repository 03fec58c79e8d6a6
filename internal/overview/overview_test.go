package overview

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextraction/insight-engine/internal/llm"
)

type fakeLLM struct {
	response string
	err      error
	prompt   string
}

func (f *fakeLLM) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier, temperature float32) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeLLM) GetModel(tier llm.ModelTier) string { return "fake-model" }
func (f *fakeLLM) Close() error                       { return nil }

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("trends text", "a smart bottle", "final text")
	assert.Contains(t, prompt, "trends text")
	assert.Contains(t, prompt, "a smart bottle")
	assert.Contains(t, prompt, "final text")
	assert.Contains(t, prompt, `"Problem"`)
	assert.Contains(t, prompt, `"Unique_selling_point"`)
}

func TestGenerate_ValidJSON(t *testing.T) {
	fake := &fakeLLM{response: `{"Problem": "Dehydration goes unnoticed", "Solution": "Passive tracking"}`}
	gen := NewGenerator(fake)

	overview, err := gen.Generate(context.Background(), "trends", "product", "analysis")
	require.NoError(t, err)
	assert.Equal(t, "Dehydration goes unnoticed", overview["Problem"])
	assert.Equal(t, "Passive tracking", overview["Solution"])
}

func TestGenerate_MalformedJSONFallsBack(t *testing.T) {
	fake := &fakeLLM{response: "the model rambled instead of emitting JSON"}
	gen := NewGenerator(fake)

	overview, err := gen.Generate(context.Background(), "trends", "product", "analysis")
	require.NoError(t, err)
	assert.Equal(t, "the model rambled instead of emitting JSON", overview["error"])
}

func TestGenerate_LLMError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("quota exceeded")}
	gen := NewGenerator(fake)

	_, err := gen.Generate(context.Background(), "trends", "product", "analysis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overview generation failed")
}
