// Package overview produces a founder-facing project overview from the key
// trends report and final analysis.
package overview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nextraction/insight-engine/internal/llm"
	"github.com/nextraction/insight-engine/internal/prompts"
)

// Temperature for overview generation. Higher than the structured stages
// since the overview benefits from some editorial variety.
const Temperature = 0.6

// Generator creates project overviews through an LLM client.
type Generator struct {
	llm llm.Client
}

// NewGenerator creates an overview generator.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{llm: client}
}

// BuildPrompt renders the overview prompt from its three inputs.
func BuildPrompt(keyTrends, productDescription, finalAnalysis string) string {
	template := prompts.MustGet("overview.json", "project-overview")
	return prompts.Format(template, map[string]string{
		"KeyTrends":          keyTrends,
		"ProductDescription": productDescription,
		"FinalAnalysis":      finalAnalysis,
	})
}

// Generate asks the model for the overview JSON object. A malformed JSON
// response is not an error: the raw text is preserved under an "error" key so
// the run can still complete with the rest of its results intact.
func (g *Generator) Generate(ctx context.Context, keyTrends, productDescription, finalAnalysis string) (map[string]any, error) {
	prompt := BuildPrompt(keyTrends, productDescription, finalAnalysis)

	raw, err := g.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced, Temperature)
	if err != nil {
		return nil, fmt.Errorf("overview generation failed: %w", err)
	}

	var overview map[string]any
	if err := json.Unmarshal([]byte(raw), &overview); err != nil {
		return map[string]any{"error": raw}, nil
	}
	return overview, nil
}
