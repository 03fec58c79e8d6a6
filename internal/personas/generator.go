// Package personas turns a final analysis into a set of realistic consumer
// personas, each with card details and an in-character system prompt.
package personas

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nextraction/insight-engine/internal/llm"
	"github.com/nextraction/insight-engine/internal/prompts"
	"github.com/nextraction/insight-engine/internal/types"
)

// DefaultCount is how many personas a run generates.
const DefaultCount = 4

//go:embed schema.json
var personaSchema string

// Generator creates personas through an LLM client.
type Generator struct {
	llm llm.Client
}

// NewGenerator creates a persona generator.
func NewGenerator(client llm.Client) *Generator {
	return &Generator{llm: client}
}

// Generate asks the model for count personas grounded in the product
// description and final analysis, validates the returned JSON array, and
// assembles full persona records. Personas are the pipeline's terminal
// deliverable, so any malformed or empty result is an error.
func (g *Generator) Generate(ctx context.Context, productDescription, finalAnalysis string, count int) ([]types.Persona, error) {
	if count <= 0 {
		count = DefaultCount
	}

	template := prompts.MustGet("personas.json", "generate-personas")
	prompt := prompts.Format(template, map[string]string{
		"ProductDescription": productDescription,
		"FinalAnalysis":      finalAnalysis,
		"Count":              strconv.Itoa(count),
	})

	// Temperature zero keeps the structured output deterministic.
	raw, err := g.llm.GenerateJSON(ctx, prompt, llm.TierStandard, 0)
	if err != nil {
		return nil, fmt.Errorf("persona generation failed: %w", err)
	}

	fields, err := parsePersonaArray(raw)
	if err != nil {
		return nil, err
	}

	result := make([]types.Persona, 0, len(fields))
	for _, f := range fields {
		result = append(result, Assemble(f, productDescription))
	}
	return result, nil
}

// parsePersonaArray validates and decodes the model's JSON array.
func parsePersonaArray(raw string) ([]types.PersonaFields, error) {
	raw = llm.CleanJSONBlock(raw)

	schemaLoader := gojsonschema.NewStringLoader(personaSchema)
	documentLoader := gojsonschema.NewStringLoader(raw)

	validation, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("persona response is not valid JSON: %w", err)
	}
	if !validation.Valid() {
		messages := make([]string, 0, len(validation.Errors()))
		for _, desc := range validation.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, fmt.Errorf("persona response failed schema validation: %s", strings.Join(messages, "; "))
	}

	var fields []types.PersonaFields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode persona array: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("persona generation returned an empty array")
	}
	return fields, nil
}

// Assemble builds a full persona record from the model's raw fields.
func Assemble(f types.PersonaFields, productDescription string) types.Persona {
	goals := SplitDelimited(f.Needs)
	if len(goals) == 0 && f.JobsToBeDone != "" {
		goals = []string{f.JobsToBeDone}
	}

	return types.Persona{
		Name:         orDefault(f.Name, "Unknown Persona"),
		Role:         orDefault(f.Job, "Not specified"),
		Education:    orDefault(f.Education, "N/A"),
		SalaryRange:  orDefault(f.SalaryRange, "N/A"),
		Description:  f.WhyImportant,
		PainPoints:   SplitDelimited(f.PainPoints),
		Goals:        goals,
		Demographics: demographicsMap(f),
		SystemPrompt: BuildSystemPrompt(f, productDescription),
		Source:       f,
	}
}

// BuildSystemPrompt renders the in-character chat prompt for a persona.
func BuildSystemPrompt(f types.PersonaFields, productDescription string) string {
	template := prompts.MustGet("personas.json", "persona-system-prompt")
	return prompts.Format(template, map[string]string{
		"Name":                 orDefault(f.Name, "Unknown Persona"),
		"Education":            orDefault(f.Education, "No education specified"),
		"AbilitiesOrPassions":  orDefault(f.AbilitiesOrPassions, "No abilities or passions specified"),
		"Hobbies":              orDefault(f.Hobbies, "No hobbies specified"),
		"Job":                  orDefault(f.Job, "No job specified"),
		"WhyImportant":         orDefault(f.WhyImportant, "No info"),
		"Needs":                orDefault(f.Needs, "No info"),
		"PopulationNotes":      orDefault(f.PopulationNotes, "No info"),
		"RelationshipChannels": orDefault(f.RelationshipChannels, "No info"),
		"SalaryRange":          orDefault(f.SalaryRange, "No info"),
		"Demographics":         orDefault(f.Demographics, "No info"),
		"PainPoints":           orDefault(f.PainPoints, "No info"),
		"JobsToBeDone":         orDefault(f.JobsToBeDone, "No info"),
		"ProductDescription":   productDescription,
	})
}

// SplitDelimited splits a free-form list on commas and semicolons,
// dropping empty items.
func SplitDelimited(s string) []string {
	s = strings.ReplaceAll(s, ";", ",")
	parts := strings.Split(s, ",")

	out := []string{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func demographicsMap(f types.PersonaFields) map[string]string {
	return map[string]string{
		"education":             orDefault(f.Education, "N/A"),
		"salary_range":          orDefault(f.SalaryRange, "N/A"),
		"hobbies":               orDefault(f.Hobbies, "N/A"),
		"demographics":          orDefault(f.Demographics, "N/A"),
		"abilities_or_passions": orDefault(f.AbilitiesOrPassions, "N/A"),
		"population_notes":      orDefault(f.PopulationNotes, "N/A"),
		"relationship_channels": orDefault(f.RelationshipChannels, "N/A"),
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
