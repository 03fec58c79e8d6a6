package types

// PersonaFields is the raw persona object returned by the generative model.
// Field values are free-form prose; downstream consumers split the delimited
// ones (pain_points, needs) into lists.
type PersonaFields struct {
	Name                 string `json:"name"`
	Education            string `json:"education"`
	AbilitiesOrPassions  string `json:"abilities_or_passions"`
	Hobbies              string `json:"hobbies"`
	Job                  string `json:"job"`
	WhyImportant         string `json:"why_important"`
	Needs                string `json:"needs"`
	PopulationNotes      string `json:"population_notes"`
	RelationshipChannels string `json:"relationship_channels"`
	SalaryRange          string `json:"salary_range"`
	Demographics         string `json:"demographics"`
	PainPoints           string `json:"pain_points"`
	JobsToBeDone         string `json:"jobs_to_be_done"`
}

// Persona is a fully assembled persona record: the model's raw fields plus
// the derived card data and the in-character system prompt used for chat.
type Persona struct {
	Name         string            `json:"name"`
	Role         string            `json:"role"`
	Education    string            `json:"education"`
	SalaryRange  string            `json:"salary_range"`
	Description  string            `json:"description"`
	PainPoints   []string          `json:"pain_points"`
	Goals        []string          `json:"goals"`
	Demographics map[string]string `json:"demographics"`
	SystemPrompt string            `json:"system_prompt"`
	Source       PersonaFields     `json:"source"`
}
