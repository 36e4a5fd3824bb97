package executor

import "fmt"

// ParsedCompetency is one row of a parsed matrix: a competency name and
// its cell text keyed by level code.
type ParsedCompetency struct {
	Name  string            `json:"name"`
	Cells map[string]string `json:"cells"`
}

// ParsedMatrix is the PARSE phase's LLM output shape, transcribed from
// app/schemas/matrix_schema.py's ParsedMatrix.
type ParsedMatrix struct {
	Confidence   float64            `json:"confidence"`
	Role         string             `json:"role"`
	Levels       []string           `json:"levels"`
	Competencies []ParsedCompetency `json:"competencies"`
	Notes        string             `json:"notes"`
}

// Validate reports the minimal structural shape generate_structured needs
// before the executor trusts a ParsedMatrix: at least one level and one
// competency, since an empty matrix means the LLM gave up silently.
func (m *ParsedMatrix) Validate() error {
	if len(m.Levels) == 0 {
		return fmt.Errorf("parsed matrix has no levels")
	}
	if len(m.Competencies) == 0 {
		return fmt.Errorf("parsed matrix has no competencies")
	}
	for _, c := range m.Competencies {
		if c.Name == "" {
			return fmt.Errorf("parsed matrix has a competency with no name")
		}
	}
	return nil
}

// GeneratedExample is one of the three behavioral examples the GENERATE
// phase asks the LLM to produce per competency/level cell.
type GeneratedExample struct {
	Title   string `json:"title"`
	Example string `json:"example"`
}

// CompetencyExamples pairs a competency name with its generated examples.
type CompetencyExamples struct {
	Competency string             `json:"competency"`
	Examples   []GeneratedExample `json:"examples"`
}

// GenerateExamplesBatchResult is the GENERATE phase's LLM output shape,
// transcribed from app/schemas/generation_schema.py's
// GenerateExamplesBatchResult.
type GenerateExamplesBatchResult struct {
	Level   string                `json:"level"`
	Results []CompetencyExamples `json:"results"`
}

// Validate reports the minimal structural shape generate_structured needs;
// the richer semantic checks (exactly 3 examples, sentence length, forbidden
// terms, coverage) live in validateBatchResult in generate.go since they
// need the original request's item list to check against.
func (r *GenerateExamplesBatchResult) Validate() error {
	if len(r.Results) == 0 {
		return fmt.Errorf("generate_examples_batch returned no results")
	}
	for _, res := range r.Results {
		if res.Competency == "" {
			return fmt.Errorf("generate_examples_batch result missing competency name")
		}
	}
	return nil
}
