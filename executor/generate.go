package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
)

const generatePromptName = "generate_examples_batch"

// forbiddenTerms is the denylist of specific technology/vendor names the
// GENERATE phase must not let the LLM invent unless they already appear in
// the guide's own context or cell text, transcribed verbatim from
// generation_service.py's _find_forbidden_terms.
var forbiddenTerms = []string{
	"redis", "redis cloud",
	"kafka", "kubernetes", "docker",
	"aws", "gcp", "azure",
	"spark", "datadog", "opentelemetry",
	"terraform", "helm",
	"postgres", "mysql", "mongodb",
	"grpc", "protobuf",
	"vault",
}

var sentenceSplitPattern = regexp.MustCompile(`[.!?]+`)
var whitespacePattern = regexp.MustCompile(`\s+`)

// batchRepairInstructions is injected into __REPAIR_INSTRUCTIONS__ on the
// one semantic-repair round-trip, transcribed from
// generation_service.py's _repair_instructions_for_batch.
const batchRepairInstructions = "Return STRICT JSON only. " +
	"Ensure results contains exactly one entry per input competency. " +
	"For each competency, return exactly 3 examples with non-empty title/example. " +
	"Do NOT include any company/product/technology terms unless they appear verbatim in Base context or cell_text. " +
	"Keep each example 2-5 sentences. Escape all quotes/newlines properly."

// chunkItem is one (competency, cell text) pair queued for generation.
type chunkItem struct {
	Competency string `json:"competency"`
	CellText   string `json:"cell_text"`
}

// GenerateChunkPhase runs one GENERATE work item: a contiguous range of
// competencies for one level. Grounded on generation_service.py's
// generate_level_chunk.
type GenerateChunkPhase struct {
	Guides      GuideStore
	Matrix      MatrixStore
	Generations GenerationStore
	LLM         StructuredGenerator
}

func (p *GenerateChunkPhase) Execute(ctx context.Context, guideID, levelID string, start, end int, promptVersion string) error {
	g, err := p.Guides.GetGuide(ctx, guideID)
	if err != nil {
		return err
	}
	if g.Status != guide.StatusGeneratingExamples && g.Status != guide.StatusDone {
		return apperr.NewValidation(fmt.Sprintf("guide not in GENERATING_EXAMPLES/DONE (current=%s)", g.Status), nil)
	}

	comps, err := p.Matrix.ListCompetencies(ctx, guideID)
	if err != nil {
		return err
	}
	if start >= len(comps) || start >= end {
		return nil
	}
	if end > len(comps) {
		end = len(comps)
	}
	chunk := comps[start:end]
	if len(chunk) == 0 {
		return nil
	}

	compIDs := make([]string, len(chunk))
	for i, c := range chunk {
		compIDs[i] = c.ID
	}
	cells, err := p.Matrix.ListCells(ctx, guideID, levelID, compIDs)
	if err != nil {
		return err
	}
	cellByComp := make(map[string]guide.GuideCell, len(cells))
	for _, c := range cells {
		cellByComp[c.CompetencyID] = c
	}

	levels, err := p.Matrix.ListLevels(ctx, guideID)
	if err != nil {
		return err
	}
	var levelCode string
	for _, l := range levels {
		if l.ID == levelID {
			levelCode = l.Code
		}
	}

	var items []chunkItem
	var wanted []struct {
		Comp guide.Competency
		Cell guide.GuideCell
	}

	for _, comp := range chunk {
		cell, ok := cellByComp[comp.ID]
		if !ok {
			continue
		}
		existing, ok, err := p.Generations.GetCellGeneration(ctx, cell.ID, generatePromptName, promptVersion)
		if err != nil {
			return err
		}
		if ok && existing.Status == guide.CellGenerationSuccess {
			continue
		}
		items = append(items, chunkItem{Competency: comp.Name, CellText: strings.TrimSpace(cell.DefinitionText)})
		wanted = append(wanted, struct {
			Comp guide.Competency
			Cell guide.GuideCell
		}{comp, cell})
	}

	if len(items) == 0 {
		return nil
	}

	baseContext := buildBaseContext(g)
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}

	role := g.RoleTitle
	if role == "" {
		role = "Unknown"
	}

	variables := map[string]string{
		"base_context": baseContext,
		"role":         role,
		"level":        levelCode,
		"items_json":   string(itemsJSON),
	}

	var result GenerateExamplesBatchResult
	if err := p.LLM.GenerateStructured(ctx, "generate_examples_batch", generatePromptName, promptVersion, variables, &result); err != nil {
		return p.persistChunkFailure(ctx, guideID, promptVersion, wanted, err.Error())
	}

	if verr := validateBatchResult(result, items, baseContext); verr != nil {
		// One semantic-repair round-trip on top of the gateway's own
		// malformed-JSON repair: re-ask with explicit repair instructions
		// naming what the first attempt got wrong, per
		// generation_service.py's generate_level_chunk.
		repairVars := make(map[string]string, len(variables)+1)
		for k, v := range variables {
			repairVars[k] = v
		}
		repairVars["__REPAIR_INSTRUCTIONS__"] = batchRepairInstructions

		var result2 GenerateExamplesBatchResult
		err2 := p.LLM.GenerateStructured(ctx, "generate_examples_batch", generatePromptName, promptVersion, repairVars, &result2)
		if err2 != nil {
			return p.persistChunkFailure(ctx, guideID, promptVersion, wanted, verr.Error())
		}
		if verr2 := validateBatchResult(result2, items, baseContext); verr2 != nil {
			return p.persistChunkFailure(ctx, guideID, promptVersion, wanted, verr2.Error())
		}
		result = result2
	}

	outByComp := make(map[string]CompetencyExamples, len(result.Results))
	for _, r := range result.Results {
		outByComp[r.Competency] = r
	}

	for _, w := range wanted {
		r, ok := outByComp[w.Comp.Name]
		if !ok {
			if err := p.Generations.UpsertCellGeneration(ctx, guide.CellGeneration{
				GuideID:       guideID,
				CellID:        w.Cell.ID,
				PromptName:    generatePromptName,
				PromptVersion: promptVersion,
				Status:        guide.CellGenerationFailed,
				ErrorMessage:  "missing competency in LLM output",
			}); err != nil {
				return err
			}
			continue
		}
		examples := make([]map[string]any, len(r.Examples))
		for i, e := range r.Examples {
			examples[i] = map[string]any{"title": e.Title, "example": e.Example}
		}
		if err := p.Generations.UpsertCellGeneration(ctx, guide.CellGeneration{
			GuideID:       guideID,
			CellID:        w.Cell.ID,
			PromptName:    generatePromptName,
			PromptVersion: promptVersion,
			Status:        guide.CellGenerationSuccess,
			ContentJSON:   map[string]any{"examples": examples},
		}); err != nil {
			return err
		}
	}

	return nil
}

// persistChunkFailure records every wanted cell in this chunk as FAILED
// and returns an INTERNAL_ERROR AppError, which the orchestrator records as
// a failed task and acknowledges without redelivery, mirroring
// generation_service.py's deliberate persist-then-reraise on an
// unrepairable validation failure.
func (p *GenerateChunkPhase) persistChunkFailure(ctx context.Context, guideID, promptVersion string, wanted []struct {
	Comp guide.Competency
	Cell guide.GuideCell
}, reason string) error {
	for _, w := range wanted {
		_ = p.Generations.UpsertCellGeneration(ctx, guide.CellGeneration{
			GuideID:       guideID,
			CellID:        w.Cell.ID,
			PromptName:    generatePromptName,
			PromptVersion: promptVersion,
			Status:        guide.CellGenerationFailed,
			ErrorMessage:  reason,
		})
	}
	return apperr.NewInternal("generate_examples_batch validation failed", fmt.Errorf("%s", reason))
}

// buildBaseContext builds the grounding facts for the generate prompt: the
// role title (when set), plus a standing instruction not to invent
// technology details the guide text doesn't support. The company name,
// website URL and company context are not included.
func buildBaseContext(g guide.Guide) string {
	var lines []string
	if g.RoleTitle != "" {
		lines = append(lines, "Role title: "+strings.TrimSpace(g.RoleTitle))
	}
	lines = append(lines, "Important: Do not guess company domain/products/technology stack. "+
		"If company context is missing, keep examples generic and grounded only in the leveling guide cell text.")
	return strings.Join(lines, "\n")
}

// validateBatchResult runs the semantic guardrails generation_service.py's
// _validate_batch_result enforces: full coverage, exactly 3 examples per
// competency, 2-5 sentence examples, no forbidden terms not already present
// in the allowed corpus, and no duplicate/near-duplicate examples.
func validateBatchResult(result GenerateExamplesBatchResult, items []chunkItem, baseContext string) error {
	if len(result.Results) != len(items) {
		return fmt.Errorf("expected %d results, got %d", len(items), len(result.Results))
	}

	expected := make(map[string]bool, len(items))
	for _, it := range items {
		expected[it.Competency] = true
	}
	for _, r := range result.Results {
		delete(expected, r.Competency)
	}
	if len(expected) > 0 {
		missing := make([]string, 0, len(expected))
		for k := range expected {
			missing = append(missing, k)
		}
		return fmt.Errorf("missing competencies in output: %v", missing)
	}

	allowedCorpus := buildAllowedCorpus(baseContext, items)

	for _, r := range result.Results {
		if r.Competency == "" {
			return fmt.Errorf("missing competency name in output")
		}
		if len(r.Examples) != 3 {
			return fmt.Errorf("competency %q must have exactly 3 examples", r.Competency)
		}

		normalized := make(map[string]bool, 3)
		for _, ex := range r.Examples {
			title := strings.TrimSpace(ex.Title)
			body := strings.TrimSpace(ex.Example)
			if title == "" || body == "" {
				return fmt.Errorf("empty title/example in competency %q", r.Competency)
			}

			sc := countSentences(body)
			if sc < 2 || sc > 5 {
				return fmt.Errorf("example length out of range (2-5 sentences) in %q", r.Competency)
			}

			if hits := findForbiddenTerms(title+" "+body, allowedCorpus); len(hits) > 0 {
				return fmt.Errorf("forbidden terms not present in inputs: %v", hits)
			}

			normalized[normalizeText(body)] = true
		}
		if len(normalized) != 3 {
			return fmt.Errorf("duplicate/near-duplicate examples in competency %q", r.Competency)
		}
	}

	return nil
}

func buildAllowedCorpus(baseContext string, items []chunkItem) string {
	var b strings.Builder
	b.WriteString(baseContext)
	for _, it := range items {
		b.WriteString("\n")
		b.WriteString(it.Competency)
		b.WriteString("\n")
		b.WriteString(it.CellText)
	}
	return b.String()
}

func findForbiddenTerms(text, allowedCorpus string) []string {
	allowedLower := strings.ToLower(allowedCorpus)
	textLower := strings.ToLower(text)
	var hits []string
	for _, term := range forbiddenTerms {
		if strings.Contains(textLower, term) && !strings.Contains(allowedLower, term) {
			hits = append(hits, term)
		}
	}
	return hits
}

func countSentences(s string) int {
	parts := sentenceSplitPattern.Split(strings.TrimSpace(s), -1)
	n := 0
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

func normalizeText(s string) string {
	return strings.ToLower(whitespacePattern.ReplaceAllString(strings.TrimSpace(s), " "))
}
