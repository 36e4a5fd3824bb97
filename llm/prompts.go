package llm

import "strings"

// PromptTemplate is a compile-time-registered, versioned prompt body.
// {{key}} placeholders are substituted with string-coerced variables by
// renderTemplate; __REPAIR_INSTRUCTIONS__ is a reserved placeholder that
// defaults to empty and is filled in during the one repair round-trip.
type PromptTemplate struct {
	Name     string
	Version  string
	Template string
}

var promptRegistry = map[string]PromptTemplate{}

func key(name, version string) string { return name + "@" + version }

func registerPrompt(t PromptTemplate) {
	promptRegistry[key(t.Name, t.Version)] = t
}

// GetPrompt looks up a registered prompt by name and version. Returns
// (_, false) if unknown, which the gateway treats as a fail-fast
// NonRetryable error per spec.md 4.2 step 1.
func GetPrompt(name, version string) (PromptTemplate, bool) {
	t, ok := promptRegistry[key(name, version)]
	return t, ok
}

// repairInstructions is the stock instruction injected into
// __REPAIR_INSTRUCTIONS__ on the single repair round-trip, grounded
// verbatim on original_source/backend/app/llm/client.py's repair string.
const repairInstructions = "You MUST return valid JSON only. " +
	"Escape all quotes and newlines inside strings. " +
	"Do not include any raw line breaks inside string values. " +
	"No markdown. No trailing commas. " +
	"Return EXACTLY the schema with correct types."

func init() {
	registerPrompt(PromptTemplate{
		Name:    "parse_matrix",
		Version: "v1",
		Template: `You are extracting a leveling guide matrix from raw PDF text.

Role (if known): {{role_hint}}

Return STRICT JSON matching this shape, nothing else:
{
  "confidence": <float 0..1>,
  "role": <string|null>,
  "levels": [<string>, ...],
  "competencies": [
    {"name": <string>, "cells": {"<level>": <string>, ...}},
    ...
  ],
  "notes": <string|null>
}

Rules:
- Escape all string values properly.
- Max 350 characters per cell value.
- If you are not confident in the extraction, set confidence below 0.6 and
  explain why in "notes".
- Do not hallucinate rows or columns that are not present in the source text.

Source text:
{{document_text}}

{{__REPAIR_INSTRUCTIONS__}}`,
	})

	registerPrompt(PromptTemplate{
		Name:    "generate_examples_batch",
		Version: "v1",
		Template: `{{base_context}}

Role: {{role}}
Level: {{level}}

For each competency below, write exactly 3 concrete behavioral examples
that demonstrate this competency at this level. Each example must be
2-5 sentences. Ground every example only in the provided cell text and
base context; do not invent specific technologies, vendors, or tools that
are not already present in the context.

Competencies (JSON):
{{items_json}}

Return STRICT JSON matching this shape, nothing else:
{
  "level": "{{level}}",
  "results": [
    {"competency": <string>, "examples": [{"title": <string>, "example": <string>}, ... exactly 3]},
    ...
  ]
}

{{__REPAIR_INSTRUCTIONS__}}`,
	})
}

// renderTemplate performs the naive {{key}} -> value substitution spec.md
// 4.2 step 1 calls for, grounded on
// original_source/backend/app/llm/client.py's _render_template.
func renderTemplate(template string, variables map[string]string) string {
	out := template
	for k, v := range variables {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
