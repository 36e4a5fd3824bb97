package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantErr bool
	}{
		{
			name:    "plain object",
			input:   `{"level": "L3", "competency": "Systems Design"}`,
			wantKey: "competency",
		},
		{
			name:    "fenced object",
			input:   "```json\n{\"competency\": \"Systems Design\"}\n```",
			wantKey: "competency",
		},
		{
			name:    "fenced object with trailing prose",
			input:   "```json\n{\"competency\": \"Systems Design\"}\n```\n\nLet me know if you'd like another level.",
			wantKey: "competency",
		},
		{
			name: "line comments inside an examples array",
			input: "```json\n{\n  \"examples\": [\n    \"Led the redesign of the checkout service\",  // good: scoped, measurable\n    \"Worked on stuff\"  // bad: vague\n  ]\n}\n```",
			wantKey: "examples",
		},
		{
			name: "comments and a trailing comma together",
			input: "```json\n{\n  \"examples\": [\n    \"Owned the on-call rotation\",  // first\n    \"Mentored two engineers\",  // second\n  ]\n}\n```",
			wantKey: "examples",
		},
		{
			name:    "a url field is not mistaken for a comment",
			input:   `{"source_url": "https://example.com/handbook"}`,
			wantKey: "source_url",
		},
		{
			name:    "url field followed by a real trailing comment",
			input:   "{\"source_url\": \"https://example.com/handbook\"} // cited from the uploaded PDF",
			wantKey: "source_url",
		},
		{
			name: "a full generate_structured response",
			input: "```json\n{\n  \"level_code\": \"L4\",\n  \"competency\": \"Incident Response\",\n  \"summary\": \"Drives resolution of high-severity incidents end to end.\",\n  \"examples\": [\n    \"Led the postmortem for the payments outage\",  // specific, high-severity\n    \"Coordinated cross-team mitigation during a region failover\"  // scoped, measurable\n  ]\n}\n```\n\n**Notes for review:**\n\n1. Both examples reference named incidents.\n2. Wording matches the rubric's \"drives\" verb for L4.",
			wantKey: "level_code",
		},
		{
			name:    "empty response",
			input:   "",
			wantErr: true,
		},
		{
			name:    "model declined and returned prose only",
			input:   "I'm not able to generate examples for that competency without more context.",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSON(tt.input)

			if tt.wantErr {
				if result != "" {
					t.Errorf("expected empty result, got: %s", result)
				}
				return
			}

			if result == "" {
				t.Fatal("expected a JSON result, got empty string")
			}

			var parsed map[string]any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("result is not valid JSON: %v\nresult: %s", err, result)
			}

			if tt.wantKey != "" {
				if _, ok := parsed[tt.wantKey]; !ok {
					t.Errorf("expected key %q in parsed JSON, got keys: %v", tt.wantKey, keysOf(parsed))
				}
			}
		})
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{
			name:    "plain array",
			input:   `["Led the migration", "Mentored two engineers"]`,
			wantLen: 2,
		},
		{
			name:    "fenced array",
			input:   "```json\n[\"Led the migration\", \"Mentored two engineers\"]\n```",
			wantLen: 2,
		},
		{
			name:    "fenced array with comments",
			input:   "```json\n[\n  \"Led the migration\",  // strong\n  \"Mentored two engineers\"  // strong\n]\n```",
			wantLen: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ExtractJSONArray(tt.input)
			if result == "" {
				t.Fatal("expected a result, got empty string")
			}

			var parsed []any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("result is not a valid JSON array: %v\nresult: %s", err, result)
			}

			if len(parsed) != tt.wantLen {
				t.Errorf("expected array length %d, got %d", tt.wantLen, len(parsed))
			}
		})
	}
}

func TestStripLineComment(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no comment",
			input:    `  "competency": "Systems Design",`,
			expected: `  "competency": "Systems Design",`,
		},
		{
			name:     "trailing comment",
			input:    `  "competency": "Systems Design",  // matches rubric`,
			expected: `  "competency": "Systems Design",`,
		},
		{
			name:     "url preserved",
			input:    `  "source_url": "https://example.com/handbook",`,
			expected: `  "source_url": "https://example.com/handbook",`,
		},
		{
			name:     "url with trailing comment",
			input:    `  "source_url": "https://example.com/handbook",  // cited`,
			expected: `  "source_url": "https://example.com/handbook",`,
		},
		{
			name:     "whole-line comment",
			input:    `  // reviewer note: double check this level`,
			expected: ``,
		},
		{
			name:     "escaped quote before the comment",
			input:    `  "note": "rated \"strong\"//really",  // comment`,
			expected: `  "note": "rated \"strong\"//really",`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := stripLineComment(tt.input)
			if got != tt.expected {
				t.Errorf("stripLineComment(%q)\ngot:  %q\nwant: %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "trailing comma in an array",
			input: `{"examples": ["Led the migration", "Mentored two engineers",]}`,
		},
		{
			name:  "trailing comma in an object",
			input: `{"level": "L4", "competency": "Incident Response",}`,
		},
		{
			name:  "comments and a trailing comma together",
			input: "{\n  \"examples\": [\n    \"Led the migration\",  // first\n    \"Mentored two engineers\",  // second\n  ]\n}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cleanJSON(tt.input)

			var parsed any
			if err := json.Unmarshal([]byte(result), &parsed); err != nil {
				t.Fatalf("cleaned JSON is invalid: %v\nresult: %s", err, result)
			}
		})
	}
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
