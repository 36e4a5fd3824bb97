package executor

import (
	"fmt"
	"strings"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"

	"context"
)

// ParseMatrixPhase runs PARSE: fetch the PDF_TEXT artifact, call
// generate_structured against the parse_matrix prompt, normalize the
// result into Level/Competency/GuideCell rows, and transition the guide to
// MATRIX_PARSED or FAILED_PARSE. Grounded on guide_service.py's
// parse_matrix.
type ParseMatrixPhase struct {
	Guides  GuideStore
	Matrix  MatrixStore
	Objects ObjectStore
	LLM     StructuredGenerator
}

const parseMatrixPromptVersion = "v1"

func (p *ParseMatrixPhase) Execute(ctx context.Context, guideID string) (ParsedMatrix, error) {
	g, err := p.Guides.GetGuide(ctx, guideID)
	if err != nil {
		return ParsedMatrix{}, err
	}

	if g.Status == guide.StatusMatrixParsed {
		existing, ok, err := p.Guides.GetArtifact(ctx, guideID, guide.ArtifactMatrixJSON)
		if err == nil && ok {
			return matrixFromJSON(existing.ContentJSON), nil
		}
	}

	if g.Status == guide.StatusFailedBadPDF {
		return ParsedMatrix{}, apperr.NewValidation("guide is marked as bad PDF; cannot parse matrix", nil)
	}

	claimed, err := p.Guides.Claim(ctx, guideID, guide.StatusTextExtracted, guide.StatusParsingMatrix)
	if err != nil {
		return ParsedMatrix{}, err
	}
	if !claimed {
		latest, err := p.Guides.GetGuide(ctx, guideID)
		if err == nil && latest.Status == guide.StatusMatrixParsed {
			existing, ok, err := p.Guides.GetArtifact(ctx, guideID, guide.ArtifactMatrixJSON)
			if err == nil && ok {
				return matrixFromJSON(existing.ContentJSON), nil
			}
		}
		return ParsedMatrix{}, apperr.NewValidation(fmt.Sprintf("guide not in TEXT_EXTRACTED state (current=%s)", latest.Status), nil)
	}

	textArtifact, ok, err := p.Guides.GetArtifact(ctx, guideID, guide.ArtifactPDFText)
	if err != nil {
		return ParsedMatrix{}, err
	}
	if !ok {
		return ParsedMatrix{}, apperr.NewNotFound("missing PDF_TEXT artifact; run extraction first")
	}

	textPath, _ := textArtifact.ContentJSON["path"].(string)
	rawText, err := p.Objects.Download(ctx, textPath)
	if err != nil {
		return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
	}

	sanitized := sanitizeForLLM(string(rawText))

	var parsed ParsedMatrix
	err = p.LLM.GenerateStructured(ctx, "parse_matrix", "parse_matrix", parseMatrixPromptVersion, map[string]string{
		"document_text": sanitized,
		"role_hint":     g.RoleTitle,
	}, &parsed)
	if err != nil {
		return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
	}

	matrixArtifact, err := p.Guides.UpsertArtifact(ctx, guideID, guide.ArtifactMatrixJSON, matrixToJSON(parsed))
	if err != nil {
		return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
	}

	for i, lvl := range parsed.Levels {
		if _, err := p.Matrix.UpsertLevel(ctx, guideID, lvl, i); err != nil {
			return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
		}
	}

	compIDs := make(map[string]string, len(parsed.Competencies))
	for i, comp := range parsed.Competencies {
		c, err := p.Matrix.UpsertCompetency(ctx, guideID, comp.Name, i)
		if err != nil {
			return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
		}
		compIDs[comp.Name] = c.ID
	}

	levels, err := p.Matrix.ListLevels(ctx, guideID)
	if err != nil {
		return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
	}
	levelIDs := make(map[string]string, len(levels))
	for _, l := range levels {
		levelIDs[l.Code] = l.ID
	}

	for _, comp := range parsed.Competencies {
		compID, ok := compIDs[comp.Name]
		if !ok {
			continue
		}
		for lvlCode, text := range comp.Cells {
			levelID, ok := levelIDs[lvlCode]
			if !ok {
				continue
			}
			if _, err := p.Matrix.UpsertCell(ctx, guideID, compID, levelID, strings.TrimSpace(text), textArtifact.ID); err != nil {
				return ParsedMatrix{}, p.fail(ctx, guideID, textArtifact.ID, err)
			}
		}
	}

	if err := p.Guides.CreateParseRun(ctx, guide.ParseRun{
		GuideID:          guideID,
		Strategy:         "PARSE_MATRIX_LLM_V1",
		Status:           guide.ParseRunSuccess,
		Confidence:       nonZeroOr(parsed.Confidence, 0.8),
		PromptVersion:    parseMatrixPromptVersion,
		InputArtifactID:  textArtifact.ID,
		OutputArtifactID: matrixArtifact.ID,
	}); err != nil {
		return ParsedMatrix{}, err
	}

	if err := p.Guides.UpdateStatus(ctx, guideID, guide.StatusMatrixParsed, ""); err != nil {
		return ParsedMatrix{}, err
	}

	return parsed, nil
}

func (p *ParseMatrixPhase) fail(ctx context.Context, guideID, inputArtifactID string, cause error) error {
	_ = p.Guides.CreateParseRun(ctx, guide.ParseRun{
		GuideID:         guideID,
		Strategy:        "PARSE_MATRIX_LLM_V1",
		Status:          guide.ParseRunFailed,
		PromptVersion:   parseMatrixPromptVersion,
		InputArtifactID: inputArtifactID,
		ErrorMessage:    cause.Error(),
	})
	_ = p.Guides.UpdateStatus(ctx, guideID, guide.StatusFailedParse, cause.Error())
	return apperr.NewLLMNonRetryable("matrix parse failed", cause)
}

// sanitizeForLLM reduces invalid-JSON risk in extracted PDF text before
// it's interpolated into a prompt, transcribed from
// guide_service.py's _sanitize_for_llm.
func sanitizeForLLM(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, `"`, "'")
	return s
}

func nonZeroOr(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func matrixToJSON(m ParsedMatrix) map[string]any {
	comps := make([]any, len(m.Competencies))
	for i, c := range m.Competencies {
		cells := make(map[string]any, len(c.Cells))
		for k, v := range c.Cells {
			cells[k] = v
		}
		comps[i] = map[string]any{"name": c.Name, "cells": cells}
	}
	levels := make([]any, len(m.Levels))
	for i, l := range m.Levels {
		levels[i] = l
	}
	return map[string]any{
		"confidence":   m.Confidence,
		"role":         m.Role,
		"levels":       levels,
		"competencies": comps,
		"notes":        m.Notes,
	}
}

func matrixFromJSON(data map[string]any) ParsedMatrix {
	var m ParsedMatrix
	if v, ok := data["confidence"].(float64); ok {
		m.Confidence = v
	}
	if v, ok := data["role"].(string); ok {
		m.Role = v
	}
	if v, ok := data["notes"].(string); ok {
		m.Notes = v
	}
	if lvls, ok := data["levels"].([]any); ok {
		for _, l := range lvls {
			if s, ok := l.(string); ok {
				m.Levels = append(m.Levels, s)
			}
		}
	}
	if comps, ok := data["competencies"].([]any); ok {
		for _, c := range comps {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			pc := ParsedCompetency{Cells: map[string]string{}}
			if name, ok := cm["name"].(string); ok {
				pc.Name = name
			}
			if cells, ok := cm["cells"].(map[string]any); ok {
				for k, v := range cells {
					if s, ok := v.(string); ok {
						pc.Cells[k] = s
					}
				}
			}
			m.Competencies = append(m.Competencies, pc)
		}
	}
	return m
}
