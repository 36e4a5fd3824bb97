// Package executor implements the four phase bodies of the pipeline
// (extract, parse, generate, finalize) as grounded on
// original_source/backend/app/services/guide_service.py and
// generation_service.py. Each phase is a plain function operating against
// narrow store/gateway ports so it can be driven by the task runner adapter
// or exercised directly in tests with fakes.
package executor

import (
	"context"

	"github.com/levelforge/guideforge/guide"
	"github.com/levelforge/guideforge/llm"
)

// GuideStore is the subset of the relational store the executor phases
// need for the Guide aggregate: read, status transition, artifact and
// parse-run bookkeeping.
type GuideStore interface {
	GetGuide(ctx context.Context, guideID string) (guide.Guide, error)
	GetCompany(ctx context.Context, companyID string) (guide.Company, error)
	Claim(ctx context.Context, guideID string, from, to guide.Status) (bool, error)
	UpdateStatus(ctx context.Context, guideID string, status guide.Status, errorMessage string) error
	UpsertArtifact(ctx context.Context, guideID string, artifactType guide.ArtifactType, contentJSON map[string]any) (guide.Artifact, error)
	GetArtifact(ctx context.Context, guideID string, artifactType guide.ArtifactType) (guide.Artifact, bool, error)
	CreateParseRun(ctx context.Context, run guide.ParseRun) error
}

// MatrixStore normalizes a parsed matrix into Level/Competency/GuideCell
// rows, per guide_service.py's parse_matrix persistence step.
type MatrixStore interface {
	UpsertLevel(ctx context.Context, guideID, code string, position int) (guide.Level, error)
	UpsertCompetency(ctx context.Context, guideID, name string, position int) (guide.Competency, error)
	UpsertCell(ctx context.Context, guideID, competencyID, levelID, definitionText, sourceArtifactID string) (guide.GuideCell, error)
	ListLevels(ctx context.Context, guideID string) ([]guide.Level, error)
	ListCompetencies(ctx context.Context, guideID string) ([]guide.Competency, error)
	ListCells(ctx context.Context, guideID, levelID string, competencyIDs []string) ([]guide.GuideCell, error)
}

// GenerationStore is the idempotency ledger and progress counter for the
// GENERATE phase, grounded on repos/generation/{read,write}.py.
type GenerationStore interface {
	GetCellGeneration(ctx context.Context, cellID, promptName, promptVersion string) (guide.CellGeneration, bool, error)
	UpsertCellGeneration(ctx context.Context, cg guide.CellGeneration) error
	CountTotalForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error)
	CountSuccessForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error)
	CountCellsForGuide(ctx context.Context, guideID string) (int, error)
}

// ObjectStore is the narrow blob-storage port the executor needs: download
// the uploaded PDF, and upload/download the derived plaintext artifact.
type ObjectStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
	UploadText(ctx context.Context, path string, text string) error
}

// StructuredGenerator is the subset of llm.Gateway the executor calls.
// Kept as an interface so phase tests can fake it without an HTTP server.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, purpose, promptName, promptVersion string, variables map[string]string, out llm.Schema) error
}
