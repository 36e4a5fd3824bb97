// Package guide defines the pipeline's persistent entity model and the
// status machine that governs a Guide's progress through the four phases.
package guide

import "time"

// Company owns zero-or-more Guides; deletion cascades to its Guides.
type Company struct {
	ID         string
	WebsiteURL string
	Name       string
	Context    string
	CreatedAt  time.Time
}

// Guide is the root aggregate driven through EXTRACT -> PARSE -> GENERATE ->
// FINALIZE by the orchestrator. pdf_path is set at creation and never
// mutated afterward.
type Guide struct {
	ID           string
	CompanyID    string
	RoleTitle    string
	PDFPath      string
	Status       Status
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ArtifactType enumerates the two kinds of intermediate output a Guide
// accumulates. Each type has at most one "current" row per guide.
type ArtifactType string

const (
	ArtifactPDFText    ArtifactType = "PDF_TEXT"
	ArtifactMatrixJSON ArtifactType = "MATRIX_JSON"
)

// Artifact is a latest-wins persisted intermediate output.
type Artifact struct {
	ID          string
	GuideID     string
	Type        ArtifactType
	ContentJSON map[string]any
	CreatedAt   time.Time
}

// ParseRunStatus is the terminal outcome of one parsing/extraction attempt.
type ParseRunStatus string

const (
	ParseRunSuccess ParseRunStatus = "SUCCESS"
	ParseRunFailed  ParseRunStatus = "FAILED"
)

// ParseRun is an append-only audit row for one extraction or parse attempt.
// Never updated after insert.
type ParseRun struct {
	ID               string
	GuideID          string
	Strategy         string
	Status           ParseRunStatus
	Confidence       float64
	Model            string
	PromptVersion    string
	InputArtifactID  string
	OutputArtifactID string
	ErrorMessage     string
	CreatedAt        time.Time
}

// Level is a column of the matrix (e.g. "L3", "Senior"). Stable across
// re-parses via upsert on Code.
type Level struct {
	ID       string
	GuideID  string
	Code     string
	Title    string
	Position int
}

// Competency is a row of the matrix. Stable across re-parses via upsert on
// Name.
type Competency struct {
	ID       string
	GuideID  string
	Name     string
	Position int
}

// GuideCell is exactly one (competency, level) pair's definition text,
// produced by PARSE.
type GuideCell struct {
	ID               string
	GuideID          string
	CompetencyID     string
	LevelID          string
	DefinitionText   string
	SourceArtifactID string
}

// CellGenerationStatus is the terminal outcome of one generation attempt
// for a cell under a given prompt identity.
type CellGenerationStatus string

const (
	CellGenerationSuccess CellGenerationStatus = "SUCCESS"
	CellGenerationFailed  CellGenerationStatus = "FAILED"
)

// CellGeneration is the idempotency key for the GENERATE phase: one
// terminal row per (cell_id, prompt_name, prompt_version); re-runs replace
// via upsert.
type CellGeneration struct {
	ID            string
	GuideID       string
	CellID        string
	PromptName    string
	PromptVersion string
	Status        CellGenerationStatus
	ContentJSON   map[string]any
	Model         string
	TraceID       string
	ErrorMessage  string
}

// GeneratedExample is one of the three behavioral examples produced for a
// cell.
type GeneratedExample struct {
	Title   string `json:"title"`
	Example string `json:"example"`
}
