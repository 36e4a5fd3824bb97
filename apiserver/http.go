// Package apiserver is the thin HTTP ingress spec.md §6 treats as an
// external collaborator: upload-and-create, status polling, signed PDF
// redirect, and the rendered-matrix results view. It holds no pipeline
// logic of its own -- beyond the company upsert, the PDF upload and the
// initial QUEUED row insert, every write happens inside a phase executor.
package apiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
	"github.com/levelforge/guideforge/metrics"
	"github.com/levelforge/guideforge/orchestrator"
)

// metricsMiddleware records every response's route pattern and status code
// to metrics.HTTPRequestsTotal.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

const signedURLTTL = 10 * time.Minute // supabase_storage.py's create_signed_download_url default expires_in_seconds=600

// GuideStore is the narrow subset of pgstore.GuideRepo the ingress needs
// beyond the executor's own GuideStore port.
type GuideStore interface {
	GetGuide(ctx context.Context, guideID string) (guide.Guide, error)
	CreateGuide(ctx context.Context, companyID, roleTitle, pdfPath string) (guide.Guide, error)
}

// CompanyStore is the ingress's company lookup/create port.
type CompanyStore interface {
	GetByID(ctx context.Context, companyID string) (guide.Company, error)
	UpsertByWebsite(ctx context.Context, websiteURL, name, context_ string) (guide.Company, error)
}

// MatrixReader serves the rendered matrix for the results endpoint.
type MatrixReader interface {
	ListLevels(ctx context.Context, guideID string) ([]guide.Level, error)
	ListCompetencies(ctx context.Context, guideID string) ([]guide.Competency, error)
	ListCells(ctx context.Context, guideID, levelID string, competencyIDs []string) ([]guide.GuideCell, error)
}

// GenerationReader serves per-cell generation results and progress counts.
type GenerationReader interface {
	GetCellGeneration(ctx context.Context, cellID, promptName, promptVersion string) (guide.CellGeneration, bool, error)
	CountTotalForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error)
	CountSuccessForGuide(ctx context.Context, guideID, promptName, promptVersion string) (int, error)
	CountCellsForGuide(ctx context.Context, guideID string) (int, error)
}

// ObjectStore is the blob storage port the ingress needs: upload the raw
// PDF at creation time, sign a download URL for the pdf endpoint.
type ObjectStore interface {
	Upload(ctx context.Context, path string, content []byte, contentType string) error
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Server wires the ingress handlers to the relational store, object
// store, and orchestrator, grounded on routers/guides.py's thin-router
// convention (all business logic lives in the service/executor layer).
type Server struct {
	Guides       GuideStore
	Companies    CompanyStore
	Matrix       MatrixReader
	Generations  GenerationReader
	Objects      ObjectStore
	Orchestrator *orchestrator.Orchestrator

	PromptName    string
	PromptVersion string
	Logger        *slog.Logger

	// MaxUploadBytes is PDF_MAX_BYTES (config.Config.PDFMaxBytes). Zero
	// means unset; Router falls back to defaultMaxUploadBytes.
	MaxUploadBytes int64
}

// Router builds the chi mux for spec.md §6's four endpoints.
func (s *Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = defaultMaxUploadBytes
	}
	if s.PromptName == "" {
		s.PromptName = "generate_examples_batch"
	}
	if s.PromptVersion == "" {
		s.PromptVersion = "v1"
	}

	r := chi.NewRouter()
	r.Use(metricsMiddleware)
	r.Route("/api/guides", func(r chi.Router) {
		r.Post("/", s.handleCreateGuide)
		r.Get("/{id}/status", s.handleGuideStatus)
		r.Get("/{id}/pdf", s.handleGuidePDF)
		r.Get("/{id}/results", s.handleGuideResults)
	})
	r.Handle("/metrics", metrics.Handler())
	return r
}

type createGuideResponse struct {
	GuideID    string    `json:"guide_id"`
	CompanyID  string    `json:"company_id"`
	Status     string    `json:"status"`
	StatusURL  string    `json:"status_url"`
	ResultsURL string    `json:"results_url"`
	PDFURL     string    `json:"pdf_url"`
	CreatedAt  time.Time `json:"created_at"`
}

// handleCreateGuide implements POST /api/guides: validate, find-or-create
// the company, upload the PDF, insert the guide row in QUEUED, and enqueue
// extract_text_task. Grounded on guide_service.py's create_guide_from_upload.
func (s *Server) handleCreateGuide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(s.MaxUploadBytes); err != nil {
		writeError(w, apperr.NewValidation("request body too large or malformed multipart form", nil))
		return
	}

	roleTitle, err := validateRoleTitle(r.FormValue("role_title"))
	if err != nil {
		writeError(w, err)
		return
	}
	websiteURL, err := normalizeWebsiteURL(r.FormValue("website_url"))
	if err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, apperr.NewValidation("pdf file is required", nil))
		return
	}
	defer file.Close()

	if err := validatePDFContentType(header.Header.Get("Content-Type")); err != nil {
		writeError(w, err)
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, s.MaxUploadBytes+1))
	if err != nil {
		writeError(w, apperr.NewValidation("failed to read uploaded PDF", nil))
		return
	}
	if int64(len(content)) > s.MaxUploadBytes {
		writeError(w, apperr.NewValidation(fmt.Sprintf("uploaded PDF exceeds the %dMB limit", s.MaxUploadBytes/(1024*1024)), nil))
		return
	}

	company, err := s.Companies.UpsertByWebsite(ctx, websiteURL, r.FormValue("company_name"), r.FormValue("company_context"))
	if err != nil {
		writeError(w, err)
		return
	}

	pdfPath := buildPDFPath(company.ID, header.Filename)
	if err := s.Objects.Upload(ctx, pdfPath, content, "application/pdf"); err != nil {
		writeError(w, err)
		return
	}

	g, err := s.Guides.CreateGuide(ctx, company.ID, roleTitle, pdfPath)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.Orchestrator.EnqueueExtract(ctx, g.ID); err != nil {
		s.Logger.Error("enqueue extract_text_task failed", "guide_id", g.ID, "error", err)
		writeError(w, apperr.NewInternal("failed to enqueue pipeline", err))
		return
	}

	writeJSON(w, http.StatusCreated, createGuideResponse{
		GuideID:    g.ID,
		CompanyID:  company.ID,
		Status:     string(g.Status),
		StatusURL:  fmt.Sprintf("/api/guides/%s/status", g.ID),
		ResultsURL: fmt.Sprintf("/api/guides/%s/results", g.ID),
		PDFURL:     fmt.Sprintf("/api/guides/%s/pdf", g.ID),
		CreatedAt:  g.CreatedAt,
	})
}

// buildPDFPath mirrors supabase_storage.py's _build_private_pdf_path: no
// dependency on the not-yet-created guide_id, unique via a fresh uuid.
func buildPDFPath(companyID, filename string) string {
	if filename == "" {
		filename = "upload.pdf"
	}
	return fmt.Sprintf("companies/%s/guides/%s/%s", companyID, uuid.NewString(), filename)
}

type statusResponse struct {
	GuideID   string    `json:"guide_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) handleGuideStatus(w http.ResponseWriter, r *http.Request) {
	g, err := s.Guides.GetGuide(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		GuideID:   g.ID,
		Status:    string(g.Status),
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	})
}

func (s *Server) handleGuidePDF(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	g, err := s.Guides.GetGuide(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	signed, err := s.Objects.SignedURL(ctx, g.PDFPath, signedURLTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	http.Redirect(w, r, signed, http.StatusFound)
}

type resultsResponse struct {
	Status       string             `json:"status"`
	Progress     progress           `json:"progress"`
	Levels       []levelView        `json:"levels"`
	Competencies []competencyResult `json:"competencies"`
}

type progress struct {
	Expected  int `json:"expected"`
	Completed int `json:"completed"`
}

type levelView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

type competencyResult struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Position int        `json:"position"`
	Cells    []cellView `json:"cells"`
}

type cellView struct {
	LevelID          string                   `json:"level_id"`
	CellID           string                   `json:"cell_id"`
	DefinitionText   string                   `json:"definition_text"`
	Examples         []guide.GeneratedExample `json:"examples"`
	GenerationStatus string                   `json:"generation_status"`
}

// handleGuideResults implements GET /api/guides/{id}/results: the rendered
// matrix with progress counters, grounded on spec.md §6's response shape.
func (s *Server) handleGuideResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guideID := chi.URLParam(r, "id")

	g, err := s.Guides.GetGuide(ctx, guideID)
	if err != nil {
		writeError(w, err)
		return
	}

	levels, err := s.Matrix.ListLevels(ctx, guideID)
	if err != nil {
		writeError(w, err)
		return
	}
	comps, err := s.Matrix.ListCompetencies(ctx, guideID)
	if err != nil {
		writeError(w, err)
		return
	}

	expected, err := s.Generations.CountCellsForGuide(ctx, guideID)
	if err != nil {
		writeError(w, err)
		return
	}
	completed, err := s.Generations.CountSuccessForGuide(ctx, guideID, s.PromptName, s.PromptVersion)
	if err != nil {
		writeError(w, err)
		return
	}

	levelViews := make([]levelView, 0, len(levels))
	for _, lvl := range levels {
		label := lvl.Title
		if label == "" {
			label = lvl.Code
		}
		levelViews = append(levelViews, levelView{ID: lvl.ID, Label: label, Position: lvl.Position})
	}

	compResults := make([]competencyResult, 0, len(comps))
	for _, comp := range comps {
		cr := competencyResult{ID: comp.ID, Name: comp.Name, Position: comp.Position}
		for _, lvl := range levels {
			cells, err := s.Matrix.ListCells(ctx, guideID, lvl.ID, []string{comp.ID})
			if err != nil {
				writeError(w, err)
				return
			}
			for _, cell := range cells {
				cv := cellView{LevelID: lvl.ID, CellID: cell.ID, DefinitionText: cell.DefinitionText, GenerationStatus: "PENDING"}
				cg, found, err := s.Generations.GetCellGeneration(ctx, cell.ID, s.PromptName, s.PromptVersion)
				if err != nil {
					writeError(w, err)
					return
				}
				if found {
					cv.GenerationStatus = string(cg.Status)
					cv.Examples = examplesFromContent(cg.ContentJSON)
				}
				cr.Cells = append(cr.Cells, cv)
			}
		}
		compResults = append(compResults, cr)
	}

	writeJSON(w, http.StatusOK, resultsResponse{
		Status:       string(g.Status),
		Progress:     progress{Expected: expected, Completed: completed},
		Levels:       levelViews,
		Competencies: compResults,
	})
}

func examplesFromContent(content map[string]any) []guide.GeneratedExample {
	raw, ok := content["examples"]
	if !ok {
		return nil
	}
	body, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []guide.GeneratedExample
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorResponse is the stable shape every AppError renders to, keyed by
// apperr.Code so clients can branch on a fixed string.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: string(apperr.CodeInternal), Message: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Code {
	case apperr.CodeValidation:
		status = http.StatusUnprocessableEntity
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConfig, apperr.CodeStorage, apperr.CodeLLMRetryable, apperr.CodeLLMNonRetryable, apperr.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Code: string(appErr.Code), Message: appErr.Reason})
}
