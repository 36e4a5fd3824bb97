package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/levelforge/guideforge/apperr"
	"github.com/levelforge/guideforge/guide"
	"github.com/levelforge/guideforge/pdfextract"
)

// badPDFConfidenceFloor mirrors guide_service.py's extract_pdf_text gate:
// below this confidence (or a likely-scanned verdict), the guide is routed
// to FAILED_BAD_PDF instead of TEXT_EXTRACTED.
const badPDFConfidenceFloor = 0.20

// ExtractPhase runs EXTRACT: download the uploaded PDF, run the extraction
// strategy chain, score its confidence, persist the PDF_TEXT artifact and
// a ParseRun audit row, and transition the guide to TEXT_EXTRACTED or
// FAILED_BAD_PDF. Grounded on guide_service.py's extract_pdf_text.
type ExtractPhase struct {
	Guides  GuideStore
	Objects ObjectStore
}

func (p *ExtractPhase) Execute(ctx context.Context, guideID string) error {
	g, err := p.Guides.GetGuide(ctx, guideID)
	if err != nil {
		return err
	}

	claimed, err := p.Guides.Claim(ctx, guideID, guide.StatusQueued, guide.StatusExtractingText)
	if err != nil {
		return err
	}
	if !claimed {
		// Already claimed by another worker, or not in QUEUED; idempotent no-op.
		return nil
	}

	pdfBytes, err := p.Objects.Download(ctx, g.PDFPath)
	if err != nil {
		return p.fail(ctx, guideID, fmt.Errorf("download uploaded PDF: %w", err))
	}

	extracted, err := pdfextract.ExtractTextFromBytes(pdfBytes)
	if err != nil {
		return p.fail(ctx, guideID, err)
	}

	quality := pdfextract.ScoreExtraction(extracted.Text, extracted.PageCount, extracted.PagesWithText)

	textPath := textArtifactPath(g.PDFPath)
	if err := p.Objects.UploadText(ctx, textPath, extracted.Text); err != nil {
		return p.fail(ctx, guideID, fmt.Errorf("upload extracted text: %w", err))
	}

	artifact, err := p.Guides.UpsertArtifact(ctx, guideID, guide.ArtifactPDFText, map[string]any{
		"path":             textPath,
		"strategy":         extracted.Strategy,
		"page_count":       extracted.PageCount,
		"pages_with_text":  extracted.PagesWithText,
		"confidence":       quality.Confidence,
		"char_count":       quality.CharCount,
		"word_count":       quality.WordCount,
		"line_count":       quality.LineCount,
		"printable_ratio":  quality.PrintableRatio,
		"is_scanned_likely": quality.IsScannedLikely,
		"is_garbled_likely": quality.IsGarbledLikely,
		"has_matrix_signals": quality.HasMatrixSignals,
		"has_table_signals": quality.HasTableSignals,
		"notes":            quality.Notes,
	})
	if err != nil {
		return p.fail(ctx, guideID, fmt.Errorf("persist PDF_TEXT artifact: %w", err))
	}

	runStatus := guide.ParseRunSuccess
	nextStatus := guide.StatusTextExtracted
	errMsg := ""

	if quality.IsScannedLikely || quality.Confidence < badPDFConfidenceFloor {
		runStatus = guide.ParseRunFailed
		nextStatus = guide.StatusFailedBadPDF
		errMsg = "PDF looks scanned/empty (no embedded text)"
	}

	if err := p.Guides.CreateParseRun(ctx, guide.ParseRun{
		GuideID:          guideID,
		Strategy:         "EXTRACT_" + strings.ToUpper(extracted.Strategy),
		Status:           runStatus,
		Confidence:       quality.Confidence,
		PromptVersion:    "v1",
		OutputArtifactID: artifact.ID,
		ErrorMessage:     errMsg,
	}); err != nil {
		return err
	}

	return p.Guides.UpdateStatus(ctx, guideID, nextStatus, errMsg)
}

func (p *ExtractPhase) fail(ctx context.Context, guideID string, cause error) error {
	_ = p.Guides.CreateParseRun(ctx, guide.ParseRun{
		GuideID:      guideID,
		Strategy:     "EXTRACT",
		Status:       guide.ParseRunFailed,
		PromptVersion: "v1",
		ErrorMessage: cause.Error(),
	})
	if err := p.Guides.UpdateStatus(ctx, guideID, guide.StatusFailedBadPDF, cause.Error()); err != nil {
		return err
	}
	return apperr.NewStorage("PDF extraction failed", cause)
}

func textArtifactPath(pdfPath string) string {
	idx := strings.LastIndex(pdfPath, "/")
	if idx < 0 {
		return "extracted.txt"
	}
	return pdfPath[:idx] + "/extracted.txt"
}
