package pdfextract

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/levelforge/guideforge/apperr"
)

// ExtractedPDF is the result of running the extraction strategy chain,
// grounded on original_source/backend/app/pdf/extract.py's ExtractedPDF.
type ExtractedPDF struct {
	Text          string
	PageCount     int
	PagesWithText int
	Strategy      string
}

// strategy is one text-extraction approach over an opened PDF document.
type strategy interface {
	name() string
	extract(r *pdf.Reader) (ExtractedPDF, error)
}

// ExtractTextFromBytes runs the extraction strategy chain against raw PDF
// bytes: try the primary strategy, fall back to the secondary one on
// failure or on a fully-empty result, and fail with a STORAGE_ERROR-class
// AppError if both strategies are unable to open the document at all.
// The two-strategy chain (vs. the Python original's three-backend chain:
// PyMuPDF -> pdfplumber -> pypdf) reflects the single Go PDF library
// available in this module's dependency surface; see SPEC_FULL.md 9.
func ExtractTextFromBytes(content []byte) (ExtractedPDF, error) {
	if len(content) == 0 {
		return ExtractedPDF{}, apperr.NewValidation("empty PDF bytes", nil)
	}

	reader, err := pdf.NewReader(newBytesReaderAt(content), int64(len(content)))
	if err != nil {
		return ExtractedPDF{}, apperr.NewStorage("open PDF", err)
	}

	strategies := []strategy{plainTextStrategy{}, contentStreamStrategy{}}

	var lastErr error
	for _, s := range strategies {
		result, err := s.extract(reader)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(result.Text) != "" {
			return result, nil
		}
		lastErr = fmt.Errorf("%s: no extractable text", s.name())
	}

	return ExtractedPDF{}, apperr.NewStorage("no PDF extraction strategy produced text", lastErr)
}

// plainTextStrategy is the primary strategy: page.GetPlainText, the same
// approach C360Studio-semspec's source/parser/pdf.go uses for ingesting
// PDFs into its document graph.
type plainTextStrategy struct{}

func (plainTextStrategy) name() string { return "plaintext" }

func (plainTextStrategy) extract(reader *pdf.Reader) (ExtractedPDF, error) {
	numPages := reader.NumPage()
	var b strings.Builder
	pagesWithText := 0

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pagesWithText++
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	return ExtractedPDF{
		Text:          b.String(),
		PageCount:     numPages,
		PagesWithText: pagesWithText,
		Strategy:      "plaintext",
	}, nil
}

// contentStreamStrategy is the fallback strategy: it walks each page's
// raw Content() text fragments and reassembles reading order from
// position, for documents whose plain-text extraction comes back empty
// (e.g. unusual font encodings GetPlainText's happy path misses).
type contentStreamStrategy struct{}

func (contentStreamStrategy) name() string { return "content-stream" }

func (contentStreamStrategy) extract(reader *pdf.Reader) (ExtractedPDF, error) {
	numPages := reader.NumPage()
	var b strings.Builder
	pagesWithText := 0

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		text := joinTextFragments(content.Text)
		if strings.TrimSpace(text) != "" {
			pagesWithText++
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	return ExtractedPDF{
		Text:          b.String(),
		PageCount:     numPages,
		PagesWithText: pagesWithText,
		Strategy:      "content-stream",
	}, nil
}

// joinTextFragments reassembles reading order from a page's raw text
// fragments: sort top-to-bottom then left-to-right, starting a new line
// whenever the vertical position moves and inserting a space whenever a
// horizontal gap suggests a word boundary the fragment boundaries alone
// don't carry.
func joinTextFragments(fragments []pdf.Text) string {
	if len(fragments) == 0 {
		return ""
	}

	sorted := make([]pdf.Text, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y // PDF y-axis grows upward
		}
		return sorted[i].X < sorted[j].X
	})

	var b strings.Builder
	lastY := float64(0)
	lastXEnd := float64(0)
	first := true

	for _, frag := range sorted {
		if first {
			b.WriteString(frag.S)
			lastY = frag.Y
			lastXEnd = frag.X + frag.W
			first = false
			continue
		}
		if frag.Y != lastY {
			b.WriteString("\n")
		} else if frag.X-lastXEnd > frag.FontSize*0.3 {
			b.WriteString(" ")
		}
		b.WriteString(frag.S)
		lastY = frag.Y
		lastXEnd = frag.X + frag.W
	}

	return b.String()
}

// bytesReaderAt adapts an in-memory byte slice to io.ReaderAt, which
// ledongthuc/pdf.NewReader requires in place of a file path.
type bytesReaderAt struct {
	data []byte
}

func newBytesReaderAt(data []byte) *bytesReaderAt {
	return &bytesReaderAt{data: data}
}

func (r *bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
