// Package pdfextract provides pluggable PDF text extraction and the
// deterministic extraction-quality scorer spec.md 4.3.1 requires.
package pdfextract

import (
	"regexp"
	"strings"
)

// matrixSignalPatterns flag text that reads like a leveling/competency
// matrix. Transcribed verbatim from
// original_source/backend/app/pdf/quality.py's _MATRIX_SIGNAL_PATTERNS.
var matrixSignalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\blevel\b`),
	regexp.MustCompile(`(?i)\bcompetenc(y|ies)\b`),
	regexp.MustCompile(`(?i)\bscope\b`),
	regexp.MustCompile(`(?i)\bexpectation(s)?\b`),
	regexp.MustCompile(`(?i)\bresponsibilit(y|ies)\b`),
	regexp.MustCompile(`(?i)\bbehavior(s)?\b`),
}

// tableSignalPatterns flag text that looks like it came from a table
// layout. Transcribed verbatim from quality.py's _TABLE_SIGNAL_PATTERNS.
var tableSignalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btable\b`),
	regexp.MustCompile(`(?i)\brow\b`),
	regexp.MustCompile(`(?i)\bcolumn\b`),
	regexp.MustCompile(`\|`),
}

var wordPattern = regexp.MustCompile(`\w+`)

// QualityReport is the deterministic, explainable extraction-quality
// report spec.md 4.3.1 describes, including a human-readable audit trail.
type QualityReport struct {
	Confidence       float64
	CharCount        int
	WordCount        int
	LineCount        int
	PrintableRatio   float64
	HasMatrixSignals bool
	HasTableSignals  bool
	IsScannedLikely  bool
	IsGarbledLikely  bool
	Notes            []string
}

func printableRatio(text string) float64 {
	if text == "" {
		return 0
	}
	good := 0
	for _, r := range text {
		if r < 0x80 && (r == '\t' || r == '\n' || r == '\r' || (r >= 0x20 && r < 0x7f)) {
			good++
		}
	}
	return float64(good) / float64(len([]rune(text)))
}

func hasAnyPattern(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ScoreExtraction implements spec.md 4.3.1's confidence ladder exactly:
// base bucket by char_count, then has_matrix_signals bonus, then
// is_garbled_likely penalty, then has_table_signals bonus, then
// is_scanned_likely hard cap -- in that order, transcribed from
// original_source/backend/app/pdf/quality.py's score_extraction.
func ScoreExtraction(text string, pageCount, pagesWithText int) QualityReport {
	charCount := len(text)
	wordCount := len(wordPattern.FindAllString(text, -1))
	lineCount := 0
	if text != "" {
		lineCount = strings.Count(text, "\n") + 1
	}
	ratio := printableRatio(text)

	hasMatrix := hasAnyPattern(text, matrixSignalPatterns)
	hasTable := hasAnyPattern(text, tableSignalPatterns)

	isScanned := pagesWithText == 0 || charCount < 200
	isGarbled := charCount > 0 && ratio < 0.85

	var notes []string
	var confidence float64

	switch {
	case charCount < 800 || pagesWithText == 0:
		confidence = 0.10
		if pagesWithText == 0 {
			notes = append(notes, "No pages had extractable text")
		}
		if charCount < 800 {
			notes = append(notes, "Extracted text is very small")
		}
	case charCount <= 2500:
		confidence = 0.40
		notes = append(notes, "Moderate text volume")
	default:
		confidence = 0.80
		notes = append(notes, "High text volume")
	}

	switch {
	case hasMatrix && charCount > 2500:
		confidence = minF(0.95, confidence+0.15)
		notes = append(notes, "Detected leveling/matrix signals")
	case hasMatrix:
		confidence = minF(0.85, confidence+0.10)
		notes = append(notes, "Detected some matrix signals")
	}

	if isGarbled {
		confidence = maxF(0.05, confidence-0.25)
		notes = append(notes, "Text looks garbled (low printable ratio)")
	}

	if hasTable {
		confidence = minF(0.95, confidence+0.05)
		notes = append(notes, "Detected possible table signals")
	}

	if isScanned {
		confidence = minF(confidence, 0.10)
		notes = append(notes, "Looks like scanned/empty PDF (no embedded text)")
	}

	return QualityReport{
		Confidence:       round3(confidence),
		CharCount:        charCount,
		WordCount:        wordCount,
		LineCount:        lineCount,
		PrintableRatio:   round3(ratio),
		HasMatrixSignals: hasMatrix,
		HasTableSignals:  hasTable,
		IsScannedLikely:  isScanned,
		IsGarbledLikely:  isGarbled,
		Notes:            notes,
	}
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
