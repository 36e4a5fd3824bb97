package pdfextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreExtraction_ScannedPDFHardCapped(t *testing.T) {
	r := ScoreExtraction("", 5, 0)
	assert.True(t, r.IsScannedLikely)
	assert.LessOrEqual(t, r.Confidence, 0.10)
	assert.Contains(t, r.Notes, "No pages had extractable text")
	assert.Contains(t, r.Notes, "Looks like scanned/empty PDF (no embedded text)")
}

func TestScoreExtraction_TinyTextIsLowConfidence(t *testing.T) {
	r := ScoreExtraction("short snippet of text", 1, 1)
	assert.Equal(t, 0.10, r.Confidence)
	assert.Contains(t, r.Notes, "Extracted text is very small")
}

func TestScoreExtraction_ModerateVolumeBucket(t *testing.T) {
	text := strings.Repeat("word ", 200) // 1000 chars, no signals
	r := ScoreExtraction(text, 2, 2)
	assert.Equal(t, 0.40, r.Confidence)
	assert.Contains(t, r.Notes, "Moderate text volume")
}

func TestScoreExtraction_HighVolumeWithMatrixSignalsBoosted(t *testing.T) {
	text := strings.Repeat("word ", 600) + " level competency scope expectations responsibilities behaviors"
	r := ScoreExtraction(text, 3, 3)
	assert.True(t, r.HasMatrixSignals)
	assert.InDelta(t, 0.95, r.Confidence, 0.001)
	assert.Contains(t, r.Notes, "High text volume")
	assert.Contains(t, r.Notes, "Detected leveling/matrix signals")
}

func TestScoreExtraction_TableSignalsAddBonus(t *testing.T) {
	text := strings.Repeat("word ", 600) + " | table row column"
	r := ScoreExtraction(text, 3, 3)
	assert.True(t, r.HasTableSignals)
	assert.InDelta(t, 0.85, r.Confidence, 0.001)
}

func TestScoreExtraction_GarbledTextPenalized(t *testing.T) {
	garbled := strings.Repeat("\x01\x02\x03\x04\x05", 400)
	r := ScoreExtraction(garbled, 2, 2)
	assert.True(t, r.IsGarbledLikely)
	assert.Equal(t, 0.15, r.Confidence) // 0.40 moderate-volume base - 0.25 garbled penalty
}

func TestScoreExtraction_EmptyTextHasZeroPrintableRatio(t *testing.T) {
	r := ScoreExtraction("", 0, 0)
	assert.Equal(t, 0.0, r.PrintableRatio)
}
