package pdfextract

import (
	"io"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelforge/guideforge/apperr"
)

func TestExtractTextFromBytes_EmptyInputIsValidationError(t *testing.T) {
	_, err := ExtractTextFromBytes(nil)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeValidation, appErr.Code)
}

func TestExtractTextFromBytes_GarbageBytesIsStorageError(t *testing.T) {
	_, err := ExtractTextFromBytes([]byte("this is not a pdf"))
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeStorage, appErr.Code)
}

func TestJoinTextFragments_InsertsLineBreaksAndWordGaps(t *testing.T) {
	fragments := []pdf.Text{
		{X: 0, Y: 100, W: 10, FontSize: 10, S: "Hello"},
		{X: 40, Y: 100, W: 10, FontSize: 10, S: "World"},
		{X: 0, Y: 88, W: 10, FontSize: 10, S: "Second"},
		{X: 30, Y: 88, W: 10, FontSize: 10, S: "Line"},
	}

	got := joinTextFragments(fragments)
	assert.Equal(t, "Hello World\nSecond Line", got)
}

func TestJoinTextFragments_EmptyInput(t *testing.T) {
	assert.Equal(t, "", joinTextFragments(nil))
}

func TestBytesReaderAt_ReadAtOffsets(t *testing.T) {
	r := newBytesReaderAt([]byte("abcdef"))

	buf := make([]byte, 3)
	n, err := r.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "cde", string(buf))

	_, err = r.ReadAt(buf, 100)
	assert.ErrorIs(t, err, io.EOF)
}
