package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-ai/lectern/internal/core"
)

func TestForFilenameUnsupportedExtension(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"virus.exe", "archive.zip", "noext", "script.sh"} {
		_, err := r.ForFilename(name)
		var unsupported *core.UnsupportedFormatError
		require.ErrorAs(t, err, &unsupported, "%s must be rejected", name)
		assert.False(t, core.IsRetryable(err))
	}
}

func TestForFilenameCaseInsensitive(t *testing.T) {
	r := NewRegistry()

	ext, err := r.ForFilename("Lecture01.PDF")
	require.NoError(t, err)
	assert.IsType(t, &PDFExtractor{}, ext)

	ext, err = r.ForFilename("NOTES.TXT")
	require.NoError(t, err)
	assert.IsType(t, &PlainTextExtractor{}, ext)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("slides.pptx"))
	assert.True(t, Supported("grades.xlsx"))
	assert.True(t, Supported("scan.jpeg"))
	assert.False(t, Supported("setup.exe"))
	assert.False(t, Supported("Makefile"))
}

func TestPlainTextExtract(t *testing.T) {
	var e PlainTextExtractor
	text, markers, err := e.Extract(context.Background(), []byte("  hello\nworld  \n"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)
	assert.Empty(t, markers)
}

func TestPlainTextExtractScrubsInvalidUTF8(t *testing.T) {
	var e PlainTextExtractor
	text, _, err := e.Extract(context.Background(), []byte{'o', 'k', 0xff, 0xfe, '!'})
	require.NoError(t, err)
	assert.Equal(t, "ok!", text)
}

func TestPDFExtractCorruptBlob(t *testing.T) {
	var e PDFExtractor
	_, _, err := e.Extract(context.Background(), []byte("%PDF-1.7 this is not a real pdf"))
	var corrupt *core.CorruptContentError
	require.ErrorAs(t, err, &corrupt)
	assert.False(t, core.IsRetryable(err))
}

func TestSlideDeckExtractCorruptBlob(t *testing.T) {
	var e SlideDeckExtractor
	_, _, err := e.Extract(context.Background(), []byte("not a zip archive"))
	var corrupt *core.CorruptContentError
	require.ErrorAs(t, err, &corrupt)
}

func TestSpreadsheetExtractCorruptBlob(t *testing.T) {
	var e SpreadsheetExtractor
	_, _, err := e.Extract(context.Background(), []byte("not an xlsx"))
	var corrupt *core.CorruptContentError
	require.ErrorAs(t, err, &corrupt)
}

func TestExtractHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var e PlainTextExtractor
	_, _, err := e.Extract(ctx, []byte("text"))
	assert.True(t, errors.Is(err, context.Canceled))
}
