package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/lectern-ai/lectern/internal/core"
)

// PDFExtractor pulls plain text page by page, emitting one marker per page.
type PDFExtractor struct{}

var _ core.DocumentExtractor = (*PDFExtractor)(nil)

func (e *PDFExtractor) Extract(ctx context.Context, blob []byte) (_ string, _ []core.Marker, err error) {
	// The pdf package panics on some malformed files; fold that into the
	// same non-retryable error as a regular parse failure.
	defer func() {
		if r := recover(); r != nil {
			err = &core.CorruptContentError{Format: "pdf", Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()

	reader := bytes.NewReader(blob)
	doc, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", nil, &core.CorruptContentError{Format: "pdf", Err: err}
	}

	var (
		sb      strings.Builder
		markers []core.Marker
	)
	for n := 1; n <= doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		page := doc.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, &core.CorruptContentError{Format: "pdf", Err: fmt.Errorf("page %d: %w", n, err)}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		markers = append(markers, core.Marker{Offset: sb.Len(), Label: fmt.Sprintf("Page %d", n)})
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), markers, nil
}
