package extractor

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/lectern-ai/lectern/internal/core"
)

// ImageExtractor runs Tesseract OCR over the image bytes. A fresh client
// per call keeps the extractor stateless; OCR volume is low enough that
// client reuse isn't worth the shared-state hazard.
type ImageExtractor struct {
	// Languages joined with "+" for Tesseract, e.g. "eng+deu". Empty means eng.
	Languages []string
}

var _ core.DocumentExtractor = (*ImageExtractor)(nil)

func (e *ImageExtractor) Extract(ctx context.Context, blob []byte) (string, []core.Marker, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(e.Languages) > 0 {
		if err := client.SetLanguage(strings.Join(e.Languages, "+")); err != nil {
			return "", nil, &core.CorruptContentError{Format: "image", Err: err}
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return "", nil, &core.CorruptContentError{Format: "image", Err: err}
	}
	if err := client.SetImageFromBytes(blob); err != nil {
		return "", nil, &core.CorruptContentError{Format: "image", Err: err}
	}

	text, err := client.Text()
	if err != nil {
		return "", nil, &core.CorruptContentError{Format: "image", Err: err}
	}
	return strings.TrimSpace(text), nil, nil
}
