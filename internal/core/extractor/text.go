package extractor

import (
	"context"
	"strings"

	"github.com/lectern-ai/lectern/internal/core"
)

// PlainTextExtractor passes text through, scrubbing invalid UTF-8 so
// downstream embedding calls never see broken runes.
type PlainTextExtractor struct{}

var _ core.DocumentExtractor = (*PlainTextExtractor)(nil)

func (e *PlainTextExtractor) Extract(ctx context.Context, blob []byte) (string, []core.Marker, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	text := strings.ToValidUTF8(string(blob), "")
	return strings.TrimSpace(text), nil, nil
}
