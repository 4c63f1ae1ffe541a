package core

import "context"

// Marker labels a structural boundary (page, slide, sheet) at a byte offset
// of the extracted text. Chunks inherit the nearest preceding marker.
type Marker struct {
	Offset int
	Label  string
}

// DocumentExtractor converts a raw blob of one known format into plain text
// plus structural markers. Implementations are stateless; failures map to
// UnsupportedFormatError or CorruptContentError, both non-retryable.
type DocumentExtractor interface {
	Extract(ctx context.Context, blob []byte) (text string, markers []Marker, err error)
}
