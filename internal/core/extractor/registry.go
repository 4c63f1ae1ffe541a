// Package extractor converts raw file blobs into plain text plus page,
// slide, and sheet markers. One variant per supported format; new formats
// are added by registering a variant, not by growing a conditional.
package extractor

import (
	"path/filepath"
	"strings"

	"github.com/lectern-ai/lectern/internal/core"
)

// Format identifies one extraction variant.
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatWord        Format = "word-document"
	FormatSlideDeck   Format = "slide-deck"
	FormatSpreadsheet Format = "spreadsheet"
	FormatPlainText   Format = "plain-text"
	FormatImage       Format = "image"
)

var formatByExt = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatWord,
	".pptx": FormatSlideDeck,
	".xlsx": FormatSpreadsheet,
	".txt":  FormatPlainText,
	".md":   FormatPlainText,
	".jpg":  FormatImage,
	".jpeg": FormatImage,
	".png":  FormatImage,
}

// Registry dispatches blobs to the extractor variant for their format.
type Registry struct {
	extractors map[Format]core.DocumentExtractor
}

func NewRegistry() *Registry {
	return &Registry{
		extractors: map[Format]core.DocumentExtractor{
			FormatPDF:         &PDFExtractor{},
			FormatWord:        &WordExtractor{},
			FormatSlideDeck:   &SlideDeckExtractor{},
			FormatSpreadsheet: &SpreadsheetExtractor{},
			FormatPlainText:   &PlainTextExtractor{},
			FormatImage:       &ImageExtractor{},
		},
	}
}

// Register installs or replaces the extractor variant for a format.
func (r *Registry) Register(f Format, e core.DocumentExtractor) {
	r.extractors[f] = e
}

// ForFilename resolves the extractor for a filename's extension.
func (r *Registry) ForFilename(name string) (core.DocumentExtractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	f, ok := formatByExt[ext]
	if !ok {
		return nil, &core.UnsupportedFormatError{Ext: ext}
	}
	return r.extractors[f], nil
}

// Supported reports whether the filename's extension is in the supported
// set. Used by upload validation before anything is stored or enqueued.
func Supported(name string) bool {
	_, ok := formatByExt[strings.ToLower(filepath.Ext(name))]
	return ok
}
