package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"code.sajari.com/docconv"

	"github.com/lectern-ai/lectern/internal/core"
)

// WordExtractor converts .docx via docconv. Word files carry no reliable
// page boundaries, so no markers are emitted.
type WordExtractor struct{}

var _ core.DocumentExtractor = (*WordExtractor)(nil)

func (e *WordExtractor) Extract(ctx context.Context, blob []byte) (string, []core.Marker, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	text, _, err := docconv.ConvertDocx(bytes.NewReader(blob))
	if err != nil {
		return "", nil, &core.CorruptContentError{Format: "docx", Err: err}
	}
	return strings.TrimSpace(text), nil, nil
}

var slidePathRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SlideDeckExtractor walks the .pptx container slide by slide so slide
// boundaries survive as markers; docconv's pptx path would flatten them.
// Each slide's XML is converted through docconv's XML text extraction.
type SlideDeckExtractor struct{}

var _ core.DocumentExtractor = (*SlideDeckExtractor)(nil)

func (e *SlideDeckExtractor) Extract(ctx context.Context, blob []byte) (string, []core.Marker, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", nil, &core.CorruptContentError{Format: "pptx", Err: err}
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePathRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var (
		sb      strings.Builder
		markers []core.Marker
	)
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		rc, err := s.file.Open()
		if err != nil {
			return "", nil, &core.CorruptContentError{Format: "pptx", Err: err}
		}
		// a:p delimits paragraphs inside a slide's drawing XML.
		text, err := docconv.XMLToText(rc, []string{"a:p"}, nil, true)
		rc.Close()
		if err != nil {
			return "", nil, &core.CorruptContentError{Format: "pptx", Err: fmt.Errorf("slide %d: %w", s.num, err)}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		markers = append(markers, core.Marker{Offset: sb.Len(), Label: fmt.Sprintf("Slide %d", s.num)})
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return sb.String(), markers, nil
}
