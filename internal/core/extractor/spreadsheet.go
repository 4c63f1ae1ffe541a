package extractor

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/lectern-ai/lectern/internal/core"
)

// SpreadsheetExtractor flattens .xlsx cells row-major per sheet, with one
// marker at each sheet boundary. Cells within a row are tab-joined.
type SpreadsheetExtractor struct{}

var _ core.DocumentExtractor = (*SpreadsheetExtractor)(nil)

func (e *SpreadsheetExtractor) Extract(ctx context.Context, blob []byte) (string, []core.Marker, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return "", nil, &core.CorruptContentError{Format: "xlsx", Err: err}
	}
	defer f.Close()

	var (
		sb      strings.Builder
		markers []core.Marker
	)
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", nil, &core.CorruptContentError{Format: "xlsx", Err: err}
		}
		wrote := false
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			if !wrote {
				markers = append(markers, core.Marker{Offset: sb.Len(), Label: "Sheet: " + sheet})
				wrote = true
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		if wrote {
			sb.WriteString("\n")
		}
	}
	return sb.String(), markers, nil
}
