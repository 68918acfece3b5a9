// Package source reads survey sheets into datasets.
package source

import (
	"context"
	"fmt"
	"strings"

	"feedback-go/internal/models"

	"github.com/rotisserie/eris"
)

// ErrUnreachable marks a sheet that could not be read (network, permission,
// missing file).
var ErrUnreachable = eris.New("source unreachable")

// Source is the sheet transport.
type Source interface {
	// GetSheetData returns the header row and every data row.
	GetSheetData(ctx context.Context, url string) (*models.Dataset, error)
	// GetRowCount is a cheap probe used for change detection.
	GetRowCount(ctx context.Context, url string) (int, error)
}

// BuildDataset turns raw records (header row first) into a Dataset. Header
// names are trimmed, blanks become "Column N" and repeats get a " (2)", " (3)"
// suffix. Rows are padded or cut to the header width; blank rows are dropped.
func BuildDataset(records [][]string) *models.Dataset {
	if len(records) == 0 {
		return models.NewDataset([]string{}, nil)
	}
	headers := uniqueHeaders(records[0])
	rows := make([]models.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		row := make(models.Row, len(headers))
		for i := range headers {
			if i < len(rec) {
				row[i] = models.ParseValue(rec[i])
			} else {
				row[i] = models.Value{Kind: models.KindEmpty}
			}
		}
		rows = append(rows, row)
	}
	return models.NewDataset(headers, rows)
}

func uniqueHeaders(raw []string) []string {
	seen := make(map[string]int, len(raw))
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		base := h
		for seen[h] > 0 {
			seen[base]++
			h = fmt.Sprintf("%s (%d)", base, seen[base])
		}
		seen[h]++
		headers[i] = h
	}
	return headers
}

func blankRecord(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
