package analysis

import (
	"strings"

	"feedback-go/internal/models"
)

// ApplyFilters keeps the rows whose trimmed cell is in every active
// category's match-set (AND across categories, OR within one). Categories
// missing from the headers and empty selections are ignored. When a category
// has a name mapping, each selected value is expanded to all variants of its
// canonical group before matching.
//
// The input dataset is not modified; the returned dataset shares its row
// values.
func ApplyFilters(ds *models.Dataset, filters models.FilterState, mappings map[string]*models.NameMapping) *models.Dataset {
	type criterion struct {
		col     int
		matches map[string]struct{}
	}
	criteria := make([]criterion, 0, len(filters))
	for category, selected := range filters {
		if len(selected) == 0 {
			continue
		}
		col, ok := ds.Column(category)
		if !ok {
			continue
		}
		values := make([]string, len(selected))
		for i, v := range selected {
			values[i] = strings.TrimSpace(v)
		}
		// A nil mapping expands to the literal selection.
		matches := mappings[category].Expand(values)
		criteria = append(criteria, criterion{col: col, matches: matches})
	}
	if len(criteria) == 0 {
		return ds.WithRows(append([]models.Row(nil), ds.Rows...))
	}

	kept := make([]models.Row, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		pass := true
		for _, c := range criteria {
			if _, ok := c.matches[ds.Cell(row, c.col).Text()]; !ok {
				pass = false
				break
			}
		}
		if pass {
			kept = append(kept, row)
		}
	}
	return ds.WithRows(kept)
}
