package analysis

import (
	"sort"
	"strings"

	"feedback-go/internal/models"
)

const (
	// minQuestionHeaderLen: shorter headers are identifiers, not question text.
	minQuestionHeaderLen = 15
	DefaultSampleRows    = 100
	DefaultMaxFilterVals = 500
)

// Metadata headers never treated as questions (exact or prefix match).
var metadataPatterns = []string{
	"timestamp",
	"email",
	"school name",
	"department",
	"semester",
	"class-section",
	"name of faculty",
	"course name",
	"special remark",
}

var filterKeywords = []string{
	"department", "course", "year", "section", "semester", "faculty",
	"teacher", "professor", "subject", "gender", "branch", "batch",
	"division", "program", "class", "school",
}

// Headers that are never filters even when they contain a keyword.
var filterExclusions = []string{"email", "id", "roll", "sn", "sr no", "serial"}

// ClassifierOptions bounds the classifier's sampling.
type ClassifierOptions struct {
	// SampleRows caps rows inspected for the question test.
	SampleRows int
	// MaxFilterValues is the largest distinct count still treated as a
	// category; above it the column is free text.
	MaxFilterValues int
}

// Classifier decides which columns are rating questions and which are filters.
type Classifier struct {
	opts ClassifierOptions
}

func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.SampleRows <= 0 {
		opts.SampleRows = DefaultSampleRows
	}
	if opts.MaxFilterValues <= 0 {
		opts.MaxFilterValues = DefaultMaxFilterVals
	}
	return &Classifier{opts: opts}
}

// ClassifyColumns runs the question pass and the filter pass. The metadata
// denylist only keeps columns out of the question list, so "Department" or
// "Name of Faculty" still become filters. A rating column is never a filter,
// even when its question text contains a category keyword.
func (c *Classifier) ClassifyColumns(ds *models.Dataset) models.ColumnClassification {
	result := models.ColumnClassification{
		QuestionColumns: []string{},
		FilterColumns:   make(map[string][]string),
	}
	for col, header := range ds.Headers {
		if c.isQuestion(ds, col, header) {
			result.QuestionColumns = append(result.QuestionColumns, header)
			continue
		}
		if values, ok := c.filterValues(ds, col, header); ok {
			result.FilterColumns[header] = values
		}
	}
	return result
}

func (c *Classifier) isQuestion(ds *models.Dataset, col int, header string) bool {
	if len(strings.TrimSpace(header)) < minQuestionHeaderLen {
		return false
	}
	if isMetadataHeader(header) {
		return false
	}
	limit := c.opts.SampleRows
	if len(ds.Rows) < limit {
		limit = len(ds.Rows)
	}
	for i := 0; i < limit; i++ {
		if _, ok := ScoreValue(ds.Cell(ds.Rows[i], col)); ok {
			return true
		}
	}
	return false
}

func isMetadataHeader(header string) bool {
	lower := strings.ToLower(strings.TrimSpace(header))
	for _, p := range metadataPatterns {
		if lower == p || strings.HasPrefix(lower, p) {
			return true
		}
	}
	return strings.Contains(lower, "remark") && strings.Contains(lower, "special")
}

// filterValues returns the sorted distinct values of a categorical column.
func (c *Classifier) filterValues(ds *models.Dataset, col int, header string) ([]string, bool) {
	lower := strings.ToLower(strings.TrimSpace(header))
	if !containsAny(lower, filterKeywords) {
		return nil, false
	}
	for _, ex := range filterExclusions {
		if lower == ex {
			return nil, false
		}
	}
	values, _ := ds.DistinctValues(col)
	if len(values) < 1 || len(values) > c.opts.MaxFilterValues {
		return nil, false
	}
	sort.Strings(values)
	return values, true
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
