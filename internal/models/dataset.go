package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ValueKind tags the type held by a Value.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
)

// Value is a single cell. Raw always keeps the text exactly as read so exports
// reproduce the source.
type Value struct {
	Kind ValueKind
	Raw  string
	Num  float64
}

// ParseValue tags a raw cell as empty, number or string.
func ParseValue(raw string) Value {
	t := strings.TrimSpace(raw)
	if t == "" {
		return Value{Kind: KindEmpty, Raw: raw}
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return Value{Kind: KindNumber, Raw: raw, Num: f}
	}
	return Value{Kind: KindString, Raw: raw}
}

// Text returns the trimmed raw text.
func (v Value) Text() string { return strings.TrimSpace(v.Raw) }

func (v Value) IsEmpty() bool { return v.Kind == KindEmpty }

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNumber {
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.Raw)
}

// Row is aligned with the owning Dataset's Headers.
type Row []Value

// Dataset is one snapshot of a sheet: an ordered, unique header set and its
// rows. Datasets are never mutated after construction; filtering produces a
// new Dataset sharing the header index.
type Dataset struct {
	Headers []string
	Rows    []Row
	index   map[string]int
}

// NewDataset builds the header lookup table once for the snapshot.
func NewDataset(headers []string, rows []Row) *Dataset {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	if rows == nil {
		rows = []Row{}
	}
	return &Dataset{Headers: headers, Rows: rows, index: index}
}

// Len returns the number of data rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Column returns the position of a header.
func (d *Dataset) Column(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// Cell is bounds-safe: short rows read as empty.
func (d *Dataset) Cell(row Row, col int) Value {
	if col < 0 || col >= len(row) {
		return Value{Kind: KindEmpty}
	}
	return row[col]
}

// WithRows returns a dataset over the same headers.
func (d *Dataset) WithRows(rows []Row) *Dataset {
	if rows == nil {
		rows = []Row{}
	}
	return &Dataset{Headers: d.Headers, Rows: rows, index: d.index}
}

// RowObject renders a row keyed by header for JSON responses.
func (d *Dataset) RowObject(row Row) map[string]Value {
	out := make(map[string]Value, len(d.Headers))
	for i, h := range d.Headers {
		out[h] = d.Cell(row, i)
	}
	return out
}

// RawObject renders a row with the untouched source strings.
func (d *Dataset) RawObject(row Row) map[string]string {
	out := make(map[string]string, len(d.Headers))
	for i, h := range d.Headers {
		out[h] = d.Cell(row, i).Raw
	}
	return out
}

// DistinctValues lists the trimmed non-empty values of a column in first-seen
// order with their occurrence counts.
func (d *Dataset) DistinctValues(col int) ([]string, map[string]int) {
	order := []string{}
	counts := make(map[string]int)
	for _, row := range d.Rows {
		v := d.Cell(row, col).Text()
		if v == "" {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
	}
	return order, counts
}
