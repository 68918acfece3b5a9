package models

// SheetMetadata is returned by the metadata endpoint
type SheetMetadata struct {
	Headers   []string            `json:"headers"`
	Filters   map[string][]string `json:"filters"`
	TotalRows int                 `json:"totalRows"`
}

// Pagination describes one page of filtered rows
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	TotalRows  int  `json:"totalRows"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// FilteredData is returned by the paginated data endpoint
type FilteredData struct {
	Headers    []string           `json:"headers"`
	Data       []map[string]Value `json:"data"`
	Pagination Pagination         `json:"pagination"`
}

// ExportData carries the untouched source strings of every matching row
type ExportData struct {
	Headers   []string            `json:"headers"`
	Data      []map[string]string `json:"data"`
	TotalRows int                 `json:"totalRows"`
}

// NameMappings is returned by the name-mappings endpoint
type NameMappings struct {
	FacultyColumn string      `json:"facultyColumn"`
	Groups        []NameGroup `json:"groups"`
}

// UpdateCheck reports whether the backing sheet changed size
type UpdateCheck struct {
	HasChanged           bool `json:"hasChanged"`
	Delta                int  `json:"delta"`
	ShouldInstantRefresh bool `json:"shouldInstantRefresh"`
}

// SheetRequest is the body shared by the analytics/data/export endpoints
type SheetRequest struct {
	URL      string      `json:"url"`
	Filters  FilterState `json:"filters"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// MergeRequest for /api/overlays/merge
type MergeRequest struct {
	URL           string   `json:"url"`
	Category      string   `json:"category"`
	CanonicalName string   `json:"canonicalName"`
	Variants      []string `json:"variants"`
}

// SuggestRequest for /api/overlays/suggest
type SuggestRequest struct {
	Selected  []string `json:"selected"`
	All       []string `json:"all"`
	Threshold float64  `json:"threshold"`
}

// DisplayOptionsRequest for /api/overlays/display-options
type DisplayOptionsRequest struct {
	URL      string   `json:"url"`
	Category string   `json:"category"`
	Values   []string `json:"values"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}
