package models

// NameVariant is one distinct raw spelling observed in a name column.
type NameVariant struct {
	Raw   string `json:"raw"`
	Count int    `json:"count"`
}

// NameGroup is a set of variants believed to refer to one person.
type NameGroup struct {
	Canonical      string   `json:"canonical"`
	Variants       []string `json:"variants"`
	TotalFeedbacks int      `json:"totalFeedbacks"`
}

// NameMapping is the flattened lookup built from a set of groups.
type NameMapping struct {
	VariantToCanonical  map[string]string   `json:"variantToCanonical"`
	CanonicalToVariants map[string][]string `json:"canonicalToVariants"`
}

// NewNameMapping flattens groups. Groups that elected the same canonical label
// share one reverse entry.
func NewNameMapping(groups []NameGroup) *NameMapping {
	m := &NameMapping{
		VariantToCanonical:  make(map[string]string),
		CanonicalToVariants: make(map[string][]string),
	}
	for _, g := range groups {
		for _, v := range g.Variants {
			if _, ok := m.VariantToCanonical[v]; ok {
				continue
			}
			m.VariantToCanonical[v] = g.Canonical
			m.CanonicalToVariants[g.Canonical] = append(m.CanonicalToVariants[g.Canonical], v)
		}
	}
	return m
}

// Canonical resolves a raw value, falling back to the value itself.
func (m *NameMapping) Canonical(raw string) string {
	if m == nil {
		return raw
	}
	if c, ok := m.VariantToCanonical[raw]; ok {
		return c
	}
	return raw
}

// Expand returns the match-set for a selection: every selected value plus all
// siblings of its canonical group.
func (m *NameMapping) Expand(selected []string) map[string]struct{} {
	out := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		out[s] = struct{}{}
		if m == nil {
			continue
		}
		canonical, ok := m.VariantToCanonical[s]
		if !ok {
			canonical = s
		}
		for _, v := range m.CanonicalToVariants[canonical] {
			out[v] = struct{}{}
		}
	}
	return out
}

// OverlaySet is the persisted merge overlay of one data source:
// category -> canonical name -> variants.
type OverlaySet map[string]map[string][]string

// DisplayOption is one entry of a filter dropdown after overlay resolution.
type DisplayOption struct {
	Label    string   `json:"label"`
	Variants []string `json:"variants"`
	Count    int      `json:"count"`
}
