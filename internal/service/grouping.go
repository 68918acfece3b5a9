package service

import (
	"sort"
	"strings"
	"unicode/utf8"

	"feedback-go/internal/models"
)

const (
	// DefaultGroupThreshold is used for full grouping passes.
	DefaultGroupThreshold = 0.75
	// DefaultSuggestThreshold is used when proposing "possibly same person".
	DefaultSuggestThreshold = 0.65
)

// GroupNames partitions variants into probable-same-person groups.
//
// The clustering is greedy and order sensitive on purpose: variants are
// visited by descending count (ties keep input order), each unassigned
// variant seeds a group, and only the seed is compared against the remaining
// unassigned variants. Repeated runs over the same input therefore elect the
// same canonical names.
func GroupNames(variants []models.NameVariant, threshold float64) []models.NameGroup {
	if threshold <= 0 {
		threshold = DefaultGroupThreshold
	}
	ordered := make([]models.NameVariant, len(variants))
	copy(ordered, variants)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Count > ordered[j].Count
	})

	normalized := make([]string, len(ordered))
	for i, v := range ordered {
		normalized[i] = Normalize(v.Raw)
	}

	assigned := make([]bool, len(ordered))
	groups := []models.NameGroup{}
	for seed := range ordered {
		if assigned[seed] {
			continue
		}
		assigned[seed] = true
		members := []int{seed}
		for j := seed + 1; j < len(ordered); j++ {
			if assigned[j] {
				continue
			}
			if SameEntity(normalized[seed], normalized[j], threshold) {
				assigned[j] = true
				members = append(members, j)
			}
		}
		groups = append(groups, buildGroup(ordered, normalized, members))
	}
	return groups
}

// buildGroup elects the canonical label: highest summed count per raw string,
// then longest normalized form, then first visited.
func buildGroup(variants []models.NameVariant, normalized []string, members []int) models.NameGroup {
	counts := make(map[string]int, len(members))
	norms := make(map[string]string, len(members))
	raws := make([]string, 0, len(members))
	total := 0
	for _, idx := range members {
		raw := variants[idx].Raw
		if _, seen := counts[raw]; !seen {
			raws = append(raws, raw)
			norms[raw] = normalized[idx]
		}
		counts[raw] += variants[idx].Count
		total += variants[idx].Count
	}

	winner := raws[0]
	for _, raw := range raws[1:] {
		switch {
		case counts[raw] > counts[winner]:
			winner = raw
		case counts[raw] == counts[winner] &&
			utf8.RuneCountInString(norms[raw]) > utf8.RuneCountInString(norms[winner]):
			winner = raw
		}
	}

	canonical := norms[winner]
	if canonical == "" {
		canonical = strings.TrimSpace(winner)
	}
	return models.NameGroup{
		Canonical:      canonical,
		Variants:       raws,
		TotalFeedbacks: total,
	}
}

// CountVariants collects the distinct trimmed values of a column with counts,
// in first-seen order.
func CountVariants(ds *models.Dataset, column string) []models.NameVariant {
	col, ok := ds.Column(column)
	if !ok {
		return []models.NameVariant{}
	}
	order, counts := ds.DistinctValues(col)
	out := make([]models.NameVariant, 0, len(order))
	for _, v := range order {
		out = append(out, models.NameVariant{Raw: v, Count: counts[v]})
	}
	return out
}
