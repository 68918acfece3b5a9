package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"feedback-go/internal/models"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// OverlayService manages user-authored merge overlays. Overlays are only
// ever changed by an explicit merge or unmerge.
type OverlayService struct {
	store  OverlayStore
	logger *zap.SugaredLogger
	// serializes read-modify-write cycles against the store
	mu sync.Mutex
}

func NewOverlayService(store OverlayStore, logger *zap.SugaredLogger) *OverlayService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &OverlayService{store: store, logger: logger}
}

// Overlays returns every overlay entry of a data source.
func (s *OverlayService) Overlays(ctx context.Context, owner, sourceID string) (models.OverlaySet, error) {
	set, err := s.store.Load(ctx, owner, sourceID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		set = models.OverlaySet{}
	}
	return set, nil
}

// Merge groups variants under canonical. The variants are first taken out of
// any other canonical of the category, and canonicals left empty are dropped.
// Merging into an existing canonical replaces its variants.
func (s *OverlayService) Merge(ctx context.Context, owner, sourceID, category, canonical string, variants []string) (map[string][]string, error) {
	category = strings.TrimSpace(category)
	canonical = strings.TrimSpace(canonical)
	selected := dedupeTrimmed(variants)
	switch {
	case category == "":
		return nil, eris.Wrap(ErrInvalidMerge, "category is empty")
	case canonical == "":
		return nil, eris.Wrap(ErrInvalidMerge, "canonical name is empty")
	case len(selected) < 2:
		return nil, eris.Wrapf(ErrInvalidMerge, "need at least 2 distinct variants, got %d", len(selected))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.store.Load(ctx, owner, sourceID)
	if err != nil {
		return nil, err
	}
	entries := cloneEntries(set[category])

	moving := make(map[string]struct{}, len(selected))
	for _, v := range selected {
		moving[v] = struct{}{}
	}
	for name, members := range entries {
		kept := members[:0:0]
		for _, m := range members {
			if _, ok := moving[m]; !ok {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(entries, name)
			continue
		}
		entries[name] = kept
	}
	entries[canonical] = selected

	if err := s.store.SaveCategory(ctx, owner, sourceID, category, entries); err != nil {
		return nil, err
	}
	s.logger.Infow("names merged",
		"source", sourceID, "category", category, "canonical", canonical, "variants", len(selected))
	return entries, nil
}

// Unmerge deletes one overlay entry; its variants go back to the automatic
// grouping.
func (s *OverlayService) Unmerge(ctx context.Context, owner, sourceID, category, canonical string) error {
	category = strings.TrimSpace(category)
	canonical = strings.TrimSpace(canonical)

	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.store.Load(ctx, owner, sourceID)
	if err != nil {
		return err
	}
	entries := cloneEntries(set[category])
	if _, ok := entries[canonical]; !ok {
		return eris.Wrapf(ErrOverlayNotFound, "%s / %s", category, canonical)
	}
	delete(entries, canonical)
	if err := s.store.SaveCategory(ctx, owner, sourceID, category, entries); err != nil {
		return err
	}
	s.logger.Infow("names unmerged", "source", sourceID, "category", category, "canonical", canonical)
	return nil
}

// MappingFromOverlay flattens a category's overlay into a NameMapping.
// Canonicals are visited in sorted order so a variant listed twice resolves
// deterministically.
func MappingFromOverlay(entries map[string][]string) *models.NameMapping {
	canonicals := make([]string, 0, len(entries))
	for c := range entries {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	groups := make([]models.NameGroup, 0, len(canonicals))
	for _, c := range canonicals {
		groups = append(groups, models.NameGroup{Canonical: c, Variants: entries[c]})
	}
	return models.NewNameMapping(groups)
}

// SuggestSimilar proposes names from all that look like any selected name.
// Selected names themselves are never suggested. The result keeps the order
// of all.
func SuggestSimilar(selected, all []string, threshold float64) []string {
	if threshold <= 0 {
		threshold = DefaultSuggestThreshold
	}
	picked := dedupeTrimmed(selected)
	if len(picked) == 0 {
		return []string{}
	}
	chosen := make(map[string]struct{}, len(picked))
	seeds := make([]string, 0, len(picked))
	for _, p := range picked {
		chosen[p] = struct{}{}
		seeds = append(seeds, Normalize(p))
	}

	out := []string{}
	for _, candidate := range dedupeTrimmed(all) {
		if _, ok := chosen[candidate]; ok {
			continue
		}
		norm := Normalize(candidate)
		for _, seed := range seeds {
			if SameEntity(seed, norm, threshold) {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// DisplayOptions resolves raw filter values against a category's overlay:
// each value maps to the canonical it is listed under, or to itself. Values
// sharing a label collapse into one option. Options are sorted by label.
func DisplayOptions(values []string, entries map[string][]string) []models.DisplayOption {
	mapping := MappingFromOverlay(entries)
	index := map[string]int{}
	out := []models.DisplayOption{}
	for _, v := range dedupeTrimmed(values) {
		label := mapping.Canonical(v)
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, models.DisplayOption{Label: label})
		}
		out[i].Variants = append(out[i].Variants, v)
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func dedupeTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
