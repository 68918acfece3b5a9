package service

import (
	"context"
	"path/filepath"
	"testing"

	"feedback-go/internal/models"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryOverlays(t *testing.T) *OverlayService {
	t.Helper()
	store, err := NewFileOverlayStore("")
	require.NoError(t, err)
	return NewOverlayService(store, nil)
}

func TestMergeRejectsAmbiguousRequests(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryOverlays(t)

	_, err := svc.Merge(ctx, "u", "src", "Faculty", "  ", []string{"a", "b"})
	assert.True(t, eris.Is(err, ErrInvalidMerge))

	_, err = svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"Dr. Rao"})
	assert.True(t, eris.Is(err, ErrInvalidMerge))

	_, err = svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"Dr. Rao", " Dr. Rao ", ""})
	assert.True(t, eris.Is(err, ErrInvalidMerge), "duplicates count once")

	_, err = svc.Merge(ctx, "u", "src", "", "Rao", []string{"a", "b"})
	assert.True(t, eris.Is(err, ErrInvalidMerge))

	set, err := svc.Overlays(ctx, "u", "src")
	require.NoError(t, err)
	assert.Empty(t, set, "rejected merges persist nothing")
}

func TestMergeMovesVariantsBetweenCanonicals(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryOverlays(t)

	_, err := svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"Dr. Rao", "Rao Sir"})
	require.NoError(t, err)
	_, err = svc.Merge(ctx, "u", "src", "Faculty", "Iyer", []string{"Iyer", "Meena Iyer"})
	require.NoError(t, err)

	entries, err := svc.Merge(ctx, "u", "src", "Faculty", "R. Rao", []string{"Dr. Rao", "Rao Sir", "RAO"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"Iyer":   {"Iyer", "Meena Iyer"},
		"R. Rao": {"Dr. Rao", "Rao Sir", "RAO"},
	}, entries, "emptied canonical is deleted")

	entries, err = svc.Merge(ctx, "u", "src", "Faculty", "Iyer", []string{"Meena", "M. Iyer"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"Iyer":   {"Meena", "M. Iyer"},
		"R. Rao": {"Dr. Rao", "Rao Sir", "RAO"},
	}, entries)

	other, err := svc.Overlays(ctx, "someone-else", "src")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMergeReplacesExistingCanonical(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryOverlays(t)

	_, err := svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"A", "B"})
	require.NoError(t, err)
	entries, err := svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"C", "D"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Rao": {"C", "D"}}, entries)

	// a variant may stay under its canonical while others are swapped out
	entries, err = svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"D", "E"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Rao": {"D", "E"}}, entries)

	set, err := svc.Overlays(ctx, "u", "src")
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "E"}, set["Faculty"]["Rao"])
}

func TestUnmerge(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryOverlays(t)

	_, err := svc.Merge(ctx, "u", "src", "Faculty", "Rao", []string{"Dr. Rao", "RAO"})
	require.NoError(t, err)
	require.NoError(t, svc.Unmerge(ctx, "u", "src", "Faculty", "Rao"))

	set, err := svc.Overlays(ctx, "u", "src")
	require.NoError(t, err)
	assert.Empty(t, set["Faculty"])

	err = svc.Unmerge(ctx, "u", "src", "Faculty", "Rao")
	assert.True(t, eris.Is(err, ErrOverlayNotFound))
}

func TestMappingFromOverlayPrecedence(t *testing.T) {
	m := MappingFromOverlay(map[string][]string{"Rao": {"Dr. Rao", "RAO"}})
	got := m.Expand([]string{"Dr. Rao"})
	assert.Contains(t, got, "RAO")
	assert.NotContains(t, got, "Rao Sir")
}

func TestSuggestSimilar(t *testing.T) {
	all := []string{"Dr. Rao", "Rao Sir", "RAO", "Meena Iyer", "Rau", "Kulkarni"}
	got := SuggestSimilar([]string{"Dr. Rao"}, all, 0)
	assert.Equal(t, []string{"Rao Sir", "RAO", "Rau"}, got)

	assert.Empty(t, SuggestSimilar(nil, all, 0))
	assert.Empty(t, SuggestSimilar([]string{"Kulkarni"}, []string{"Kulkarni"}, 0))
}

func TestDisplayOptions(t *testing.T) {
	entries := map[string][]string{"Rao": {"Dr. Rao", "RAO"}}
	got := DisplayOptions([]string{"RAO", "Iyer", "Dr. Rao", "Rao Sir", "Iyer"}, entries)
	assert.Equal(t, []models.DisplayOption{
		{Label: "Iyer", Variants: []string{"Iyer"}, Count: 1},
		{Label: "Rao", Variants: []string{"RAO", "Dr. Rao"}, Count: 2},
		{Label: "Rao Sir", Variants: []string{"Rao Sir"}, Count: 1},
	}, got)

	plain := DisplayOptions([]string{"b", "a"}, nil)
	assert.Equal(t, "a", plain[0].Label)
}

func TestFileOverlayStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "overlays.yaml")

	store, err := NewFileOverlayStore(path)
	require.NoError(t, err)
	svc := NewOverlayService(store, nil)
	_, err = svc.Merge(ctx, "alice", "src-1", "Faculty", "Rao", []string{"Dr. Rao", "RAO"})
	require.NoError(t, err)

	reopened, err := NewFileOverlayStore(path)
	require.NoError(t, err)
	set, err := reopened.Load(ctx, "alice", "src-1")
	require.NoError(t, err)
	assert.Equal(t, models.OverlaySet{"Faculty": {"Rao": {"Dr. Rao", "RAO"}}}, set)

	set["Faculty"]["Rao"][0] = "mutated"
	again, _ := reopened.Load(ctx, "alice", "src-1")
	assert.Equal(t, "Dr. Rao", again["Faculty"]["Rao"][0], "Load returns a copy")
}

func TestSQLOverlayStoreSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenOverlayStore("sqlite", "", ":memory:")
	require.NoError(t, err)
	defer store.Close()

	svc := NewOverlayService(store, nil)
	_, err = svc.Merge(ctx, "alice", "src-1", "Faculty", "Rao", []string{"Dr. Rao", "RAO"})
	require.NoError(t, err)
	_, err = svc.Merge(ctx, "alice", "src-1", "Course Name", "DSA", []string{"DSA", "Data Structures"})
	require.NoError(t, err)
	_, err = svc.Merge(ctx, "bob", "src-1", "Faculty", "Iyer", []string{"Iyer", "Meena Iyer"})
	require.NoError(t, err)

	set, err := store.Load(ctx, "alice", "src-1")
	require.NoError(t, err)
	assert.Equal(t, models.OverlaySet{
		"Faculty":     {"Rao": {"Dr. Rao", "RAO"}},
		"Course Name": {"DSA": {"DSA", "Data Structures"}},
	}, set)

	require.NoError(t, svc.Unmerge(ctx, "alice", "src-1", "Faculty", "Rao"))
	set, err = store.Load(ctx, "alice", "src-1")
	require.NoError(t, err)
	assert.NotContains(t, set, "Faculty")

	bob, err := store.Load(ctx, "bob", "src-1")
	require.NoError(t, err)
	assert.Len(t, bob["Faculty"], 1)
}

func TestOpenOverlayStoreUnknown(t *testing.T) {
	_, err := OpenOverlayStore("mongo", "", "")
	assert.Error(t, err)
	_, err = OpenOverlayStore("postgres", "", "")
	assert.Error(t, err)
}
