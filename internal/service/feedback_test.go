package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"feedback-go/internal/models"
	"feedback-go/internal/source"
	"feedback-go/internal/state"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sheetURL    = "https://docs.google.com/spreadsheets/d/test-sheet/edit#gid=0"
	questionCol = "The faculty explains concepts clearly and confidently"
)

var raoRecords = [][]string{
	{"Timestamp", "Name of Faculty", "Course Name", "Department", questionCol},
	{"1/15/2024 10:00:00", "Dr. Rao", "DSA", "CSE", "5"},
	{"1/16/2024 11:00:00", "Rao Sir", "DSA", "CSE", "4"},
	{"1/17/2024 12:00:00", "RAO", "OS", "ECE", "3"},
}

func newTestService(t *testing.T, records [][]string) (*FeedbackService, *source.MemorySource) {
	t.Helper()
	src := source.NewMemorySource()
	src.SetRecords(sheetURL, records)
	store, err := NewFileOverlayStore("")
	require.NoError(t, err)
	svc := NewFeedbackService(src, state.NewCache(state.Options{}, nil), NewOverlayService(store, nil), Options{}, nil)
	return svc, src
}

func TestEndToEndRaoScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, raoRecords)

	a, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, a.TotalResponses)
	assert.Equal(t, 4.0, a.OverallAverage)
	require.Len(t, a.FacultyScores, 1)
	assert.Equal(t, "Rao", a.FacultyScores[0].Name)
	assert.Equal(t, 3, a.FacultyScores[0].FeedbackCount)
	assert.Equal(t, 4.0, a.FacultyScores[0].Score)
	assert.Equal(t, []string{"DSA", "OS"}, a.FacultyScores[0].Courses)
	assert.Equal(t, 1, a.FacultyScores[0].Rank)

	for _, spelling := range []string{"Dr. Rao", "Rao Sir", "RAO"} {
		data, err := svc.GetFilteredDataForExport(ctx, "u", sheetURL, models.FilterState{"Name of Faculty": {spelling}})
		require.NoError(t, err)
		assert.Equal(t, 3, data.TotalRows, spelling)
	}
}

func TestMetadata(t *testing.T) {
	svc, _ := newTestService(t, raoRecords)
	meta, err := svc.GetSheetMetadata(context.Background(), sheetURL)
	require.NoError(t, err)
	assert.Equal(t, raoRecords[0], meta.Headers)
	assert.Equal(t, 3, meta.TotalRows)
	assert.Equal(t, []string{"Dr. Rao", "RAO", "Rao Sir"}, meta.Filters["Name of Faculty"])
	assert.Equal(t, []string{"CSE", "ECE"}, meta.Filters["Department"])
	assert.NotContains(t, meta.Filters, questionCol)
}

func TestExportRoundTrip(t *testing.T) {
	records := [][]string{
		{"Name of Faculty", "Remarks"},
		{" Dr. Rao ", "  spaced  "},
		{"Iyer", "4.50"},
	}
	svc, _ := newTestService(t, records)
	data, err := svc.GetFilteredDataForExport(context.Background(), "u", sheetURL, nil)
	require.NoError(t, err)
	require.Equal(t, 2, data.TotalRows)
	assert.Equal(t, " Dr. Rao ", data.Data[0]["Name of Faculty"])
	assert.Equal(t, "  spaced  ", data.Data[0]["Remarks"])
	assert.Equal(t, "4.50", data.Data[1]["Remarks"])
}

func TestFilterComposableWithAggregate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, raoRecords)

	filtered, err := svc.GetAnalytics(ctx, "u", sheetURL, models.FilterState{"Course Name": {"DSA"}})
	require.NoError(t, err)

	byHand, _ := newTestService(t, [][]string{raoRecords[0], raoRecords[1], raoRecords[2]})
	manual, err := byHand.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)

	assert.Equal(t, manual.FacultyScores, filtered.FacultyScores)
	assert.Equal(t, manual.QuestionScores, filtered.QuestionScores)
	assert.Equal(t, 4.5, filtered.OverallAverage)
}

func TestUnknownFilterCategoryIgnored(t *testing.T) {
	svc, _ := newTestService(t, raoRecords)
	data, err := svc.GetFilteredDataForExport(context.Background(), "u", sheetURL, models.FilterState{"Nope": {"x"}})
	require.NoError(t, err)
	assert.Equal(t, 3, data.TotalRows)
}

func TestOverlayOverridesAutomaticGrouping(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, raoRecords)

	before, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)
	require.Len(t, before.FacultyScores, 1)

	_, err = svc.MergeNames(ctx, "u", models.MergeRequest{
		URL: sheetURL, Category: "Name of Faculty", CanonicalName: "Rao", Variants: []string{"Dr. Rao", "RAO"},
	})
	require.NoError(t, err)

	data, err := svc.GetFilteredDataForExport(ctx, "u", sheetURL, models.FilterState{"Name of Faculty": {"Dr. Rao"}})
	require.NoError(t, err)
	var names []string
	for _, row := range data.Data {
		names = append(names, row["Name of Faculty"])
	}
	assert.ElementsMatch(t, []string{"Dr. Rao", "RAO"}, names)

	after, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)
	assert.Len(t, after.FacultyScores, 2, "merge invalidates cached analytics")

	other, err := svc.GetAnalytics(ctx, "someone-else", sheetURL, nil)
	require.NoError(t, err)
	assert.Len(t, other.FacultyScores, 1, "overlays are per owner")

	require.NoError(t, svc.Unmerge(ctx, "u", sheetURL, "Name of Faculty", "Rao"))
	restored, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)
	assert.Len(t, restored.FacultyScores, 1)
}

// pausingStore holds the first Load after pause is armed until resume is
// closed.
type pausingStore struct {
	OverlayStore
	once   sync.Once
	paused chan struct{}
	resume chan struct{}
}

func (p *pausingStore) Load(ctx context.Context, owner, sourceID string) (models.OverlaySet, error) {
	set, err := p.OverlayStore.Load(ctx, owner, sourceID)
	p.once.Do(func() {
		close(p.paused)
		<-p.resume
	})
	return set, err
}

func TestMergeDuringAnalyticsLoad(t *testing.T) {
	ctx := context.Background()
	src := source.NewMemorySource()
	src.SetRecords(sheetURL, raoRecords)
	inner, err := NewFileOverlayStore("")
	require.NoError(t, err)
	store := &pausingStore{OverlayStore: inner, paused: make(chan struct{}), resume: make(chan struct{})}
	svc := NewFeedbackService(src, state.NewCache(state.Options{}, nil), NewOverlayService(store, nil), Options{}, nil)

	done := make(chan *models.Analytics)
	go func() {
		a, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
		assert.NoError(t, err)
		done <- a
	}()

	<-store.paused
	_, err = svc.MergeNames(ctx, "u", models.MergeRequest{
		URL: sheetURL, Category: "Name of Faculty", CanonicalName: "Rao", Variants: []string{"Dr. Rao", "RAO"},
	})
	require.NoError(t, err)
	close(store.resume)
	require.Len(t, (<-done).FacultyScores, 1, "the in-flight load read the overlays before the merge")

	after, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)
	assert.Len(t, after.FacultyScores, 2, "the result computed before the merge is not served")
}

func TestPagination(t *testing.T) {
	records := [][]string{{"Name of Faculty"}}
	for i := 0; i < 7; i++ {
		records = append(records, []string{fmt.Sprintf("Faculty %d", i)})
	}
	svc, _ := newTestService(t, records)
	ctx := context.Background()

	page, err := svc.GetFilteredData(ctx, "u", sheetURL, nil, 2, 3)
	require.NoError(t, err)
	assert.Len(t, page.Data, 3)
	assert.Equal(t, "Faculty 3", page.Data[0]["Name of Faculty"].Raw)
	assert.Equal(t, models.Pagination{Page: 2, PageSize: 3, TotalRows: 7, TotalPages: 3, HasNext: true, HasPrev: true}, page.Pagination)

	last, err := svc.GetFilteredData(ctx, "u", sheetURL, nil, 3, 3)
	require.NoError(t, err)
	assert.Len(t, last.Data, 1)
	assert.False(t, last.Pagination.HasNext)

	past, err := svc.GetFilteredData(ctx, "u", sheetURL, nil, 9, 3)
	require.NoError(t, err)
	assert.Empty(t, past.Data)
	assert.Equal(t, 7, past.Pagination.TotalRows)

	huge, err := svc.GetFilteredData(ctx, "u", sheetURL, nil, math.MaxInt64/500+1, 1000)
	require.NoError(t, err)
	assert.Empty(t, huge.Data)
	assert.False(t, huge.Pagination.HasNext)
	assert.True(t, huge.Pagination.HasPrev)

	huge, err = svc.GetFilteredData(ctx, "u", sheetURL, nil, math.MaxInt64, math.MaxInt64)
	require.NoError(t, err)
	assert.Empty(t, huge.Data)
	assert.Equal(t, MaxPageSize, huge.Pagination.PageSize)

	def, err := svc.GetFilteredData(ctx, "u", sheetURL, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, def.Pagination.Page)
	assert.Equal(t, DefaultPageSize, def.Pagination.PageSize)

	capped := paginate(10, 1, 5000, DefaultPageSize)
	assert.Equal(t, MaxPageSize, capped.PageSize)
}

func TestEmptySource(t *testing.T) {
	svc, _ := newTestService(t, [][]string{{"Name of Faculty", questionCol}})
	a, err := svc.GetAnalytics(context.Background(), "u", sheetURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, a.TotalResponses)
	assert.NotNil(t, a.QuestionScores)
	assert.NotNil(t, a.FacultyScores)
	assert.NotNil(t, a.Trend)
}

func TestSourceUnreachable(t *testing.T) {
	svc, src := newTestService(t, raoRecords)
	src.Fail(sheetURL, eris.Wrap(source.ErrUnreachable, "403 forbidden"))

	_, err := svc.GetSheetMetadata(context.Background(), sheetURL)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSourceUnreachable))

	_, err = svc.GetAnalytics(context.Background(), "u", "", nil)
	assert.True(t, eris.Is(err, ErrSourceUnreachable))
}

func TestDatasetFetchedOnceAcrossRequests(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestService(t, raoRecords)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetSheetMetadata(ctx, sheetURL)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	_, err := svc.GetAnalytics(ctx, "u", sheetURL, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Fetches(sheetURL))
}

func TestNameMappingsAndClear(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestService(t, raoRecords)

	m, err := svc.GetNameMappings(ctx, sheetURL)
	require.NoError(t, err)
	assert.Equal(t, "Name of Faculty", m.FacultyColumn)
	require.Len(t, m.Groups, 1)
	assert.Equal(t, 3, m.Groups[0].TotalFeedbacks)

	svc.ClearNameMappingCache(sheetURL)
	_, err = svc.GetNameMappings(ctx, sheetURL)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Fetches(sheetURL), "clearing names keeps the dataset")
}

func TestCheckForUpdates(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestService(t, raoRecords)

	check, err := svc.CheckForUpdates(ctx, sheetURL)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateCheck{}, *check, "nothing cached yet")

	_, err = svc.GetSheetMetadata(ctx, sheetURL)
	require.NoError(t, err)

	grown := append(append([][]string{}, raoRecords...), []string{"1/18/2024 09:00:00", "Iyer", "OS", "ECE", "4"})
	src.SetRecords(sheetURL, grown)

	check, err = svc.CheckForUpdates(ctx, sheetURL)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateCheck{HasChanged: true, Delta: 1, ShouldInstantRefresh: true}, *check)

	meta, err := svc.GetSheetMetadata(ctx, sheetURL)
	require.NoError(t, err)
	assert.Equal(t, 4, meta.TotalRows)
	assert.Equal(t, 2, src.Fetches(sheetURL))
}

func TestCheckForUpdatesLargeDelta(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestService(t, raoRecords)
	_, err := svc.GetSheetMetadata(ctx, sheetURL)
	require.NoError(t, err)

	big := [][]string{raoRecords[0]}
	for i := 0; i < 20; i++ {
		big = append(big, raoRecords[1])
	}
	src.SetRecords(sheetURL, big)

	check, err := svc.CheckForUpdates(ctx, sheetURL)
	require.NoError(t, err)
	assert.True(t, check.HasChanged)
	assert.Equal(t, 17, check.Delta)
	assert.False(t, check.ShouldInstantRefresh)
}

func TestCheckForUpdatesUnreachable(t *testing.T) {
	ctx := context.Background()
	svc, src := newTestService(t, raoRecords)
	_, err := svc.GetSheetMetadata(ctx, sheetURL)
	require.NoError(t, err)

	src.Fail(sheetURL, eris.Wrap(source.ErrUnreachable, "timeout"))
	_, err = svc.CheckForUpdates(ctx, sheetURL)
	assert.True(t, eris.Is(err, ErrSourceUnreachable))

	src.Fail(sheetURL, errors.New("disk on fire"))
	_, err = svc.CheckForUpdates(ctx, sheetURL)
	assert.Error(t, err)
	assert.False(t, eris.Is(err, ErrSourceUnreachable))
}

func TestServiceDisplayOptionsAndSuggest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, raoRecords)
	_, err := svc.MergeNames(ctx, "u", models.MergeRequest{
		URL: sheetURL, Category: "Name of Faculty", CanonicalName: "Rao", Variants: []string{"Dr. Rao", "RAO"},
	})
	require.NoError(t, err)

	opts, err := svc.DisplayOptions(ctx, "u", models.DisplayOptionsRequest{
		URL: sheetURL, Category: "Name of Faculty", Values: []string{"Dr. Rao", "RAO", "Rao Sir"},
	})
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "Rao", opts[0].Label)
	assert.Equal(t, 2, opts[0].Count)

	set, err := svc.Overlays(ctx, "u", sheetURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dr. Rao", "RAO"}, set["Name of Faculty"]["Rao"])

	got := svc.SuggestSimilar(models.SuggestRequest{Selected: []string{"Dr. Rao"}, All: []string{"Rao Sir", "Iyer"}})
	assert.Equal(t, []string{"Rao Sir"}, got)

	_, err = svc.MergeNames(ctx, "u", models.MergeRequest{URL: sheetURL, Category: "Name of Faculty", CanonicalName: "X", Variants: []string{"a"}})
	assert.True(t, eris.Is(err, ErrInvalidMerge))
}

func TestClassificationAndGroupColumn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, raoRecords)

	cls, err := svc.GetClassification(ctx, sheetURL)
	require.NoError(t, err)
	assert.Equal(t, []string{questionCol}, cls.QuestionColumns)
	assert.Contains(t, cls.FilterColumns, "Department")

	groups, err := svc.GroupColumn(ctx, sheetURL, "Name of Faculty", 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Rao", groups[0].Canonical)
	assert.Equal(t, 3, groups[0].TotalFeedbacks)

	groups, err = svc.GroupColumn(ctx, sheetURL, "Department", 0)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	_, err = svc.GroupColumn(ctx, sheetURL, "Nope", 0)
	assert.Error(t, err)
}
