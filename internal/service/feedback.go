package service

import (
	"context"
	"strings"
	"time"

	"feedback-go/internal/analysis"
	"feedback-go/internal/models"
	"feedback-go/internal/source"
	"feedback-go/internal/state"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
	// Row-count deltas up to this size are refreshed right away.
	instantRefreshDelta = 10
)

// Options tunes the FeedbackService. Zero values fall back to defaults.
type Options struct {
	CacheTTL         time.Duration
	NameCacheTTL     time.Duration
	GroupThreshold   float64
	SuggestThreshold float64
	Classifier       analysis.ClassifierOptions
	TopGroups        int
	TrendBuckets     int
	DefaultPageSize  int
}

// FeedbackService answers every sheet-level request: metadata, analytics,
// filtered rows, exports, name groups and overlays. Per-source results are
// held in the injected cache.
type FeedbackService struct {
	source     source.Source
	cache      *state.Cache
	overlays   *OverlayService
	classifier *analysis.Classifier
	opts       Options
	logger     *zap.SugaredLogger
}

func NewFeedbackService(src source.Source, cache *state.Cache, overlays *OverlayService, opts Options, logger *zap.SugaredLogger) *FeedbackService {
	if opts.GroupThreshold <= 0 {
		opts.GroupThreshold = DefaultGroupThreshold
	}
	if opts.SuggestThreshold <= 0 {
		opts.SuggestThreshold = DefaultSuggestThreshold
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FeedbackService{
		source:     src,
		cache:      cache,
		overlays:   overlays,
		classifier: analysis.NewClassifier(opts.Classifier),
		opts:       opts,
		logger:     logger,
	}
}

// SourceID is the stable identifier of a sheet URL.
func SourceID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(url))).String()
}

func (s *FeedbackService) dataset(ctx context.Context, url string) (*models.Dataset, error) {
	if strings.TrimSpace(url) == "" {
		return nil, eris.Wrap(ErrSourceUnreachable, "url is required")
	}
	id := SourceID(url)
	v, err := s.cache.Get(ctx, state.Key{Kind: state.KindDataset, SourceID: id}, s.opts.CacheTTL,
		func(ctx context.Context) (any, error) {
			ds, err := s.source.GetSheetData(ctx, url)
			if err != nil {
				if eris.Is(err, source.ErrUnreachable) {
					return nil, eris.Wrap(ErrSourceUnreachable, err.Error())
				}
				return nil, eris.Wrap(err, "load sheet")
			}
			s.logger.Infow("dataset loaded", "source", id, "rows", ds.Len())
			return ds, nil
		})
	if err != nil {
		return nil, err
	}
	return v.(*models.Dataset), nil
}

func (s *FeedbackService) classification(ctx context.Context, id string, ds *models.Dataset) (models.ColumnClassification, error) {
	v, err := s.cache.Get(ctx, state.Key{Kind: state.KindClassification, SourceID: id}, s.opts.CacheTTL,
		func(context.Context) (any, error) {
			return s.classifier.ClassifyColumns(ds), nil
		})
	if err != nil {
		return models.ColumnClassification{}, err
	}
	return v.(models.ColumnClassification), nil
}

func (s *FeedbackService) nameGroups(ctx context.Context, id string, ds *models.Dataset) (models.NameMappings, error) {
	v, err := s.cache.Get(ctx, state.Key{Kind: state.KindNames, SourceID: id}, s.opts.NameCacheTTL,
		func(context.Context) (any, error) {
			roles := analysis.DetectRoles(ds.Headers)
			out := models.NameMappings{FacultyColumn: roles.Faculty, Groups: []models.NameGroup{}}
			if roles.Faculty != "" {
				out.Groups = GroupNames(CountVariants(ds, roles.Faculty), s.opts.GroupThreshold)
			}
			s.logger.Infow("name groups computed", "source", id, "column", roles.Faculty, "groups", len(out.Groups))
			return out, nil
		})
	if err != nil {
		return models.NameMappings{}, err
	}
	return v.(models.NameMappings), nil
}

// mappings builds the per-category expansion used by filters. The faculty
// column gets the automatic grouping; any category with overlay entries uses
// the overlay alone.
func (s *FeedbackService) mappings(ctx context.Context, owner, id string, ds *models.Dataset) (map[string]*models.NameMapping, error) {
	out := map[string]*models.NameMapping{}
	names, err := s.nameGroups(ctx, id, ds)
	if err != nil {
		return nil, err
	}
	if names.FacultyColumn != "" {
		out[names.FacultyColumn] = models.NewNameMapping(names.Groups)
	}
	set, err := s.overlays.Overlays(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	for category, entries := range set {
		if len(entries) > 0 {
			out[category] = MappingFromOverlay(entries)
		}
	}
	return out, nil
}

func (s *FeedbackService) filtered(ctx context.Context, owner, url string, filters models.FilterState) (*models.Dataset, error) {
	ds, err := s.dataset(ctx, url)
	if err != nil {
		return nil, err
	}
	mappings, err := s.mappings(ctx, owner, SourceID(url), ds)
	if err != nil {
		return nil, err
	}
	return analysis.ApplyFilters(ds, filters, mappings), nil
}

// GetSheetMetadata returns the headers, the filter columns with their values
// and the row count.
func (s *FeedbackService) GetSheetMetadata(ctx context.Context, url string) (*models.SheetMetadata, error) {
	ds, err := s.dataset(ctx, url)
	if err != nil {
		return nil, err
	}
	cls, err := s.classification(ctx, SourceID(url), ds)
	if err != nil {
		return nil, err
	}
	return &models.SheetMetadata{
		Headers:   ds.Headers,
		Filters:   cls.FilterColumns,
		TotalRows: ds.Len(),
	}, nil
}

func (s *FeedbackService) GetClassification(ctx context.Context, url string) (models.ColumnClassification, error) {
	ds, err := s.dataset(ctx, url)
	if err != nil {
		return models.ColumnClassification{}, err
	}
	return s.classification(ctx, SourceID(url), ds)
}

// GroupColumn runs the grouping engine over any column. It is not cached;
// a threshold <= 0 uses the configured one.
func (s *FeedbackService) GroupColumn(ctx context.Context, url, column string, threshold float64) ([]models.NameGroup, error) {
	ds, err := s.dataset(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, ok := ds.Column(column); !ok {
		return nil, eris.Errorf("unknown column %q", column)
	}
	if threshold <= 0 {
		threshold = s.opts.GroupThreshold
	}
	return GroupNames(CountVariants(ds, column), threshold), nil
}

// GetAnalytics aggregates the rows matching filters. Results are cached per
// owner and filter state.
func (s *FeedbackService) GetAnalytics(ctx context.Context, owner, url string, filters models.FilterState) (*models.Analytics, error) {
	id := SourceID(url)
	key := state.Key{Kind: state.KindAnalytics, SourceID: id, FilterHash: state.FilterHash(filters, owner)}
	v, err := s.cache.Get(ctx, key, s.opts.CacheTTL, func(ctx context.Context) (any, error) {
		ds, err := s.dataset(ctx, url)
		if err != nil {
			return nil, err
		}
		cls, err := s.classification(ctx, id, ds)
		if err != nil {
			return nil, err
		}
		mappings, err := s.mappings(ctx, owner, id, ds)
		if err != nil {
			return nil, err
		}
		rows := analysis.ApplyFilters(ds, filters, mappings)
		roles := analysis.DetectRoles(ds.Headers)
		a := analysis.ComputeAggregates(rows, cls.QuestionColumns, analysis.AggregateOptions{
			Roles:          roles,
			FacultyMapping: mappings[roles.Faculty],
			TopGroups:      s.opts.TopGroups,
			TrendBuckets:   s.opts.TrendBuckets,
		})
		return &a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Analytics), nil
}

// GetFilteredData returns one page of matching rows. Pages are 1-based.
func (s *FeedbackService) GetFilteredData(ctx context.Context, owner, url string, filters models.FilterState, page, pageSize int) (*models.FilteredData, error) {
	rows, err := s.filtered(ctx, owner, url, filters)
	if err != nil {
		return nil, err
	}
	p := paginate(rows.Len(), page, pageSize, s.opts.DefaultPageSize)
	data := make([]map[string]models.Value, 0)
	// Checked before multiplying: page may be any int.
	if p.Page <= p.TotalPages {
		start := (p.Page - 1) * p.PageSize
		end := start + p.PageSize
		if end > rows.Len() {
			end = rows.Len()
		}
		for _, row := range rows.Rows[start:end] {
			data = append(data, rows.RowObject(row))
		}
	}
	return &models.FilteredData{Headers: rows.Headers, Data: data, Pagination: p}, nil
}

func paginate(total, page, pageSize, defaultSize int) models.Pagination {
	if pageSize <= 0 {
		pageSize = defaultSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if page < 1 {
		page = 1
	}
	pages := (total + pageSize - 1) / pageSize
	return models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalRows:  total,
		TotalPages: pages,
		HasNext:    page < pages,
		HasPrev:    page > 1,
	}
}

// GetFilteredDataForExport returns every matching row with its original
// strings, in source order.
func (s *FeedbackService) GetFilteredDataForExport(ctx context.Context, owner, url string, filters models.FilterState) (*models.ExportData, error) {
	rows, err := s.filtered(ctx, owner, url, filters)
	if err != nil {
		return nil, err
	}
	data := make([]map[string]string, 0, rows.Len())
	for _, row := range rows.Rows {
		data = append(data, rows.RawObject(row))
	}
	return &models.ExportData{Headers: rows.Headers, Data: data, TotalRows: len(data)}, nil
}

// GetNameMappings returns the automatic name groups of the faculty column.
func (s *FeedbackService) GetNameMappings(ctx context.Context, url string) (*models.NameMappings, error) {
	ds, err := s.dataset(ctx, url)
	if err != nil {
		return nil, err
	}
	names, err := s.nameGroups(ctx, SourceID(url), ds)
	if err != nil {
		return nil, err
	}
	return &names, nil
}

// ClearNameMappingCache drops the name groups of a source and everything
// computed from them.
func (s *FeedbackService) ClearNameMappingCache(url string) {
	id := SourceID(url)
	n := s.cache.Invalidate(id, state.KindNames, state.KindAnalytics)
	s.logger.Infow("name mapping cache cleared", "source", id, "entries", n)
}

// CheckForUpdates compares the live row count with the cached snapshot. A
// small change invalidates the source so the next read refetches it.
func (s *FeedbackService) CheckForUpdates(ctx context.Context, url string) (*models.UpdateCheck, error) {
	id := SourceID(url)
	cached, ok := s.cache.Peek(state.Key{Kind: state.KindDataset, SourceID: id})
	if !ok {
		return &models.UpdateCheck{}, nil
	}
	count, err := s.source.GetRowCount(ctx, url)
	if err != nil {
		if eris.Is(err, source.ErrUnreachable) {
			return nil, eris.Wrap(ErrSourceUnreachable, err.Error())
		}
		return nil, eris.Wrap(err, "row count")
	}
	delta := count - cached.(*models.Dataset).Len()
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	check := &models.UpdateCheck{
		HasChanged:           delta != 0,
		Delta:                delta,
		ShouldInstantRefresh: abs > 0 && abs <= instantRefreshDelta,
	}
	if check.ShouldInstantRefresh {
		s.cache.Invalidate(id)
		s.logger.Infow("sheet changed, cache invalidated", "source", id, "delta", delta)
	}
	return check, nil
}

// MergeNames records a user merge and drops analytics computed without it.
func (s *FeedbackService) MergeNames(ctx context.Context, owner string, req models.MergeRequest) (map[string][]string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, eris.Wrap(ErrInvalidMerge, "url is required")
	}
	id := SourceID(req.URL)
	entries, err := s.overlays.Merge(ctx, owner, id, req.Category, req.CanonicalName, req.Variants)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(id, state.KindAnalytics)
	return entries, nil
}

func (s *FeedbackService) Unmerge(ctx context.Context, owner, url, category, canonical string) error {
	id := SourceID(url)
	if err := s.overlays.Unmerge(ctx, owner, id, category, canonical); err != nil {
		return err
	}
	s.cache.Invalidate(id, state.KindAnalytics)
	return nil
}

func (s *FeedbackService) Overlays(ctx context.Context, owner, url string) (models.OverlaySet, error) {
	return s.overlays.Overlays(ctx, owner, SourceID(url))
}

func (s *FeedbackService) SuggestSimilar(req models.SuggestRequest) []string {
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = s.opts.SuggestThreshold
	}
	return SuggestSimilar(req.Selected, req.All, threshold)
}

func (s *FeedbackService) DisplayOptions(ctx context.Context, owner string, req models.DisplayOptionsRequest) ([]models.DisplayOption, error) {
	set, err := s.overlays.Overlays(ctx, owner, SourceID(req.URL))
	if err != nil {
		return nil, err
	}
	return DisplayOptions(req.Values, set[req.Category]), nil
}
