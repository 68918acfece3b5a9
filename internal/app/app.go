package app

import (
	"feedback-go/internal/analysis"
	"feedback-go/internal/config"
	"feedback-go/internal/service"
	"feedback-go/internal/source"
	"feedback-go/internal/state"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// App holds the long-lived services shared by the server and the CLI.
type App struct {
	Feedback *service.FeedbackService
	Cache    *state.Cache
	Store    service.OverlayStore
	logger   *zap.SugaredLogger
}

// New wires sources, cache and overlay persistence from cfg. src may be nil,
// in which case the default router (Sheets export, local CSV and XLSX) is used.
func New(cfg *config.Config, src source.Source, logger *zap.SugaredLogger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if src == nil {
		src = source.NewRouter(source.NewCSVExportSource(cfg.HTTPTimeout(), logger))
	}

	store, err := service.OpenOverlayStore(cfg.OverlayStore, cfg.OverlayPath, cfg.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open overlay store")
	}

	cache := state.NewCache(state.Options{
		TTL:           cfg.CacheTTL(),
		RefreshBefore: cfg.RefreshBefore(),
		MaxStale:      cfg.MaxStale(),
	}, logger)

	feedback := service.NewFeedbackService(src, cache, service.NewOverlayService(store, logger), service.Options{
		CacheTTL:         cfg.CacheTTL(),
		NameCacheTTL:     cfg.NameCacheTTL(),
		GroupThreshold:   cfg.GroupThreshold,
		SuggestThreshold: cfg.SuggestThreshold,
		Classifier: analysis.ClassifierOptions{
			SampleRows:      cfg.SampleRows,
			MaxFilterValues: cfg.MaxFilterValues,
		},
		TopGroups:       cfg.TopGroups,
		TrendBuckets:    cfg.TrendBuckets,
		DefaultPageSize: cfg.DefaultPageSize,
	}, logger)

	logger.Infow("services ready",
		"overlay_store", cfg.OverlayStore,
		"cache_ttl", cfg.CacheTTL(),
		"group_threshold", cfg.GroupThreshold,
	)
	return &App{Feedback: feedback, Cache: cache, Store: store, logger: logger}, nil
}

// Close waits for background refreshes and releases the overlay store.
func (a *App) Close() error {
	a.Cache.Wait()
	if err := a.Store.Close(); err != nil {
		return eris.Wrap(err, "close overlay store")
	}
	return nil
}
