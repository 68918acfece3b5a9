package source

import (
	"context"
	"sync"

	"feedback-go/internal/models"

	"github.com/rotisserie/eris"
)

// MemorySource serves datasets registered in memory. It counts fetches per
// URL, which makes it handy for exercising caches.
type MemorySource struct {
	mu       sync.Mutex
	datasets map[string]*models.Dataset
	errs     map[string]error
	fetches  map[string]int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		datasets: make(map[string]*models.Dataset),
		errs:     make(map[string]error),
		fetches:  make(map[string]int),
	}
}

// Set registers or replaces the dataset behind url.
func (m *MemorySource) Set(url string, ds *models.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[url] = ds
	delete(m.errs, url)
}

// SetRecords is Set over raw records, header row first.
func (m *MemorySource) SetRecords(url string, records [][]string) {
	m.Set(url, BuildDataset(records))
}

// Fail makes every read of url return err until the next Set.
func (m *MemorySource) Fail(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[url] = err
}

// Fetches reports how many times GetSheetData ran for url.
func (m *MemorySource) Fetches(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches[url]
}

func (m *MemorySource) lookup(url string) (*models.Dataset, error) {
	if err := m.errs[url]; err != nil {
		return nil, err
	}
	ds, ok := m.datasets[url]
	if !ok {
		return nil, eris.Wrapf(ErrUnreachable, "no sheet at %q", url)
	}
	return ds, nil
}

func (m *MemorySource) GetSheetData(ctx context.Context, url string) (*models.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches[url]++
	return m.lookup(url)
}

func (m *MemorySource) GetRowCount(ctx context.Context, url string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, err := m.lookup(url)
	if err != nil {
		return 0, err
	}
	return ds.Len(), nil
}
