package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"feedback-go/internal/models"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

// OverlayStore persists merge overlays per owner and data source:
// owner -> sourceID -> category -> canonical -> variants.
type OverlayStore interface {
	Load(ctx context.Context, owner, sourceID string) (models.OverlaySet, error)
	// SaveCategory replaces every entry of one category. An empty map removes
	// the category.
	SaveCategory(ctx context.Context, owner, sourceID, category string, entries map[string][]string) error
	Close() error
}

// OpenOverlayStore builds the store named by kind: "file", "sqlite" or
// "postgres".
func OpenOverlayStore(kind, path, dsn string) (OverlayStore, error) {
	switch strings.ToLower(kind) {
	case "", "file":
		return NewFileOverlayStore(path)
	case "sqlite":
		if dsn == "" {
			dsn = path
		}
		return NewSQLOverlayStore("sqlite", dsn)
	case "postgres", "postgresql":
		return NewSQLOverlayStore("postgres", dsn)
	}
	return nil, eris.Errorf("overlay: unknown store %q", kind)
}

type overlayFile map[string]map[string]models.OverlaySet

// FileOverlayStore keeps overlays in one YAML document. With an empty path
// it only lives in memory.
type FileOverlayStore struct {
	mu   sync.RWMutex
	path string
	data overlayFile
}

func NewFileOverlayStore(path string) (*FileOverlayStore, error) {
	s := &FileOverlayStore{path: path, data: overlayFile{}}
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: read %s", path)
	}
	if err := yaml.Unmarshal(b, &s.data); err != nil {
		return nil, eris.Wrapf(err, "overlay: parse %s", path)
	}
	if s.data == nil {
		s.data = overlayFile{}
	}
	return s, nil
}

func (s *FileOverlayStore) Load(ctx context.Context, owner, sourceID string) (models.OverlaySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneOverlaySet(s.data[owner][sourceID]), nil
}

func (s *FileOverlayStore) SaveCategory(ctx context.Context, owner, sourceID, category string, entries map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources := s.data[owner]
	if sources == nil {
		sources = map[string]models.OverlaySet{}
		s.data[owner] = sources
	}
	set := sources[sourceID]
	if set == nil {
		set = models.OverlaySet{}
		sources[sourceID] = set
	}
	if len(entries) == 0 {
		delete(set, category)
	} else {
		set[category] = cloneEntries(entries)
	}
	return s.flush()
}

// flush writes to a temp file and renames it over the target.
func (s *FileOverlayStore) flush() error {
	if s.path == "" {
		return nil
	}
	b, err := yaml.Marshal(s.data)
	if err != nil {
		return eris.Wrap(err, "overlay: marshal yaml")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return eris.Wrap(err, "overlay: mkdir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return eris.Wrap(err, "overlay: write")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return eris.Wrap(err, "overlay: save")
	}
	return nil
}

func (s *FileOverlayStore) Close() error { return nil }

// SQLOverlayStore keeps one row per overlay entry in the name_overlays table.
// It runs on Postgres (lib/pq) or SQLite (modernc).
type SQLOverlayStore struct {
	db     *sql.DB
	driver string
}

const createOverlayTable = `
CREATE TABLE IF NOT EXISTS name_overlays (
	owner      TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	category   TEXT NOT NULL,
	canonical  TEXT NOT NULL,
	variants   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (owner, source_id, category, canonical)
)`

func NewSQLOverlayStore(driver, dsn string) (*SQLOverlayStore, error) {
	if dsn == "" {
		return nil, eris.Errorf("overlay: %s store needs a database url", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, eris.Wrapf(err, "overlay: open %s", driver)
	}
	if driver == "sqlite" {
		// One connection keeps ":memory:" databases alive and writes serialized.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrapf(err, "overlay: connect %s", driver)
	}
	if _, err := db.Exec(createOverlayTable); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "overlay: create table")
	}
	return &SQLOverlayStore{db: db, driver: driver}, nil
}

func (s *SQLOverlayStore) Load(ctx context.Context, owner, sourceID string) (models.OverlaySet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, canonical, variants FROM name_overlays WHERE owner = $1 AND source_id = $2`,
		owner, sourceID)
	if err != nil {
		return nil, eris.Wrap(err, "overlay: load")
	}
	defer rows.Close()

	set := models.OverlaySet{}
	for rows.Next() {
		var category, canonical, encoded string
		if err := rows.Scan(&category, &canonical, &encoded); err != nil {
			return nil, eris.Wrap(err, "overlay: scan")
		}
		var variants []string
		if err := json.Unmarshal([]byte(encoded), &variants); err != nil {
			return nil, eris.Wrapf(err, "overlay: decode variants of %q", canonical)
		}
		if set[category] == nil {
			set[category] = map[string][]string{}
		}
		set[category][canonical] = variants
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "overlay: load")
	}
	return set, nil
}

func (s *SQLOverlayStore) SaveCategory(ctx context.Context, owner, sourceID, category string, entries map[string][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "overlay: begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM name_overlays WHERE owner = $1 AND source_id = $2 AND category = $3`,
		owner, sourceID, category); err != nil {
		return eris.Wrap(err, "overlay: clear category")
	}

	canonicals := make([]string, 0, len(entries))
	for c := range entries {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	now := time.Now().UTC()
	for _, canonical := range canonicals {
		encoded, err := json.Marshal(entries[canonical])
		if err != nil {
			return eris.Wrap(err, "overlay: encode variants")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO name_overlays (owner, source_id, category, canonical, variants, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			owner, sourceID, category, canonical, string(encoded), now); err != nil {
			return eris.Wrapf(err, "overlay: insert %q", canonical)
		}
	}
	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "overlay: commit")
	}
	return nil
}

func (s *SQLOverlayStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func cloneOverlaySet(set models.OverlaySet) models.OverlaySet {
	out := make(models.OverlaySet, len(set))
	for category, entries := range set {
		out[category] = cloneEntries(entries)
	}
	return out
}

func cloneEntries(entries map[string][]string) map[string][]string {
	out := make(map[string][]string, len(entries))
	for canonical, variants := range entries {
		out[canonical] = append([]string(nil), variants...)
	}
	return out
}
