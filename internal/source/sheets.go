package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"feedback-go/internal/models"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var (
	sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)
	gidPattern     = regexp.MustCompile(`[#&?]gid=([0-9]+)`)
)

const (
	defaultExportHost = "https://docs.google.com"
	maxAttempts       = 3
	retryBaseDelay    = 300 * time.Millisecond
)

// CSVExportSource reads Google Sheets through their CSV export endpoint. Any
// other http(s) URL is fetched as CSV unchanged.
type CSVExportSource struct {
	client     *http.Client
	exportHost string
	logger     *zap.SugaredLogger
}

func NewCSVExportSource(timeout time.Duration, logger *zap.SugaredLogger) *CSVExportSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CSVExportSource{
		client:     &http.Client{Timeout: timeout},
		exportHost: defaultExportHost,
		logger:     logger,
	}
}

// ExportURL maps a sheet edit/share URL to its CSV export URL.
func (s *CSVExportSource) ExportURL(raw string) (string, error) {
	return exportURL(s.exportHost, raw)
}

func exportURL(host, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if m := sheetIDPattern.FindStringSubmatch(raw); m != nil {
		out := fmt.Sprintf("%s/spreadsheets/d/%s/export?format=csv", host, m[1])
		if g := gidPattern.FindStringSubmatch(raw); g != nil {
			out += "&gid=" + g[1]
		}
		return out, nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", eris.Wrapf(ErrUnreachable, "unsupported sheet url %q", raw)
	}
	return raw, nil
}

func (s *CSVExportSource) GetSheetData(ctx context.Context, sheetURL string) (*models.Dataset, error) {
	target, err := s.ExportURL(sheetURL)
	if err != nil {
		return nil, err
	}
	var records [][]string
	err = s.fetch(ctx, target, func(r io.Reader) (err error) {
		records, err = readCSV(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	ds := BuildDataset(records)
	s.logger.Infow("sheet fetched", "rows", ds.Len(), "columns", len(ds.Headers))
	return ds, nil
}

// GetRowCount asks the export endpoint for the first column only. Rows are
// counted through the last filled first cell.
func (s *CSVExportSource) GetRowCount(ctx context.Context, sheetURL string) (int, error) {
	target, err := s.ExportURL(sheetURL)
	if err != nil {
		return 0, err
	}
	if !sheetIDPattern.MatchString(sheetURL) {
		ds, err := s.GetSheetData(ctx, sheetURL)
		if err != nil {
			return 0, err
		}
		return ds.Len(), nil
	}
	var n int
	err = s.fetch(ctx, target+"&range=A:A", func(r io.Reader) (err error) {
		n, err = firstColumnRows(r)
		return err
	})
	return n, err
}

// firstColumnRows counts data rows of a one-column export up to the last
// non-blank cell. encoding/csv skips empty lines, so rows whose cell is empty
// are recovered from line numbers.
func firstColumnRows(r io.Reader) (int, error) {
	reader := newCSVReader(r)
	rows, embedded := 0, 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return 0, err
		}
		if !blankRecord(rec) {
			line, _ := reader.FieldPos(0)
			rows = line - 1 - embedded
		}
		for _, cell := range rec {
			embedded += strings.Count(cell, "\n")
		}
	}
}

// fetch retries network errors and 5xx answers with a doubling delay. 4xx
// answers (private or deleted sheets) fail immediately.
func (s *CSVExportSource) fetch(ctx context.Context, target string, parse func(io.Reader) error) error {
	delay := retryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retry, err := s.fetchOnce(ctx, target, parse)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt == maxAttempts {
			break
		}
		s.logger.Warnw("sheet fetch failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return eris.Wrap(ErrUnreachable, ctx.Err().Error())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (s *CSVExportSource) fetchOnce(ctx context.Context, target string, parse func(io.Reader) error) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, eris.Wrapf(ErrUnreachable, "build request: %v", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return true, eris.Wrapf(ErrUnreachable, "fetch csv: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode >= 500,
			eris.Wrapf(ErrUnreachable, "fetch csv: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	if err := parse(resp.Body); err != nil {
		return false, eris.Wrapf(ErrUnreachable, "parse csv: %v", err)
	}
	return false, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader
}

func readCSV(r io.Reader) ([][]string, error) {
	return newCSVReader(r).ReadAll()
}
