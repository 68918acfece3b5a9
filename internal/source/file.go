package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"feedback-go/internal/models"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// FileSource reads a local CSV export.
type FileSource struct{}

func (FileSource) GetSheetData(ctx context.Context, path string) (*models.Dataset, error) {
	records, err := readCSVFile(localPath(path))
	if err != nil {
		return nil, err
	}
	return BuildDataset(records), nil
}

// GetRowCount streams the file and counts the rows GetSheetData would keep.
func (FileSource) GetRowCount(ctx context.Context, path string) (int, error) {
	path = localPath(path)
	fh, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(ErrUnreachable, "open %s: %v", path, err)
	}
	defer fh.Close()

	reader := newCSVReader(fh)
	reader.ReuseRecord = true
	n := 0
	for header := true; ; header = false {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, eris.Wrapf(ErrUnreachable, "parse %s: %v", path, err)
		}
		if !header && !blankRecord(rec) {
			n++
		}
	}
	return n, nil
}

func readCSVFile(path string) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrUnreachable, "open %s: %v", path, err)
	}
	defer fh.Close()
	records, err := readCSV(fh)
	if err != nil {
		return nil, eris.Wrapf(ErrUnreachable, "parse %s: %v", path, err)
	}
	return records, nil
}

// XLSXSource reads "path.xlsx" or "path.xlsx#Sheet" workbooks. Without a sheet
// name the first sheet is used.
type XLSXSource struct{}

// openWorkbook returns the workbook and the sheet ref points at. The sheet
// is empty when the workbook has none.
func openWorkbook(ref string) (*excelize.File, string, error) {
	path, sheet := splitSheetRef(localPath(ref))
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(ErrUnreachable, "open workbook %s: %v", path, err)
	}
	if sheet == "" {
		if sheets := f.GetSheetList(); len(sheets) > 0 {
			sheet = sheets[0]
		}
	}
	return f, sheet, nil
}

func (XLSXSource) GetSheetData(ctx context.Context, ref string) (*models.Dataset, error) {
	f, sheet, err := openWorkbook(ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if sheet == "" {
		return BuildDataset(nil), nil
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, eris.Wrapf(ErrUnreachable, "read sheet %q: %v", sheet, err)
	}
	return BuildDataset(rows), nil
}

// GetRowCount walks the sheet with the row iterator instead of loading it.
func (XLSXSource) GetRowCount(ctx context.Context, ref string) (int, error) {
	f, sheet, err := openWorkbook(ref)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if sheet == "" {
		return 0, nil
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, eris.Wrapf(ErrUnreachable, "read sheet %q: %v", sheet, err)
	}
	defer rows.Close()

	n := 0
	for header := true; rows.Next(); header = false {
		cols, err := rows.Columns()
		if err != nil {
			return 0, eris.Wrapf(ErrUnreachable, "read sheet %q: %v", sheet, err)
		}
		if !header && !blankRecord(cols) {
			n++
		}
	}
	return n, eris.Wrap(rows.Error(), "iterate rows")
}

func splitSheetRef(ref string) (string, string) {
	if i := strings.LastIndex(ref, "#"); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

func localPath(ref string) string {
	return strings.TrimPrefix(strings.TrimSpace(ref), "file://")
}

// Router dispatches http(s) URLs to Remote, database references to SQL and
// local paths by extension.
type Router struct {
	Remote Source
	SQL    Source
	CSV    Source
	XLSX   Source
}

func NewRouter(remote Source) *Router {
	return &Router{Remote: remote, SQL: SQLTableSource{}, CSV: FileSource{}, XLSX: XLSXSource{}}
}

func (r *Router) pick(ref string) Source {
	lower := strings.ToLower(strings.TrimSpace(ref))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return r.Remote
	}
	if IsSQLRef(lower) {
		return r.SQL
	}
	path, _ := splitSheetRef(localPath(lower))
	switch filepath.Ext(path) {
	case ".xlsx", ".xlsm":
		return r.XLSX
	}
	return r.CSV
}

func (r *Router) GetSheetData(ctx context.Context, ref string) (*models.Dataset, error) {
	src := r.pick(ref)
	if src == nil {
		return nil, eris.Wrapf(ErrUnreachable, "no source configured for %q", ref)
	}
	return src.GetSheetData(ctx, ref)
}

func (r *Router) GetRowCount(ctx context.Context, ref string) (int, error) {
	src := r.pick(ref)
	if src == nil {
		return 0, eris.Wrapf(ErrUnreachable, "no source configured for %q", ref)
	}
	return src.GetRowCount(ctx, ref)
}
