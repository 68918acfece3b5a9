package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"feedback-go/internal/models"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLTableSource reads a survey stored as a database table. References look
// like "postgres://user:pw@host/db?sslmode=disable#responses" or
// "sqlite:/path/to/file.db#responses".
type SQLTableSource struct{}

// IsSQLRef reports whether ref names a database table.
func IsSQLRef(ref string) bool {
	lower := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.HasPrefix(lower, "sqlite:")
}

type tableRef struct {
	driver string
	dsn    string
	table  string
}

func parseTableRef(ref string) (tableRef, error) {
	dsn, table := splitSheetRef(strings.TrimSpace(ref))
	table = strings.TrimSpace(table)
	if table == "" {
		return tableRef{}, eris.Wrapf(ErrUnreachable, "no table in %q, want <dsn>#<table>", ref)
	}
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		return tableRef{driver: "sqlite", dsn: dsn[len("sqlite://"):], table: table}, nil
	case strings.HasPrefix(lower, "sqlite:"):
		return tableRef{driver: "sqlite", dsn: dsn[len("sqlite:"):], table: table}, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return tableRef{driver: "postgres", dsn: dsn, table: table}, nil
	}
	return tableRef{}, eris.Wrapf(ErrUnreachable, "unsupported database reference %q", ref)
}

func (s SQLTableSource) open(ctx context.Context, ref string) (*sql.DB, tableRef, error) {
	tr, err := parseTableRef(ref)
	if err != nil {
		return nil, tr, err
	}
	db, err := sql.Open(tr.driver, tr.dsn)
	if err != nil {
		return nil, tr, eris.Wrapf(ErrUnreachable, "open %s: %v", tr.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, tr, eris.Wrapf(ErrUnreachable, "ping %s: %v", tr.driver, err)
	}
	tables, err := listTables(ctx, db, tr.driver)
	if err != nil {
		db.Close()
		return nil, tr, err
	}
	if _, ok := tables[tr.table]; !ok {
		db.Close()
		return nil, tr, eris.Wrapf(ErrUnreachable, "table %q not found", tr.table)
	}
	return db, tr, nil
}

// listTables is the whitelist table names are checked against before they are
// spliced into a query.
func listTables(ctx context.Context, db *sql.DB, driver string) (map[string]struct{}, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name;
	`
	if driver == "sqlite" {
		query = `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "list tables")
	}
	defer rows.Close()

	tables := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "scan table name")
		}
		tables[name] = struct{}{}
	}
	return tables, eris.Wrap(rows.Err(), "list tables")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s SQLTableSource) GetSheetData(ctx context.Context, ref string) (*models.Dataset, error) {
	db, tr, err := s.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(tr.table))
	if err != nil {
		return nil, eris.Wrapf(err, "select from %s", tr.table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrap(err, "columns")
	}
	records := [][]string{columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, eris.Wrap(err, "scan row")
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = cellText(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "read rows")
	}
	return BuildDataset(records), nil
}

// GetRowCount counts in the database the rows GetSheetData would keep: rows
// with at least one non-blank cell.
func (s SQLTableSource) GetRowCount(ctx context.Context, ref string) (int, error) {
	db, tr, err := s.open(ctx, ref)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	columns, err := tableColumns(ctx, db, tr.table)
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, nil
	}
	filled := make([]string, len(columns))
	for i, c := range columns {
		filled[i] = fmt.Sprintf("NULLIF(TRIM(CAST(%s AS TEXT)), '') IS NOT NULL", quoteIdent(c))
	}
	query := "SELECT COUNT(*) FROM " + quoteIdent(tr.table) + " WHERE " + strings.Join(filled, " OR ")

	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "count rows of %s", tr.table)
	}
	return n, nil
}

func tableColumns(ctx context.Context, db *sql.DB, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" LIMIT 0")
	if err != nil {
		return nil, eris.Wrapf(err, "columns of %s", table)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	return columns, eris.Wrap(err, "columns")
}

func cellText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(t)
	}
}
