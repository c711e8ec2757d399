package inspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteInspector summarizes recovered SQLite databases: table names,
// per-table row counts, page size, and schema version. Application
// databases (browser history, chat logs, mobile app state) are among
// the most informative artifacts a recovery run can turn up.
//
// The database is opened read-only. A recovered artifact is evidence
// and must never be modified, so no journal or WAL file may be created
// next to it either.
type SQLiteInspector struct{}

// NewSQLiteInspector creates a new SQLiteInspector.
func NewSQLiteInspector() *SQLiteInspector {
	return &SQLiteInspector{}
}

// Name returns the inspector name.
func (s *SQLiteInspector) Name() string {
	return "sqlite"
}

// Supports reports true for SQLite database tags.
func (s *SQLiteInspector) Supports(tag string) bool {
	switch strings.ToLower(tag) {
	case "sqlite", "db":
		return true
	}
	return false
}

// Inspect opens the database read-only and summarizes its contents.
// Carved databases are often cut before their last page; a table whose
// rows cannot be counted is reported as unreadable rather than failing
// the whole inspection.
func (s *SQLiteInspector) Inspect(ctx context.Context, path string) (*Finding, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	finding := &Finding{
		Inspector: s.Name(),
		Path:      path,
		Details:   make([]Detail, 0),
	}

	var pageSize, schemaVersion int64
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read database header: %w", err)
	}
	if err := db.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&schemaVersion); err != nil {
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	tables, err := s.listTables(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	for _, table := range tables {
		n, err := s.countRows(ctx, db, table)
		if err != nil {
			finding.Details = append(finding.Details, Detail{
				Key:   "table " + table,
				Value: "rows unreadable",
				Note:  "likely cut during recovery",
			})
			continue
		}
		finding.Details = append(finding.Details, Detail{
			Key:   "table " + table,
			Value: fmt.Sprintf("%d rows", n),
		})
	}

	finding.Summary = fmt.Sprintf("%d tables, page size %d, schema version %d",
		len(tables), pageSize, schemaVersion)
	return finding, nil
}

// listTables returns the user table names in name order.
func (s *SQLiteInspector) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// countRows counts the rows of one table. The name came out of the
// recovered file's own sqlite_master, so it is quoted as an identifier
// rather than trusted in a format string.
func (s *SQLiteInspector) countRows(ctx context.Context, db *sql.DB, table string) (int64, error) {
	quoted := `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Ensure SQLiteInspector implements Inspector.
var _ Inspector = (*SQLiteInspector)(nil)
