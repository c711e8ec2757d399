package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/salvage/internal/model"
)

// sqliteTimeFormat is the format timestamps are stored in. It matches
// the SQLite default datetime format so ad-hoc queries against the
// archive stay readable.
const sqliteTimeFormat = "2006-01-02 15:04:05"

// ErrCatalogNotFound is returned by Open when CreateIfNotExists is off
// and no catalog database exists in the directory.
var ErrCatalogNotFound = errors.New("catalog not found")

// Store provides SQLite-based persistence for completed recovery runs.
// It archives each run report together with its artifact records so
// past sessions can be listed and inspected after the fact.
//
// Design decision: We use a single database file for all runs rather
// than one file per run. The run history is the whole point of the
// archive, and a single file keeps cross-run queries (has this content
// hash ever been recovered before?) trivial.
type Store struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures Store behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default store options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the catalog archive in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*Store, error) {
	dbPath := filepath.Join(dbDir, "catalog.db")

	// Check if we should create the database or require it to exist
	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrCatalogNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check catalog path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	// Build connection string
	// modernc.org/sqlite uses URI-style mode flags: mode=rw prevents
	// creating new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// SQLite only supports one writer; a run archives on a single
	// connection and history queries are cheap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path to the SQLite database file.
func (s *Store) Path() string {
	return s.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (s *Store) createTables() error {
	schema := `
	-- Runs store one row per completed recovery session
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		mode TEXT NOT NULL,
		recovery_dir TEXT NOT NULL,
		hash_algorithm TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		files_scanned INTEGER DEFAULT 0,
		bytes_scanned INTEGER DEFAULT 0,
		candidates INTEGER DEFAULT 0,
		recovered INTEGER DEFAULT 0,
		skipped_unreadable INTEGER DEFAULT 0,
		dropped_below_min INTEGER DEFAULT 0,
		duplicates INTEGER DEFAULT 0,
		truncated INTEGER DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Artifacts store individual recovered files per run.
	-- byte_offset avoids OFFSET, which SQLite reserves.
	CREATE TABLE IF NOT EXISTS artifacts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tag TEXT NOT NULL,
		source TEXT NOT NULL,
		byte_offset INTEGER NOT NULL,
		size INTEGER NOT NULL,
		hash TEXT NOT NULL,
		destination TEXT NOT NULL,
		truncated INTEGER NOT NULL DEFAULT 0,
		recovered_at DATETIME NOT NULL,
		UNIQUE(run_id, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
	CREATE INDEX IF NOT EXISTS idx_artifacts_tag ON artifacts(tag);
	CREATE INDEX IF NOT EXISTS idx_artifacts_hash ON artifacts(hash);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// insertArtifactQuery archives one artifact row. The UNIQUE(run_id, hash)
// constraint backstops the in-memory catalog's dedup; conflicting rows
// are silently skipped.
const insertArtifactQuery = `
INSERT INTO artifacts (run_id, tag, source, byte_offset, size, hash, destination, truncated, recovered_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, hash) DO NOTHING
`

// SaveRun archives a completed run report together with its artifacts.
// The whole report is written in one transaction; a failed artifact
// insert leaves nothing behind. It returns the archived run's ID.
func (s *Store) SaveRun(ctx context.Context, report *model.RunReport) (int64, error) {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	runQuery := `
	INSERT INTO runs (
		source, mode, recovery_dir, hash_algorithm, started_at, finished_at,
		files_scanned, bytes_scanned, candidates, recovered,
		skipped_unreadable, dropped_below_min, duplicates, truncated, report_json
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := tx.ExecContext(ctx, runQuery,
		report.Source,
		report.ModeName,
		report.RecoveryDir,
		report.HashAlgorithm,
		report.StartedAt.UTC().Format(sqliteTimeFormat),
		report.FinishedAt.UTC().Format(sqliteTimeFormat),
		report.Stats.FilesScanned,
		report.Stats.BytesScanned,
		report.Stats.Candidates,
		report.Stats.Recovered,
		report.Stats.SkippedUnreadable,
		report.Stats.DroppedBelowMin,
		report.Stats.Duplicates,
		report.Stats.Truncated,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	for _, art := range report.Artifacts {
		if _, err := tx.ExecContext(ctx, insertArtifactQuery, artifactArgs(runID, art)...); err != nil {
			return 0, fmt.Errorf("failed to insert artifact: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// BeginRun inserts the archive row for a run in progress and returns
// its ID. Counters are zero and the serialized report is empty until
// FinishRun; artifacts are archived one at a time through SaveArtifact
// as the run recovers them, so a crashed run still leaves a usable
// partial archive.
func (s *Store) BeginRun(ctx context.Context, report *model.RunReport) (int64, error) {
	query := `
	INSERT INTO runs (source, mode, recovery_dir, hash_algorithm, started_at, finished_at, report_json)
	VALUES (?, ?, ?, ?, ?, ?, '')
	`

	startedAt := report.StartedAt.UTC().Format(sqliteTimeFormat)
	result, err := s.db.ExecContext(ctx, query,
		report.Source,
		report.ModeName,
		report.RecoveryDir,
		report.HashAlgorithm,
		startedAt,
		startedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to begin run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}

	return runID, nil
}

// SaveArtifact archives one artifact under a run in progress.
func (s *Store) SaveArtifact(ctx context.Context, runID int64, art model.Artifact) error {
	if _, err := s.db.ExecContext(ctx, insertArtifactQuery, artifactArgs(runID, art)...); err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// FinishRun completes a run's archive row with its final counters and
// the serialized report.
func (s *Store) FinishRun(ctx context.Context, runID int64, report *model.RunReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to serialize report: %w", err)
	}

	query := `
	UPDATE runs SET
		finished_at = ?,
		files_scanned = ?,
		bytes_scanned = ?,
		candidates = ?,
		recovered = ?,
		skipped_unreadable = ?,
		dropped_below_min = ?,
		duplicates = ?,
		truncated = ?,
		report_json = ?
	WHERE id = ?
	`

	_, err = s.db.ExecContext(ctx, query,
		report.FinishedAt.UTC().Format(sqliteTimeFormat),
		report.Stats.FilesScanned,
		report.Stats.BytesScanned,
		report.Stats.Candidates,
		report.Stats.Recovered,
		report.Stats.SkippedUnreadable,
		report.Stats.DroppedBelowMin,
		report.Stats.Duplicates,
		report.Stats.Truncated,
		string(reportJSON),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

// artifactArgs lays out an artifact's fields in insertArtifactQuery
// parameter order.
func artifactArgs(runID int64, art model.Artifact) []any {
	truncated := 0
	if art.Truncated {
		truncated = 1
	}
	return []any{
		runID,
		art.Tag,
		art.Source,
		art.Offset,
		art.Size,
		art.Hash,
		art.Destination,
		truncated,
		art.RecoveredAt.UTC().Format(sqliteTimeFormat),
	}
}

// RunSummary contains the headline numbers of an archived run.
// This is used for displaying run history without loading full reports.
type RunSummary struct {
	// ID is the unique identifier of the run in the database.
	ID int64 `json:"id"`

	// Source is the scanned root path or image path.
	Source string `json:"source"`

	// Mode is the scanning mode name ("tree" or "buffer").
	Mode string `json:"mode"`

	// RecoveryDir is the directory the run's artifacts were written to.
	RecoveryDir string `json:"recovery_dir"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run completed.
	FinishedAt time.Time `json:"finished_at"`

	// Candidates is the number of signature matches the run produced.
	Candidates int `json:"candidates"`

	// Recovered is the number of artifacts the run cataloged.
	Recovered int `json:"recovered"`

	// Duplicates is the number of suppressed duplicate extractions.
	Duplicates int `json:"duplicates"`

	// Truncated is the number of artifacts cut short by the carver.
	Truncated int `json:"truncated"`
}

// RunHistory retrieves archived run summaries, newest first.
// A limit of zero or below returns the complete history.
func (s *Store) RunHistory(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, source, mode, recovery_dir, started_at, finished_at,
		candidates, recovered, duplicates, truncated
	FROM runs
	ORDER BY started_at DESC, id DESC
	`

	args := make([]any, 0, 1)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var sum RunSummary
		var startedAt, finishedAt string

		err := rows.Scan(
			&sum.ID,
			&sum.Source,
			&sum.Mode,
			&sum.RecoveryDir,
			&startedAt,
			&finishedAt,
			&sum.Candidates,
			&sum.Recovered,
			&sum.Duplicates,
			&sum.Truncated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}

		sum.StartedAt = parseTimestamp(startedAt)
		sum.FinishedAt = parseTimestamp(finishedAt)
		results = append(results, sum)
	}

	return results, rows.Err()
}

// RunsBySource retrieves archived run summaries for one source,
// newest first. A limit of zero or below returns every run over that
// source.
func (s *Store) RunsBySource(ctx context.Context, source string, limit int) ([]RunSummary, error) {
	query := `
	SELECT id, source, mode, recovery_dir, started_at, finished_at,
		candidates, recovered, duplicates, truncated
	FROM runs
	WHERE source = ?
	ORDER BY started_at DESC, id DESC
	`

	args := []any{source}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by source: %w", err)
	}
	defer rows.Close()

	var results []RunSummary
	for rows.Next() {
		var sum RunSummary
		var startedAt, finishedAt string

		err := rows.Scan(
			&sum.ID,
			&sum.Source,
			&sum.Mode,
			&sum.RecoveryDir,
			&startedAt,
			&finishedAt,
			&sum.Candidates,
			&sum.Recovered,
			&sum.Duplicates,
			&sum.Truncated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}

		sum.StartedAt = parseTimestamp(startedAt)
		sum.FinishedAt = parseTimestamp(finishedAt)
		results = append(results, sum)
	}

	return results, rows.Err()
}

// Sources retrieves the distinct sources that have archived runs, most
// recently scanned first.
func (s *Store) Sources(ctx context.Context) ([]string, error) {
	query := `
	SELECT source, MAX(started_at) AS last_run
	FROM runs
	GROUP BY source
	ORDER BY last_run DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var source, lastRun string
		if err := rows.Scan(&source, &lastRun); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		results = append(results, source)
	}

	return results, rows.Err()
}

// RunByID retrieves an archived run report by its database ID.
// It returns nil without error when the ID is unknown.
func (s *Store) RunByID(ctx context.Context, id int64) (*model.RunReport, error) {
	query := `
	SELECT report_json FROM runs
	WHERE id = ?
	`

	var reportJSON string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return decodeReport(reportJSON)
}

// LatestRun retrieves the most recently started archived run report.
// It returns nil without error when the archive is empty.
func (s *Store) LatestRun(ctx context.Context) (*model.RunReport, error) {
	query := `
	SELECT report_json FROM runs
	ORDER BY started_at DESC, id DESC
	LIMIT 1
	`

	var reportJSON string
	err := s.db.QueryRowContext(ctx, query).Scan(&reportJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return decodeReport(reportJSON)
}

// decodeReport unmarshals an archived report and restores the fields
// that do not survive JSON serialization.
func decodeReport(reportJSON string) (*model.RunReport, error) {
	var report model.RunReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	if kind, ok := model.ParseSourceKind(report.ModeName); ok {
		report.Mode = kind
	}
	return &report, nil
}

// ArtifactsByRun retrieves the artifact records of an archived run in
// recovery order.
func (s *Store) ArtifactsByRun(ctx context.Context, runID int64) ([]model.Artifact, error) {
	query := `
	SELECT tag, source, byte_offset, size, hash, destination, truncated, recovered_at
	FROM artifacts
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var results []model.Artifact
	for rows.Next() {
		var art model.Artifact
		var truncated int
		var recoveredAt string

		err := rows.Scan(
			&art.Tag,
			&art.Source,
			&art.Offset,
			&art.Size,
			&art.Hash,
			&art.Destination,
			&truncated,
			&recoveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}

		art.Truncated = truncated != 0
		art.RecoveredAt = parseTimestamp(recoveredAt)
		results = append(results, art)
	}

	return results, rows.Err()
}

// ArtifactsByTag retrieves archived artifacts carved as the given
// format tag across all runs, newest run first.
func (s *Store) ArtifactsByTag(ctx context.Context, tag string, limit int) ([]model.Artifact, error) {
	query := `
	SELECT tag, source, byte_offset, size, hash, destination, truncated, recovered_at
	FROM artifacts
	WHERE tag = ?
	ORDER BY run_id DESC, id
	`

	args := []any{tag}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts by tag: %w", err)
	}
	defer rows.Close()

	var results []model.Artifact
	for rows.Next() {
		var art model.Artifact
		var truncated int
		var recoveredAt string

		err := rows.Scan(
			&art.Tag,
			&art.Source,
			&art.Offset,
			&art.Size,
			&art.Hash,
			&art.Destination,
			&truncated,
			&recoveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}

		art.Truncated = truncated != 0
		art.RecoveredAt = parseTimestamp(recoveredAt)
		results = append(results, art)
	}

	return results, rows.Err()
}

// SeenHash reports whether any archived run has recovered content with
// the given digest. This answers the cross-run question the in-memory
// catalog cannot: was this exact content already recovered in an
// earlier session?
func (s *Store) SeenHash(ctx context.Context, hash string) (bool, error) {
	query := `
	SELECT COUNT(*) FROM artifacts
	WHERE hash = ?
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check hash: %w", err)
	}

	return count > 0, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	sqliteTimeFormat,          // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
