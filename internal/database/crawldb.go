package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitecrawl/internal/crawler"
)

// FileName is the name of the database file inside the database directory.
const FileName = "sitecrawl.db"

// timestampLayout is fixed-width so stored timestamps sort as text.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// CrawlDB provides SQLite-based storage for crawl results.
//
// Design decision: We use a single database file for every root rather
// than separate files per site. History and comparison are then plain
// queries over one table.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per crawl
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		pages INTEGER NOT NULL,
		unique_pages INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		pending INTEGER NOT NULL,
		limit_reached INTEGER NOT NULL DEFAULT 0,
		result_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root ON runs(root);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Every URL a run recorded, with the hash of the content it served
	CREATE TABLE IF NOT EXISTS pages (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		hash TEXT NOT NULL,
		title TEXT,
		PRIMARY KEY (run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_hash ON pages(hash);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata contains summary information about a stored run.
// This is used for displaying history without loading the full result.
type RunMetadata struct {
	// ID is the run's UUID.
	ID string

	// Root is the crawled domain root.
	Root string

	// State is how the crawl ended.
	State crawler.State

	// StartedAt is when the crawl started.
	StartedAt time.Time

	// FinishedAt is when the crawl returned.
	FinishedAt time.Time

	// Pages is the number of URLs recorded, aliases included.
	Pages int

	// UniquePages is the number of distinct page contents.
	UniquePages int

	// Failed is the number of URLs that failed.
	Failed int

	// Pending is the number of URLs left unvisited.
	Pending int

	// LimitReached is true when the crawl stopped at the page limit.
	LimitReached bool

	// Size is the size in bytes of the stored result.
	Size int64
}

// Duration returns how long the run took.
func (m *RunMetadata) Duration() time.Duration {
	return m.FinishedAt.Sub(m.StartedAt)
}

// SaveRun stores result under a new run ID and returns the ID.
// The run and its pages are written in one transaction.
func (cdb *CrawlDB) SaveRun(ctx context.Context, result *crawler.Result) (string, error) {
	if result == nil {
		return "", ErrNoResult
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}

	var pages, unique int
	if result.SiteMap != nil {
		pages = result.SiteMap.Len()
		unique = result.SiteMap.HashCount()
	}

	id := uuid.NewString()

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, root, state, started_at, finished_at, pages, unique_pages, failed, pending, limit_reached, result_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		result.Root,
		result.State.String(),
		formatTimestamp(result.StartedAt),
		formatTimestamp(result.FinishedAt),
		pages,
		unique,
		len(result.Failed),
		len(result.Pending),
		result.LimitReached,
		string(resultJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if result.SiteMap != nil {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages (run_id, url, hash, title) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return "", fmt.Errorf("failed to prepare page insert: %w", err)
		}
		defer stmt.Close()

		for _, page := range result.SiteMap.Pages() {
			for _, url := range page.URLs {
				if _, err := stmt.ExecContext(ctx, id, url, page.Hash, page.Title); err != nil {
					return "", fmt.Errorf("failed to insert page %s: %w", url, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}

	return id, nil
}

// GetRun retrieves the full result of a run.
// It returns ErrRunNotFound when no run has the given ID.
func (cdb *CrawlDB) GetRun(ctx context.Context, id string) (*crawler.Result, error) {
	var resultJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT result_json FROM runs WHERE id = ?`, id).Scan(&resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var result crawler.Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, fmt.Errorf("failed to parse result: %w", err)
	}

	return &result, nil
}

// ListRuns returns run metadata, newest first. An empty root lists every
// root; a limit of zero or less returns all matching runs.
func (cdb *CrawlDB) ListRuns(ctx context.Context, root string, limit int) ([]RunMetadata, error) {
	query := `
	SELECT id, root, state, started_at, finished_at, pages, unique_pages, failed, pending, limit_reached, length(result_json)
	FROM runs
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if root != "" {
		query += " AND root = ?"
		args = append(args, root)
	}

	query += " ORDER BY started_at DESC, rowid DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []RunMetadata
	for rows.Next() {
		var meta RunMetadata
		var state, startedAt, finishedAt string

		err := rows.Scan(
			&meta.ID,
			&meta.Root,
			&state,
			&startedAt,
			&finishedAt,
			&meta.Pages,
			&meta.UniquePages,
			&meta.Failed,
			&meta.Pending,
			&meta.LimitReached,
			&meta.Size,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if err := meta.State.UnmarshalText([]byte(state)); err != nil {
			return nil, fmt.Errorf("run %s: %w", meta.ID, err)
		}
		meta.StartedAt = parseTimestamp(startedAt)
		meta.FinishedAt = parseTimestamp(finishedAt)
		results = append(results, meta)
	}

	return results, rows.Err()
}

// ListRoots returns every root that has at least one stored run.
func (cdb *CrawlDB) ListRoots(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT root FROM runs ORDER BY root`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roots: %w", err)
	}
	defer rows.Close()

	var roots []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, fmt.Errorf("failed to scan root: %w", err)
		}
		roots = append(roots, root)
	}

	return roots, rows.Err()
}

// RunPages returns the URL to content hash mapping recorded by a run.
func (cdb *CrawlDB) RunPages(ctx context.Context, id string) (map[string]string, error) {
	if err := cdb.requireRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := cdb.db.QueryContext(ctx, `SELECT url, hash FROM pages WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[string]string)
	for rows.Next() {
		var url, hash string
		if err := rows.Scan(&url, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages[url] = hash
	}

	return pages, rows.Err()
}

// DeleteRun removes a run and its pages.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id string) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return tx.Commit()
}

// requireRun returns ErrRunNotFound when no run has the given ID.
func (cdb *CrawlDB) requireRun(ctx context.Context, id string) error {
	var count int
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, id).Scan(&count); err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// formatTimestamp renders t in UTC with the fixed-width layout.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timestampLayout,
	"2006-01-02 15:04:05",  // SQLite default datetime format
	"2006-01-02T15:04:05Z", // ISO 8601 with Z suffix
	time.RFC3339Nano,
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
