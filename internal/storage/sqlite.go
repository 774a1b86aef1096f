// Package storage provides data persistence functionality for the crawler.
// It implements a SQLite-based event log of crawl runs and their per-URL events.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/masahif/dataexplore/internal/crawler"
	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

// ErrUnknownRun is returned when a run ID has no crawl_runs row
var ErrUnknownRun = errors.New("unknown crawl run")

// Run is a stored crawl_runs row
type Run struct {
	ID           string
	SeedURL      string
	TargetDomain string
	UserAgent    string
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Stats        crawler.CrawlStats
}

// EventRecord is a stored crawl_events row
type EventRecord struct {
	RunID      string
	Sequence   int
	URL        string
	Outcome    string
	StatusCode sql.NullInt64
	ElapsedMS  int64
	LinkCount  int
	Enqueued   int
	Allowed    bool
	Size       int64
	ErrorKind  string
	ErrorMsg   string
	RecordedAt time.Time
}

// SQLiteStorage stores crawl runs and events in SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - single connection prevents lock conflicts
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	storage := &SQLiteStorage{db: db}

	// Initialize schema
	if err := storage.InitSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// InitSchema creates the database schema
func (s *SQLiteStorage) InitSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 30000", // 30 second timeout for locks
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return s.SetMeta("schema_version", schemaVersion)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginRun inserts a new crawl_runs row and returns its ID
func (s *SQLiteStorage) BeginRun(ctx context.Context, seedURL, targetDomain, userAgent string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, seed_url, target_domain, user_agent, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, seedURL, targetDomain, userAgent, startedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	return id, nil
}

// FinishRun records the end time and summary statistics of a run
func (s *SQLiteStorage) FinishRun(ctx context.Context, runID string, stats crawler.CrawlStats, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crawl_runs SET
			finished_at = ?,
			pages_processed = ?,
			pages_blocked = ?,
			pages_failed = ?,
			links_enqueued = ?,
			pending = ?
		WHERE id = ?
	`, finishedAt.UTC(), stats.PagesProcessed, stats.PagesBlocked, stats.PagesFailed, stats.LinksEnqueued, stats.Pending, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

// SaveEvent appends one event to a run
func (s *SQLiteStorage) SaveEvent(ctx context.Context, runID string, evt crawler.CrawlEvent) error {
	var statusCode sql.NullInt64
	if evt.Outcome == crawler.OutcomeStatus {
		statusCode = sql.NullInt64{Int64: int64(evt.StatusCode), Valid: true}
	}

	recordedAt := evt.At
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawl_events (
			run_id, sequence, url, outcome, status_code, elapsed_ms,
			link_count, enqueued_count, allowed, response_size_bytes,
			error_kind, error_message, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		evt.Sequence,
		evt.URL,
		evt.Outcome.String(),
		statusCode,
		evt.Elapsed.Milliseconds(),
		evt.LinkCount,
		evt.Enqueued,
		evt.Allowed,
		evt.Size,
		nullString(string(evt.ErrorKind)),
		nullString(evt.ErrorMsg),
		recordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save event %d: %w", evt.Sequence, err)
	}
	return nil
}

// GetRun loads a crawl_runs row
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run                                           Run
		userAgent                                     sql.NullString
		processed, blocked, failed, enqueued, pending sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seed_url, target_domain, user_agent, started_at, finished_at,
			pages_processed, pages_blocked, pages_failed, links_enqueued, pending
		FROM crawl_runs WHERE id = ?
	`, runID).Scan(
		&run.ID, &run.SeedURL, &run.TargetDomain, &userAgent, &run.StartedAt, &run.FinishedAt,
		&processed, &blocked, &failed, &enqueued, &pending,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.UserAgent = userAgent.String
	run.Stats = crawler.CrawlStats{
		PagesProcessed: int(processed.Int64),
		PagesBlocked:   int(blocked.Int64),
		PagesFailed:    int(failed.Int64),
		LinksEnqueued:  int(enqueued.Int64),
		Pending:        int(pending.Int64),
		StartTime:      run.StartedAt,
	}
	if run.FinishedAt.Valid {
		run.Stats.Duration = run.FinishedAt.Time.Sub(run.StartedAt)
	}
	return &run, nil
}

// GetEvents returns a run's events in sequence order
func (s *SQLiteStorage) GetEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, sequence, url, outcome, status_code, elapsed_ms, link_count,
			enqueued_count, allowed, response_size_bytes, error_kind, error_message, recorded_at
		FROM crawl_events
		WHERE run_id = ?
		ORDER BY sequence ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []EventRecord
	for rows.Next() {
		var (
			rec       EventRecord
			size      sql.NullInt64
			errorKind sql.NullString
			errorMsg  sql.NullString
		)
		if err := rows.Scan(
			&rec.RunID, &rec.Sequence, &rec.URL, &rec.Outcome, &rec.StatusCode, &rec.ElapsedMS,
			&rec.LinkCount, &rec.Enqueued, &rec.Allowed, &size, &errorKind, &errorMsg, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		rec.Size = size.Int64
		rec.ErrorKind = errorKind.String
		rec.ErrorMsg = errorMsg.String
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// GetMeta retrieves a metadata value
func (s *SQLiteStorage) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta: %w", err)
	}
	return value, nil
}

// SetMeta stores a metadata value
func (s *SQLiteStorage) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set meta: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
