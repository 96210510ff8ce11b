// SPDX-License-Identifier: MIT

// Package history provides SQLite persistence for resolution outcomes,
// backing the analytics endpoints.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Entry is one recorded resolution attempt.
type Entry struct {
	ID           int64     `json:"id"`
	URL          string    `json:"url"`
	Format       string    `json:"format"`
	Tier         string    `json:"tier,omitempty"`
	Adaptive     bool      `json:"adaptive"`
	VariantCount int       `json:"variantCount"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store provides SQLite persistence for resolution history.
type Store struct {
	db *sql.DB
}

// Open initializes the store and creates the schema.
// WAL mode + busy_timeout keep concurrent append/read cheap.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		format TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT '',
		adaptive INTEGER NOT NULL DEFAULT 0,
		variant_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resolutions_created ON resolutions(created_at);
	CREATE INDEX IF NOT EXISTS idx_resolutions_format ON resolutions(format);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records one resolution attempt.
func (s *Store) Append(ctx context.Context, e Entry) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
	INSERT INTO resolutions (url, format, tier, adaptive, variant_count, error_message, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.URL, e.Format, e.Tier, boolToInt(e.Adaptive),
		e.VariantCount, e.ErrorMessage, e.DurationMS,
		createdAt.Format(time.RFC3339Nano))
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, url, format, tier, adaptive, variant_count, error_message, duration_ms, created_at
	FROM resolutions
	ORDER BY id DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var adaptive int
		var createdAt string
		if err := rows.Scan(&e.ID, &e.URL, &e.Format, &e.Tier, &adaptive,
			&e.VariantCount, &e.ErrorMessage, &e.DurationMS, &createdAt); err != nil {
			return nil, err
		}
		e.Adaptive = adaptive != 0
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than the cutoff. Returns the number removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM resolutions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
