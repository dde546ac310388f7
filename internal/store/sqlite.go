// Package store persists run records in sqlite. This backs the
// RecordStore collaborator the runner writes through; history paging
// serves the CLI.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/stepwise-run/stepwise/internal/runner"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a sqlite-backed run archive.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database and applies migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save upserts a record. The runner calls this once per status transition
// plus once at finalization.
func (s *Store) Save(ctx context.Context, rec *runner.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, url, script, status, started_at, duration_ms, error,
			screenshot_path, video_path, reasoning_log,
			prompt_tokens, completion_tokens, total_tokens, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			duration_ms = excluded.duration_ms,
			error = excluded.error,
			screenshot_path = excluded.screenshot_path,
			video_path = excluded.video_path,
			reasoning_log = excluded.reasoning_log,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			total_tokens = excluded.total_tokens`,
		rec.ID, rec.URL, rec.Script, string(rec.Status),
		rec.StartedAt.Unix(), rec.Duration.Milliseconds(), rec.Error,
		rec.ScreenshotPath, rec.VideoPath, rec.ReasoningLog,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads one record by id.
func (s *Store) Get(ctx context.Context, id string) (*runner.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, script, status, started_at, duration_ms, error,
		       screenshot_path, video_path, reasoning_log,
		       prompt_tokens, completion_tokens, total_tokens
		FROM runs WHERE id = ?`, id)
	return scanRecord(row)
}

// List returns records newest-first with limit/offset paging.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*runner.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, script, status, started_at, duration_ms, error,
		       screenshot_path, video_path, reasoning_log,
		       prompt_tokens, completion_tokens, total_tokens
		FROM runs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []*runner.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*runner.RunRecord, error) {
	var rec runner.RunRecord
	var status string
	var startedAt, durationMs int64
	err := row.Scan(
		&rec.ID, &rec.URL, &rec.Script, &status, &startedAt, &durationMs,
		&rec.Error, &rec.ScreenshotPath, &rec.VideoPath, &rec.ReasoningLog,
		&rec.PromptTokens, &rec.CompletionTokens, &rec.TotalTokens,
	)
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.Status = runner.Status(status)
	if startedAt > 0 {
		rec.StartedAt = time.Unix(startedAt, 0)
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}
