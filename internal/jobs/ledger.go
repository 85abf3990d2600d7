package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/lexiqai/voice-translator/internal/errorsx"
)

// timeLayout is fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02 15:04:05.000000000"

// Ledger persists job snapshots to SQLite so finished jobs survive the
// in-memory retention window and process restarts. It implements Sink.
type Ledger struct {
	db    *sql.DB
	clock func() time.Time
}

var _ Sink = (*Ledger)(nil)

// OpenLedger opens (creating if needed) the ledger database at path
func OpenLedger(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is empty")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps :memory: databases and WAL writers consistent
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	l := &Ledger{db: db, clock: time.Now}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("Job ledger opened")
	return l, nil
}

func (l *Ledger) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS clone_jobs (
    id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    warmup INTEGER NOT NULL DEFAULT 0,
    language TEXT,
    segments INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    object_key TEXT,
    error TEXT,
    reason TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_clone_jobs_updated ON clone_jobs(updated_at);
`
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// Record upserts a job snapshot. Signed URLs are never persisted.
func (l *Ledger) Record(ctx context.Context, job Job) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO clone_jobs(id, state, warmup, language, segments, bytes, object_key, error, reason, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state=excluded.state,
		   segments=excluded.segments,
		   bytes=excluded.bytes,
		   object_key=excluded.object_key,
		   error=excluded.error,
		   reason=excluded.reason,
		   updated_at=excluded.updated_at`,
		job.ID, string(job.State), job.Warmup, job.Language, job.Segments, job.Bytes,
		job.Key, job.Error, string(job.Reason),
		job.CreatedAt.UTC().Format(timeLayout), job.UpdatedAt.UTC().Format(timeLayout))
	return err
}

// Get loads one job. The boolean is false when the id is unknown.
func (l *Ledger) Get(ctx context.Context, id string) (Job, bool, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT id, state, warmup, language, segments, bytes, object_key, error, reason, created_at, updated_at
		 FROM clone_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Recent returns up to limit jobs ordered by last update, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, state, warmup, language, segments, bytes, object_key, error, reason, created_at, updated_at
		 FROM clone_jobs ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// Prune deletes jobs last updated before now-olderThan
func (l *Ledger) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := l.clock().UTC().Add(-olderThan).Format(timeLayout)
	res, err := l.db.ExecContext(ctx, `DELETE FROM clone_jobs WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Ping checks the database connection
func (l *Ledger) Ping(ctx context.Context) (bool, error) {
	if err := l.db.PingContext(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the database
func (l *Ledger) Close() error {
	return l.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (Job, error) {
	var (
		job                    Job
		state, reason          string
		language, key, errText sql.NullString
		created, updated       string
	)
	if err := s.Scan(&job.ID, &state, &job.Warmup, &language, &job.Segments, &job.Bytes,
		&key, &errText, &reason, &created, &updated); err != nil {
		return Job{}, err
	}
	job.State = State(state)
	job.Reason = errorsx.ReasonCode(reason)
	job.Language = language.String
	job.Key = key.String
	job.Error = errText.String
	if ts, err := time.Parse(timeLayout, created); err == nil {
		job.CreatedAt = ts
	}
	if ts, err := time.Parse(timeLayout, updated); err == nil {
		job.UpdatedAt = ts
	}
	return job, nil
}
