package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/imgprobe/outcome"
)

const schema = `
CREATE TABLE IF NOT EXISTS image_outcomes (
	id          TEXT PRIMARY KEY,
	target_id   TEXT NOT NULL,
	page_url    TEXT NOT NULL,
	selector    TEXT NOT NULL,
	filter      TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_image_outcomes_target ON image_outcomes(target_id, started_at);
`

// SQLite appends outcomes to the image_outcomes table.
type SQLite struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (or creates) the database at path with WAL and a
// busy timeout, and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLite wraps an existing handle. Close leaves db open.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Send(ctx context.Context, o outcome.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_outcomes
			(id, target_id, page_url, selector, filter, kind, status, source, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TargetID, o.PageURL, o.Selector, o.Filter, string(o.Kind),
		string(o.Status), o.Source, o.Error, o.StartedAt, o.DurationMs)
	if err != nil {
		return fmt.Errorf("sqlite: insert %s: %w", o.ID, err)
	}
	return nil
}

// Recent returns the latest outcomes for targetID, newest first.
func (s *SQLite) Recent(ctx context.Context, targetID string, limit int) ([]outcome.Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_id, page_url, selector, filter, kind, status, source, error, started_at, duration_ms
		FROM image_outcomes
		WHERE target_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: recent: %w", err)
	}
	defer rows.Close()

	var out []outcome.Outcome
	for rows.Next() {
		var o outcome.Outcome
		var kind, status string
		if err := rows.Scan(&o.ID, &o.TargetID, &o.PageURL, &o.Selector, &o.Filter,
			&kind, &status, &o.Source, &o.Error, &o.StartedAt, &o.DurationMs); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		o.Kind = outcome.Kind(kind)
		o.Status = outcome.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
