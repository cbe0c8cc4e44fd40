// Package ledger records the outcome of every source processed by an extract
// run in PostgreSQL, keyed by source so that re-runs overwrite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/postgres"
)

// Statuses recorded per source.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry is one ledger row.
type Entry struct {
	Source     string
	RunID      string
	SourceUID  string
	BookID     string
	Status     string
	Error      string
	Chapters   int
	Paragraphs int
	Artifact   string
	UpdatedAt  time.Time
}

// Recorder is the write side used by the pipeline.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

const schema = `CREATE TABLE IF NOT EXISTS ingestion_ledger (
	source      TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	source_uid  TEXT NOT NULL DEFAULT '',
	book_id     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	chapters    INTEGER NOT NULL DEFAULT 0,
	paragraphs  INTEGER NOT NULL DEFAULT 0,
	artifact    TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ingestion_ledger_book_id ON ingestion_ledger (book_id)`

// Ledger stores entries in PostgreSQL.
type Ledger struct {
	db *postgres.Client
}

func New(db *postgres.Client) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates the ledger table if needed.
func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Record upserts e by source.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	err := l.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ingestion_ledger
			(source, run_id, source_uid, book_id, status, error, chapters, paragraphs, artifact, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (source) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			source_uid = EXCLUDED.source_uid,
			book_id = EXCLUDED.book_id,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			chapters = EXCLUDED.chapters,
			paragraphs = EXCLUDED.paragraphs,
			artifact = EXCLUDED.artifact,
			updated_at = now()`,
			e.Source, e.RunID, e.SourceUID, e.BookID, e.Status, e.Error, e.Chapters, e.Paragraphs, e.Artifact)
		return err
	})
	if err != nil {
		return fmt.Errorf("recording ledger entry for %s: %w", e.Source, err)
	}
	return nil
}

// Lookup returns the entry for source.
func (l *Ledger) Lookup(ctx context.Context, source string) (*Entry, error) {
	var e Entry
	err := l.db.DB.QueryRowContext(ctx,
		`SELECT source, run_id, source_uid, book_id, status, error, chapters, paragraphs, artifact, updated_at
		FROM ingestion_ledger WHERE source=$1`, source).
		Scan(&e.Source, &e.RunID, &e.SourceUID, &e.BookID, &e.Status, &e.Error, &e.Chapters, &e.Paragraphs, &e.Artifact, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "ledger entry for %s", source)
	}
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	return &e, nil
}

// CountByStatus returns how many entries of runID ended in each status.
func (l *Ledger) CountByStatus(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := l.db.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM ingestion_ledger WHERE run_id=$1 GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("counting ledger entries: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning ledger count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}
