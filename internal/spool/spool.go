// Package spool persists extracted chunks in SQLite between the chunking and
// indexing stages, so ingestion survives embedder or store outages and can be
// re-driven without re-extracting documents.
package spool

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kensaku-io/kensaku/internal/models"
)

// Chunk states as stored in the database.
const (
	StatePending = "pending"
	StateIndexed = "indexed"
	StateFailed  = "failed"
)

// Counts summarizes spool contents per state.
type Counts struct {
	Pending int64
	Indexed int64
	Failed  int64
}

// Spool is a SQLite-backed chunk buffer.
type Spool struct {
	db *sql.DB
}

// Open opens or creates the spool database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func Open(dbPath string) (*Spool, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create spool directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Spool{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT,
		state TEXT NOT NULL DEFAULT 'pending',
		failure TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_state ON chunks(state);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// Put stores the chunks of a source in a single transaction, replacing any
// previous chunks with the same IDs. Re-spooled chunks go back to pending, so
// re-ingesting a source re-indexes it.
func (s *Spool) Put(ctx context.Context, source string, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, source, chunk_index, text, metadata, state, failure, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source = excluded.source,
		   chunk_index = excluded.chunk_index,
		   text = excluded.text,
		   metadata = excluded.metadata,
		   state = excluded.state,
		   failure = NULL,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, chunk.ID, source, i, chunk.Text, string(metadataJSON), StatePending, now, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Pending returns up to limit pending chunks in insertion order. limit <= 0
// means no limit.
func (s *Spool) Pending(ctx context.Context, limit int) ([]*models.Chunk, error) {
	query := `SELECT id, text, metadata FROM chunks WHERE state = ? ORDER BY created_at, source, chunk_index`
	args := []any{StatePending}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var metadataJSON string
		if err := rows.Scan(&chunk.ID, &chunk.Text, &metadataJSON); err != nil {
			return nil, err
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", chunk.ID, err)
			}
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

// MarkIndexed transitions the given chunks to indexed.
func (s *Spool) MarkIndexed(ctx context.Context, ids []string) error {
	return s.mark(ctx, ids, StateIndexed, "")
}

// MarkFailed transitions the given chunks to failed, recording the reason.
// Failed chunks are retried on the next drain only after being re-spooled.
func (s *Spool) MarkFailed(ctx context.Context, ids []string, reason string) error {
	return s.mark(ctx, ids, StateFailed, reason)
}

func (s *Spool) mark(ctx context.Context, ids []string, state, failure string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE chunks SET state = ?, failure = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	var failureArg any
	if failure != "" {
		failureArg = failure
	}
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, state, failureArg, now, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteBySource removes every chunk of a source, whatever its state.
func (s *Spool) DeleteBySource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	return err
}

// Stats returns per-state chunk counts.
func (s *Spool) Stats(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM chunks GROUP BY state`)
	if err != nil {
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return counts, err
		}
		switch state {
		case StatePending:
			counts.Pending = n
		case StateIndexed:
			counts.Indexed = n
		case StateFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *Spool) Close() error {
	return s.db.Close()
}
