// Package meta implements the per-chunk metadata store on SQLite.
//
// Each row correlates with a vector index entry by (project_id, chunk_id).
// The two stores fail independently; the correlation invariant is checked
// by the orchestrator during cleanup, not enforced here.
package meta

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SnippetMaxLen bounds the stored text snippet. The full chunk text is
// used for embedding; only the snippet is truncated, so vector search
// can match content the snippet no longer shows.
const SnippetMaxLen = 1000

// Record is one chunk's metadata row.
type Record struct {
	ProjectID   string
	ChunkID     string
	SourceRef   string
	TextSnippet string
	ExtraMeta   string
}

// Open opens the SQLite database at path, creating parent directories as
// needed. The caller owns the returned handle.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL keeps concurrent readers from blocking ingestion writes.
	if _, err := sqldb.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := sqldb.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return sqldb, nil
}

// Store persists chunk metadata. Safe for concurrent use; SQLite handles
// serialization through database/sql.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a metadata Store. A nil logger uses slog.Default().
func New(sqldb *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: sqldb, logger: logger}
}

// Insert writes one chunk's metadata. The snippet is truncated to
// SnippetMaxLen runes before storage.
func (s *Store) Insert(ctx context.Context, rec Record) error {
	snippet := truncateRunes(rec.TextSnippet, SnippetMaxLen)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (project_id, chunk_id, source_ref, text_snippet, extra_meta)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ProjectID, rec.ChunkID, rec.SourceRef, snippet, rec.ExtraMeta,
	)
	if err != nil {
		return fmt.Errorf("inserting metadata for chunk %q: %w", rec.ChunkID, err)
	}

	s.logger.Debug("metadata stored", "project_id", rec.ProjectID, "chunk_id", rec.ChunkID)
	return nil
}

// DeleteProject removes all metadata rows for the project. Deleting an
// unknown project succeeds silently.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE project_id = ?", projectID)
	if err != nil {
		return fmt.Errorf("deleting metadata for project %q: %w", projectID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("metadata cleared", "project_id", projectID, "rows", n)
	}
	return nil
}

// CountProject returns the number of metadata rows for the project.
func (s *Store) CountProject(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting metadata for project %q: %w", projectID, err)
	}
	return count, nil
}

// ListProject returns all metadata rows for the project ordered by
// insertion.
func (s *Store) ListProject(ctx context.Context, projectID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, chunk_id, source_ref, text_snippet, extra_meta
		 FROM documents WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing metadata for project %q: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ProjectID, &rec.ChunkID, &rec.SourceRef,
			&rec.TextSnippet, &rec.ExtraMeta); err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata rows: %w", err)
	}
	return records, nil
}

func truncateRunes(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
