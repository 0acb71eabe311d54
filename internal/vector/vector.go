// Package vector implements the per-project vector index on
// PostgreSQL + pgvector.
//
// The index is a thin adapter: similarity math lives in the database.
// Partitions are rows sharing a project_id and are removable as a unit.
package vector

import (
	"context"
	"fmt"
	"log/slog"
)

// Match is a single search result, ordered by descending similarity.
type Match struct {
	ChunkID string
	Text    string
	Score   float64
}

// UpsertParams carries one chunk into the index.
type UpsertParams struct {
	ProjectID string
	ChunkID   string
	Text      string
	Embedding []float32
}

// SearchParams describes a similarity query against one project partition.
type SearchParams struct {
	ProjectID string
	Embedding []float32
	TopK      int
}

// Querier defines the database operations the index needs. Defined here,
// by the consumer, so tests can substitute a mock for the PostgreSQL
// implementation.
type Querier interface {
	UpsertChunk(ctx context.Context, arg UpsertParams) error
	SearchChunks(ctx context.Context, arg SearchParams) ([]Match, error)
	DeleteProjectChunks(ctx context.Context, projectID string) (int64, error)
	CountProjectChunks(ctx context.Context, projectID string) (int64, error)
}

// Index manages per-project chunk embeddings.
// Safe for concurrent use.
type Index struct {
	queries Querier
	logger  *slog.Logger
}

// New creates an Index. A nil logger uses slog.Default().
func New(queries Querier, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{queries: queries, logger: logger}
}

// Upsert inserts or replaces one chunk's embedding in the project
// partition.
func (ix *Index) Upsert(ctx context.Context, projectID, chunkID string, embedding []float32, text string) error {
	if len(embedding) == 0 {
		return fmt.Errorf("empty embedding for chunk %q", chunkID)
	}

	err := ix.queries.UpsertChunk(ctx, UpsertParams{
		ProjectID: projectID,
		ChunkID:   chunkID,
		Text:      text,
		Embedding: embedding,
	})
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunkID, err)
	}

	ix.logger.Debug("chunk indexed", "project_id", projectID, "chunk_id", chunkID)
	return nil
}

// Search returns at most topK matches for the project ordered by
// descending similarity. A project with no partition yields an empty
// result, never an error: "no documents" is an expected state.
func (ix *Index) Search(ctx context.Context, projectID string, queryEmbedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	matches, err := ix.queries.SearchChunks(ctx, SearchParams{
		ProjectID: projectID,
		Embedding: queryEmbedding,
		TopK:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("searching project %q: %w", projectID, err)
	}
	return matches, nil
}

// Clear removes the project's partition. Idempotent: clearing an absent
// or empty partition succeeds silently.
func (ix *Index) Clear(ctx context.Context, projectID string) error {
	n, err := ix.queries.DeleteProjectChunks(ctx, projectID)
	if err != nil {
		return fmt.Errorf("clearing project %q: %w", projectID, err)
	}
	if n > 0 {
		ix.logger.Debug("vector partition cleared", "project_id", projectID, "rows", n)
	}
	return nil
}

// Count returns the number of chunks indexed for the project.
func (ix *Index) Count(ctx context.Context, projectID string) (int64, error) {
	n, err := ix.queries.CountProjectChunks(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("counting project %q: %w", projectID, err)
	}
	return n, nil
}
