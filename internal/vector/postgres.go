package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PGQuerier implements Querier on a pgx connection pool.
type PGQuerier struct {
	pool *pgxpool.Pool
}

// NewPGQuerier creates the PostgreSQL querier.
func NewPGQuerier(pool *pgxpool.Pool) *PGQuerier {
	return &PGQuerier{pool: pool}
}

// UpsertChunk inserts or updates one chunk row.
func (q *PGQuerier) UpsertChunk(ctx context.Context, arg UpsertParams) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO chunks (project_id, chunk_id, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (project_id, chunk_id)
		 DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
		arg.ProjectID, arg.ChunkID, arg.Text, pgvector.NewVector(arg.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// SearchChunks runs a cosine similarity search within one project
// partition. Similarity is 1 - cosine distance, in [0, 1] for normalized
// embeddings.
func (q *PGQuerier) SearchChunks(ctx context.Context, arg SearchParams) ([]Match, error) {
	vec := pgvector.NewVector(arg.Embedding)
	rows, err := q.pool.Query(ctx,
		`SELECT chunk_id, content, 1 - (embedding <=> $2) AS similarity
		 FROM chunks
		 WHERE project_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		arg.ProjectID, vec, arg.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return matches, nil
}

// DeleteProjectChunks removes the project partition and reports how many
// rows it held.
func (q *PGQuerier) DeleteProjectChunks(ctx context.Context, projectID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, "DELETE FROM chunks WHERE project_id = $1", projectID)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountProjectChunks counts the rows in the project partition.
func (q *PGQuerier) CountProjectChunks(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM chunks WHERE project_id = $1", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return count, nil
}
