// Package ingest turns a source document into embedded chunks persisted
// across the metadata store and the vector index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flownode/ragnode/internal/meta"
)

// ErrEmptyDocument is returned when a document yields no chunks after
// parsing and splitting.
var ErrEmptyDocument = errors.New("document produced no chunks")

// Fetcher retrieves the raw bytes of a document.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Parser extracts per-page text from raw document bytes.
type Parser interface {
	Parse(raw []byte) ([]string, error)
}

// Embedder maps one chunk of text to its embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MetaWriter is the slice of the metadata store the pipeline needs.
type MetaWriter interface {
	Insert(ctx context.Context, rec meta.Record) error
	DeleteProject(ctx context.Context, projectID string) error
}

// VectorWriter is the slice of the vector index the pipeline needs.
type VectorWriter interface {
	Upsert(ctx context.Context, projectID, chunkID string, embedding []float32, text string) error
	Clear(ctx context.Context, projectID string) error
}

// Locker serializes writes per project.
type Locker interface {
	Lock(projectID string) (unlock func())
}

// Pipeline runs fetch, parse, split, embed and persist for one project
// at a time. Re-ingesting a project replaces its previous data.
type Pipeline struct {
	fetcher  Fetcher
	parser   Parser
	embedder Embedder
	metaDB   MetaWriter
	index    VectorWriter
	locks    Locker
	logger   *slog.Logger

	chunkSize    int
	chunkOverlap int
}

// Config carries the pipeline's collaborators and chunking settings.
type Config struct {
	Fetcher      Fetcher
	Parser       Parser
	Embedder     Embedder
	Meta         MetaWriter
	Index        VectorWriter
	Locks        Locker
	ChunkSize    int
	ChunkOverlap int
	Logger       *slog.Logger
}

// New builds a Pipeline. A nil logger falls back to slog.Default().
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:      cfg.Fetcher,
		parser:       cfg.Parser,
		embedder:     cfg.Embedder,
		metaDB:       cfg.Meta,
		index:        cfg.Index,
		locks:        cfg.Locks,
		logger:       logger,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
}

// IngestSource fetches and parses the document at locator, then stores
// the extracted pages. A positive chunkSize overrides the configured
// window size for this call. It returns the number of chunks stored.
func (p *Pipeline) IngestSource(ctx context.Context, projectID, locator string, chunkSize int) (int, error) {
	raw, err := p.fetcher.Fetch(ctx, locator)
	if err != nil {
		return 0, fmt.Errorf("fetching %q: %w", locator, err)
	}

	pages, err := p.parser.Parse(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", locator, err)
	}

	return p.ingest(ctx, projectID, locator, pages, chunkSize)
}

// Ingest splits pages into chunks, embeds them and writes each chunk
// to both stores using the configured chunk size.
func (p *Pipeline) Ingest(ctx context.Context, projectID, sourceRef string, pages []string) (int, error) {
	return p.ingest(ctx, projectID, sourceRef, pages, 0)
}

// ingest performs the replace-on-reingest write. Each page is split
// into overlapping windows; pages with no extractable text are
// skipped. Chunk IDs are "<projectID>__<index>" with indices assigned
// in document order across pages.
//
// Per chunk the order is embed, metadata insert, vector upsert. Writes
// are not atomic across chunks or stores: a failure mid-way leaves
// earlier chunks persisted, and the returned error names the failing
// stage so the caller can retry the whole ingest.
func (p *Pipeline) ingest(ctx context.Context, projectID, sourceRef string, pages []string, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = p.chunkSize
	}

	var chunks []string
	for _, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		chunks = append(chunks, Split(page, chunkSize, p.chunkOverlap)...)
	}
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}

	if p.locks != nil {
		unlock := p.locks.Lock(projectID)
		defer unlock()
	}

	// Prior content is replaced, never accumulated.
	if err := p.index.Clear(ctx, projectID); err != nil {
		return 0, fmt.Errorf("clearing vector index for project %q: %w", projectID, err)
	}
	if err := p.metaDB.DeleteProject(ctx, projectID); err != nil {
		return 0, fmt.Errorf("clearing metadata for project %q: %w", projectID, err)
	}

	for i, chunk := range chunks {
		chunkID := fmt.Sprintf("%s__%d", projectID, i)

		embedding, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			return i, fmt.Errorf("embedding chunk %s: %w", chunkID, err)
		}
		if err := p.metaDB.Insert(ctx, meta.Record{
			ProjectID:   projectID,
			ChunkID:     chunkID,
			SourceRef:   sourceRef,
			TextSnippet: chunk,
			ExtraMeta:   fmt.Sprintf(`{"chunk_index":%d,"source":"url"}`, i),
		}); err != nil {
			return i, fmt.Errorf("storing chunk %s metadata: %w", chunkID, err)
		}
		if err := p.index.Upsert(ctx, projectID, chunkID, embedding, chunk); err != nil {
			return i, fmt.Errorf("storing chunk %s in vector index: %w", chunkID, err)
		}
	}

	p.logger.Info("document ingested",
		"project_id", projectID,
		"source", sourceRef,
		"chunks", len(chunks))
	return len(chunks), nil
}
