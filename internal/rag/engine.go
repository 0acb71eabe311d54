// Package rag orchestrates retrieval-augmented answering: embed the
// question, retrieve matching chunks, fold in conversation history and
// generate a grounded answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flownode/ragnode/internal/memory"
	"github.com/flownode/ragnode/internal/vector"
)

// ResetScope selects how much project state Reset removes.
type ResetScope int

const (
	// ScopeData clears document chunks in both stores but keeps the
	// conversation history.
	ScopeData ResetScope = iota
	// ScopeAll additionally clears the conversation history.
	ScopeAll
)

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces the final answer text from an assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever is the slice of the vector index the engine needs.
type Retriever interface {
	Search(ctx context.Context, projectID string, embedding []float32, topK int) ([]vector.Match, error)
	Clear(ctx context.Context, projectID string) error
	Count(ctx context.Context, projectID string) (int64, error)
}

// MetaStore is the slice of the metadata store the engine needs.
type MetaStore interface {
	DeleteProject(ctx context.Context, projectID string) error
	CountProject(ctx context.Context, projectID string) (int, error)
}

// Conversations is the slice of the conversation store the engine
// needs.
type Conversations interface {
	Append(projectID string, role memory.Role, content string)
	Recent(projectID string, limit int) []memory.Turn
	Clear(projectID string)
}

// AnswerRequest carries one question against one project.
type AnswerRequest struct {
	ProjectID    string
	Message      string
	SystemPrompt string
	TopK         int
	ClearAfter   bool
}

// AnswerResult is the generated answer plus the retrieval it was
// grounded on. Degraded is set when retrieval failed and the answer
// was generated without document context.
type AnswerResult struct {
	Answer   string
	Matches  []vector.Match
	Degraded bool
}

// Engine wires the stores and model providers behind the answer and
// reset operations.
type Engine struct {
	embedder Embedder
	gen      Generator
	index    Retriever
	metaDB   MetaStore
	convs    Conversations
	locks    *ProjectLocks
	logger   *slog.Logger

	topK         int
	historyTurns int
}

// Config carries the engine's collaborators and retrieval defaults.
type Config struct {
	Embedder      Embedder
	Generator     Generator
	Index         Retriever
	Meta          MetaStore
	Conversations Conversations
	Locks         *ProjectLocks
	TopK          int
	HistoryTurns  int
	Logger        *slog.Logger
}

// New builds an Engine. A nil logger falls back to slog.Default().
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	turns := cfg.HistoryTurns
	if turns <= 0 {
		turns = 10
	}
	return &Engine{
		embedder:     cfg.Embedder,
		gen:          cfg.Generator,
		index:        cfg.Index,
		metaDB:       cfg.Meta,
		convs:        cfg.Conversations,
		locks:        cfg.Locks,
		logger:       logger,
		topK:         topK,
		historyTurns: turns,
	}
}

// Answer runs one question through retrieval and generation.
//
// The user turn is recorded before retrieval, so the history block in
// the prompt ends with the current question. Retrieval failures
// degrade the answer rather than fail it: the model still runs, with
// an empty context block. Generation failures are fatal and returned
// to the caller; the user turn stays recorded. When req.ClearAfter is
// set the project's documents and conversation history are removed
// after the answer is produced, so each such exchange starts from a
// clean slate.
func (e *Engine) Answer(ctx context.Context, req AnswerRequest) (AnswerResult, error) {
	e.convs.Append(req.ProjectID, memory.RoleUser, req.Message)

	matches, degraded := e.retrieve(ctx, req)

	history := e.convs.Recent(req.ProjectID, e.historyTurns)

	prompt := buildPrompt(req.SystemPrompt, matches, history, req.Message)

	answer, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("generating answer for project %q: %w", req.ProjectID, err)
	}

	e.convs.Append(req.ProjectID, memory.RoleAssistant, answer)

	if req.ClearAfter {
		if err := e.Reset(ctx, req.ProjectID, ScopeAll); err != nil {
			e.logger.Warn("post-answer cleanup incomplete",
				"project_id", req.ProjectID, "error", err)
		}
	}

	return AnswerResult{Answer: answer, Matches: matches, Degraded: degraded}, nil
}

// retrieve embeds the question and searches the index. Any failure is
// logged and reported as degraded with no matches.
func (e *Engine) retrieve(ctx context.Context, req AnswerRequest) ([]vector.Match, bool) {
	queryVec, err := e.embedder.Embed(ctx, req.Message)
	if err != nil {
		e.logger.Warn("question embedding failed, answering without context",
			"project_id", req.ProjectID, "error", err)
		return nil, true
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.topK
	}
	matches, err := e.index.Search(ctx, req.ProjectID, queryVec, topK)
	if err != nil {
		e.logger.Warn("retrieval failed, answering without context",
			"project_id", req.ProjectID, "error", err)
		return nil, true
	}
	return matches, false
}

// Reset clears the project's stored data. Each store is cleared
// independently and a failure in one does not stop the others; all
// failures are joined into the returned error. After a partial
// failure the stores can disagree about what the project contains,
// which Reset reports as a warning.
func (e *Engine) Reset(ctx context.Context, projectID string, scope ResetScope) error {
	if e.locks != nil {
		unlock := e.locks.Lock(projectID)
		defer unlock()
	}

	var errs []error

	if err := e.index.Clear(ctx, projectID); err != nil {
		errs = append(errs, fmt.Errorf("vector index: %w", err))
	}
	if err := e.metaDB.DeleteProject(ctx, projectID); err != nil {
		errs = append(errs, fmt.Errorf("metadata store: %w", err))
	}
	if scope == ScopeAll {
		e.convs.Clear(projectID)
	}

	if len(errs) > 0 {
		e.warnInconsistency(ctx, projectID)
		return errors.Join(errs...)
	}
	return nil
}

// warnInconsistency probes both stores after a partial reset and logs
// when they disagree about whether the project still has data.
func (e *Engine) warnInconsistency(ctx context.Context, projectID string) {
	vecCount, vecErr := e.index.Count(ctx, projectID)
	metaCount, metaErr := e.metaDB.CountProject(ctx, projectID)
	if vecErr != nil || metaErr != nil {
		return
	}
	if (vecCount == 0) != (metaCount == 0) {
		e.logger.Warn("consistency warning: stores disagree after partial reset",
			"project_id", projectID,
			"vector_chunks", vecCount,
			"meta_rows", metaCount)
	}
}
