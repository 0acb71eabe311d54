package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/flownode/ragnode/internal/fetch"
	"github.com/flownode/ragnode/internal/gemini"
	"github.com/flownode/ragnode/internal/ingest"
	"github.com/flownode/ragnode/internal/parse"
	"github.com/flownode/ragnode/internal/rag"
)

// Ingestor runs a full document ingest for one project. A positive
// chunkSize overrides the server's configured window size.
type Ingestor interface {
	IngestSource(ctx context.Context, projectID, locator string, chunkSize int) (int, error)
}

// Answerer answers questions and resets project state.
type Answerer interface {
	Answer(ctx context.Context, req rag.AnswerRequest) (rag.AnswerResult, error)
	Reset(ctx context.Context, projectID string, scope rag.ResetScope) error
}

type documentRequest struct {
	ObjectKey string `json:"object_key"`
	ChunkSize int    `json:"chunk_size,omitempty"`
	// Accepted for wire compatibility; the models and the backing
	// stores are fixed by server configuration.
	EmbeddingModel string `json:"embedding_model,omitempty"`
	VectorDB       string `json:"vector_db,omitempty"`
}

type documentResponse struct {
	ProjectID string `json:"project_id"`
	Chunks    int    `json:"chunks"`
}

type llmRequest struct {
	LLM              string `json:"llm"`
	Prompt           string `json:"prompt,omitempty"`
	Message          string `json:"message"`
	TopK             int    `json:"top_k,omitempty"`
	ClearAfterAnswer *bool  `json:"clear_after_answer,omitempty"`
}

type llmResponse struct {
	Answer   string   `json:"answer"`
	Degraded bool     `json:"degraded"`
	Sources  []string `json:"sources,omitempty"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if strings.TrimSpace(projectID) == "" {
		writeError(w, http.StatusBadRequest, "project ID is required", s.logger)
		return
	}

	var req documentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if strings.TrimSpace(req.ObjectKey) == "" {
		writeError(w, http.StatusBadRequest, "object_key is required", s.logger)
		return
	}
	if req.ChunkSize < 0 {
		writeError(w, http.StatusBadRequest, "chunk_size must be positive", s.logger)
		return
	}

	chunks, err := s.ingestor.IngestSource(r.Context(), projectID, req.ObjectKey, req.ChunkSize)
	if err != nil {
		status, msg := classifyIngestError(err)
		s.logger.Error("document ingest failed",
			"project_id", projectID,
			"object_key", req.ObjectKey,
			"status", status,
			"error", err,
			"request_id", RequestID(r.Context()))
		writeError(w, status, msg, s.logger)
		return
	}

	writeJSON(w, http.StatusOK, documentResponse{ProjectID: projectID, Chunks: chunks}, s.logger)
}

func (s *Server) handleLLM(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if strings.TrimSpace(projectID) == "" {
		writeError(w, http.StatusBadRequest, "project ID is required", s.logger)
		return
	}

	var req llmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if req.LLM != "gemini" {
		writeError(w, http.StatusBadRequest, "unsupported llm: only gemini is available", s.logger)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required", s.logger)
		return
	}

	clearAfter := true
	if req.ClearAfterAnswer != nil {
		clearAfter = *req.ClearAfterAnswer
	}

	res, err := s.answerer.Answer(r.Context(), rag.AnswerRequest{
		ProjectID:    projectID,
		Message:      req.Message,
		SystemPrompt: req.Prompt,
		TopK:         req.TopK,
		ClearAfter:   clearAfter,
	})
	if err != nil {
		status, msg := classifyAnswerError(err)
		s.logger.Error("answer failed",
			"project_id", projectID,
			"status", status,
			"error", err,
			"request_id", RequestID(r.Context()))
		writeError(w, status, msg, s.logger)
		return
	}

	resp := llmResponse{Answer: res.Answer, Degraded: res.Degraded}
	for _, m := range res.Matches {
		resp.Sources = append(resp.Sources, m.ChunkID)
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// classifyIngestError maps pipeline failures to HTTP statuses. Caller
// mistakes get a 4xx, upstream and storage failures a 5xx.
func classifyIngestError(err error) (int, string) {
	switch {
	case errors.Is(err, fetch.ErrInvalidLocator):
		return http.StatusBadRequest, "invalid document locator"
	case errors.Is(err, fetch.ErrPayloadTooSmall):
		return http.StatusUnprocessableEntity, "document too small to ingest"
	case errors.Is(err, parse.ErrParse):
		return http.StatusUnprocessableEntity, "document could not be parsed"
	case errors.Is(err, ingest.ErrEmptyDocument):
		return http.StatusUnprocessableEntity, "document produced no chunks"
	case errors.Is(err, fetch.ErrFetch):
		return http.StatusBadGateway, "document could not be fetched"
	case errors.Is(err, gemini.ErrEmbedding):
		return http.StatusBadGateway, "embedding service unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// classifyAnswerError maps generation failures to HTTP statuses.
// Retrieval failures never reach here; they degrade the answer
// instead.
func classifyAnswerError(err error) (int, string) {
	switch {
	case errors.Is(err, gemini.ErrGeneration), errors.Is(err, gemini.ErrMalformedResponse):
		return http.StatusBadGateway, "generation service unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
