// Package gemini implements the embedding and generation providers on top
// of the Gemini API (google.golang.org/genai).
//
// The rest of the system consumes these capabilities through small
// interfaces defined at the call sites; this package only provides the
// concrete client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrEmbedding indicates the embedding call failed or returned no vector.
	ErrEmbedding = errors.New("embedding failed")

	// ErrGeneration indicates the generation call failed. Fatal for the
	// caller: an answer without model output has no value to return.
	ErrGeneration = errors.New("generation failed")

	// ErrMalformedResponse indicates the model responded but no answer
	// text could be extracted by any known path.
	ErrMalformedResponse = errors.New("malformed generation response")
)

// VectorDimension is the embedding width stored in the vector index.
// gemini-embedding-001 is truncated to this size via OutputDimensionality;
// the chunks table schema must match.
const VectorDimension int32 = 768

// Config holds Gemini client settings.
type Config struct {
	APIKey          string
	GenerationModel string
	EmbedderModel   string
	Temperature     float32
	MaxTokens       int

	// Timeout bounds each provider call. Zero disables the internal bound
	// and relies on the caller's context.
	Timeout time.Duration
}

// Client is a Gemini-backed embedding and generation provider.
// Safe for concurrent use.
type Client struct {
	models          *genai.Models
	generationModel string
	embedderModel   string
	temperature     float32
	maxTokens       int32
	timeout         time.Duration
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("gemini: creating client: %w", err)
	}
	return &Client{
		models:          gc.Models,
		generationModel: cfg.GenerationModel,
		embedderModel:   cfg.EmbedderModel,
		temperature:     cfg.Temperature,
		maxTokens:       int32(cfg.MaxTokens),
		timeout:         cfg.Timeout,
	}, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Embed computes the embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch computes embeddings for texts, preserving input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	dim := VectorDimension
	resp, err := c.models.EmbedContent(callCtx, c.embedderModel, contents,
		&genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timeout: %v", ErrEmbedding, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrEmbedding, len(resp.Embeddings), len(texts))
	}

	vecs := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("%w: empty vector at position %d", ErrEmbedding, i)
		}
		vecs[i] = e.Values
	}
	return vecs, nil
}

// Generate invokes the model with the assembled prompt and returns the
// plain answer text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.models.GenerateContent(callCtx, c.generationModel,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(c.temperature),
			MaxOutputTokens: c.maxTokens,
		})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: timeout: %v", ErrGeneration, err)
		}
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	return ExtractText(resp)
}

// ExtractText pulls the answer text out of a generation response.
//
// Two paths, in order: the first candidate's content parts, then the
// aggregate text helper. The response shape varies between models and
// API versions, so both must be tried before declaring the response
// malformed. A prompt-feedback block with no candidates is a refusal and
// reported as generation failure, not as malformed.
func ExtractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", ErrMalformedResponse)
	}

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand != nil && cand.Content != nil {
			var b strings.Builder
			for _, part := range cand.Content.Parts {
				if part != nil {
					b.WriteString(part.Text)
				}
			}
			if b.Len() > 0 {
				return b.String(), nil
			}
		}
	} else if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrGeneration, resp.PromptFeedback.BlockReason)
	}

	if text := resp.Text(); text != "" {
		return text, nil
	}

	return "", fmt.Errorf("%w: no text in candidates or aggregate response", ErrMalformedResponse)
}
