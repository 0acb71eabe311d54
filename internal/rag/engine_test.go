package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/flownode/ragnode/internal/log"
	"github.com/flownode/ragnode/internal/memory"
	"github.com/flownode/ragnode/internal/vector"
)

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []float32{0.1, 0.2}, nil
}

type mockGenerator struct {
	answer  string
	err     error
	prompts []string
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	return m.answer, nil
}

type mockRetriever struct {
	matches   []vector.Match
	searchErr error
	clearErr  error
	count     int64

	searchCalls int
	lastTopK    int
	clears      []string
}

func (m *mockRetriever) Search(ctx context.Context, projectID string, embedding []float32, topK int) ([]vector.Match, error) {
	m.searchCalls++
	m.lastTopK = topK
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.matches, nil
}

func (m *mockRetriever) Clear(ctx context.Context, projectID string) error {
	m.clears = append(m.clears, projectID)
	return m.clearErr
}

func (m *mockRetriever) Count(ctx context.Context, projectID string) (int64, error) {
	return m.count, nil
}

type mockMeta struct {
	deleteErr error
	count     int
	deletes   []string
}

func (m *mockMeta) DeleteProject(ctx context.Context, projectID string) error {
	m.deletes = append(m.deletes, projectID)
	return m.deleteErr
}

func (m *mockMeta) CountProject(ctx context.Context, projectID string) (int, error) {
	return m.count, nil
}

type engineFixture struct {
	engine    *Engine
	embedder  *mockEmbedder
	generator *mockGenerator
	retriever *mockRetriever
	metaStore *mockMeta
	convs     *memory.Store
}

func newFixture() *engineFixture {
	f := &engineFixture{
		embedder:  &mockEmbedder{},
		generator: &mockGenerator{answer: "the answer"},
		retriever: &mockRetriever{},
		metaStore: &mockMeta{},
		convs:     memory.NewStore(),
	}
	f.engine = New(Config{
		Embedder:      f.embedder,
		Generator:     f.generator,
		Index:         f.retriever,
		Meta:          f.metaStore,
		Conversations: f.convs,
		TopK:          5,
		HistoryTurns:  10,
		Logger:        log.NewNop(),
	})
	return f
}

func TestAnswer_PromptOrder(t *testing.T) {
	f := newFixture()
	f.retriever.matches = []vector.Match{
		{ChunkID: "p1__0", Text: "first chunk", Score: 0.9},
		{ChunkID: "p1__1", Text: "second chunk", Score: 0.8},
	}
	f.convs.Append("p1", memory.RoleUser, "earlier question")
	f.convs.Append("p1", memory.RoleAssistant, "earlier answer")

	res, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID:    "p1",
		Message:      "what now?",
		SystemPrompt: "Answer tersely.",
	})
	if err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if res.Answer != "the answer" {
		t.Errorf("answer = %q", res.Answer)
	}
	if res.Degraded {
		t.Error("answer should not be degraded")
	}

	prompt := f.generator.prompts[0]
	idx := func(s string) int { return strings.Index(prompt, s) }
	sections := []string{
		"Answer tersely.",
		"Document context:",
		"first chunk",
		"second chunk",
		"Conversation history:",
		"user: earlier question",
		"assistant: earlier answer",
		"user: what now?",
		"User question: what now?",
	}
	last := -1
	for _, sec := range sections {
		pos := idx(sec)
		if pos < 0 {
			t.Fatalf("prompt missing %q:\n%s", sec, prompt)
		}
		if pos < last {
			t.Fatalf("prompt section %q out of order:\n%s", sec, prompt)
		}
		last = pos
	}
}

func TestAnswer_DefaultSystemPrompt(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	}); err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if !strings.HasPrefix(f.generator.prompts[0], DefaultSystemPrompt) {
		t.Error("prompt should start with the default system prompt")
	}
}

func TestAnswer_NoDocumentsSentinel(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	}); err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if !strings.Contains(f.generator.prompts[0], "(no documents)") {
		t.Error("empty retrieval should surface the (no documents) sentinel")
	}
}

func TestAnswer_HistoryBounded(t *testing.T) {
	f := newFixture()
	for i := 0; i < 15; i++ {
		f.convs.Append("p1", memory.RoleUser, fmt.Sprintf("old question %d", i))
	}

	if _, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	}); err != nil {
		t.Fatalf("Answer() = %v", err)
	}

	// The current question is appended before assembly, so the window
	// holds it plus the 9 most recent prior turns.
	prompt := f.generator.prompts[0]
	for i := 0; i < 6; i++ {
		if strings.Contains(prompt, fmt.Sprintf("old question %d\n", i)) {
			t.Errorf("turn %d outside the 10-turn window leaked into the prompt", i)
		}
	}
	for i := 6; i < 15; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("old question %d", i)) {
			t.Errorf("turn %d missing from prompt window", i)
		}
	}
}

func TestAnswer_EmbedFailureDegrades(t *testing.T) {
	f := newFixture()
	f.embedder.err = errors.New("embedding quota exhausted")

	res, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	})
	if err != nil {
		t.Fatalf("Answer() = %v, retrieval failure must not be fatal", err)
	}
	if !res.Degraded {
		t.Error("result should be marked degraded")
	}
	if len(res.Matches) != 0 {
		t.Errorf("matches = %v, want none", res.Matches)
	}
	if f.retriever.searchCalls != 0 {
		t.Error("search should be skipped when embedding fails")
	}
	if !strings.Contains(f.generator.prompts[0], "(no documents)") {
		t.Error("degraded prompt should carry the empty-context sentinel")
	}
}

func TestAnswer_SearchFailureDegrades(t *testing.T) {
	f := newFixture()
	f.retriever.searchErr = errors.New("index unavailable")

	res, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	})
	if err != nil {
		t.Fatalf("Answer() = %v, retrieval failure must not be fatal", err)
	}
	if !res.Degraded {
		t.Error("result should be marked degraded")
	}
}

func TestAnswer_GenerationFailureIsFatal(t *testing.T) {
	f := newFixture()
	wantErr := errors.New("model blocked the prompt")
	f.generator.err = wantErr

	_, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Answer() = %v, want wrapped generation error", err)
	}
	// The user turn was recorded before generation and stays.
	turns := f.convs.Recent("p1", 0)
	if len(turns) != 1 || turns[0].Role != memory.RoleUser {
		t.Errorf("history after failed generation = %+v, want just the user turn", turns)
	}
}

func TestAnswer_RecordsExchange(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "my question",
	}); err != nil {
		t.Fatalf("Answer() = %v", err)
	}

	turns := f.convs.Recent("p1", 0)
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	if turns[0].Role != memory.RoleUser || turns[0].Content != "my question" {
		t.Errorf("first recorded turn = %+v", turns[0])
	}
	if turns[1].Role != memory.RoleAssistant || turns[1].Content != "the answer" {
		t.Errorf("second recorded turn = %+v", turns[1])
	}
}

func TestAnswer_ClearAfter(t *testing.T) {
	f := newFixture()
	f.convs.Append("p1", memory.RoleUser, "earlier")

	res, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID:  "p1",
		Message:    "q",
		ClearAfter: true,
	})
	if err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if res.Answer != "the answer" {
		t.Errorf("answer = %q", res.Answer)
	}
	// Everything gone after the answer: documents and history.
	if len(f.retriever.clears) != 1 {
		t.Errorf("index clears = %d, want 1", len(f.retriever.clears))
	}
	if len(f.metaStore.deletes) != 1 {
		t.Errorf("meta deletes = %d, want 1", len(f.metaStore.deletes))
	}
	if n := len(f.convs.Recent("p1", 0)); n != 0 {
		t.Errorf("history has %d turns after clear, want 0", n)
	}
}

func TestAnswer_ClearAfterFailureDoesNotFailAnswer(t *testing.T) {
	f := newFixture()
	f.retriever.clearErr = errors.New("index down")

	res, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID:  "p1",
		Message:    "q",
		ClearAfter: true,
	})
	if err != nil {
		t.Fatalf("Answer() = %v, cleanup failure must not fail the answer", err)
	}
	if res.Answer != "the answer" {
		t.Errorf("answer = %q", res.Answer)
	}
}

func TestAnswer_TopKOverride(t *testing.T) {
	f := newFixture()
	if _, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q", TopK: 3,
	}); err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if f.retriever.lastTopK != 3 {
		t.Errorf("topK = %d, want 3", f.retriever.lastTopK)
	}

	if _, err := f.engine.Answer(context.Background(), AnswerRequest{
		ProjectID: "p1", Message: "q",
	}); err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if f.retriever.lastTopK != 5 {
		t.Errorf("topK = %d, want engine default 5", f.retriever.lastTopK)
	}
}

func TestReset_DataScopeKeepsHistory(t *testing.T) {
	f := newFixture()
	f.convs.Append("p1", memory.RoleUser, "keep me")

	if err := f.engine.Reset(context.Background(), "p1", ScopeData); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	if len(f.retriever.clears) != 1 || len(f.metaStore.deletes) != 1 {
		t.Error("both document stores should be cleared")
	}
	if n := len(f.convs.Recent("p1", 0)); n != 1 {
		t.Errorf("history has %d turns, want 1 preserved", n)
	}
}

func TestReset_AllScopeClearsHistory(t *testing.T) {
	f := newFixture()
	f.convs.Append("p1", memory.RoleUser, "drop me")

	if err := f.engine.Reset(context.Background(), "p1", ScopeAll); err != nil {
		t.Fatalf("Reset() = %v", err)
	}
	if n := len(f.convs.Recent("p1", 0)); n != 0 {
		t.Errorf("history has %d turns, want 0", n)
	}
}

func TestReset_BestEffort(t *testing.T) {
	f := newFixture()
	f.retriever.clearErr = errors.New("index down")
	f.convs.Append("p1", memory.RoleUser, "turn")

	err := f.engine.Reset(context.Background(), "p1", ScopeAll)
	if err == nil {
		t.Fatal("Reset() should report the failing store")
	}
	// The other stores were still attempted.
	if len(f.metaStore.deletes) != 1 {
		t.Error("metadata delete should run despite index failure")
	}
	if n := len(f.convs.Recent("p1", 0)); n != 0 {
		t.Error("history clear should run despite index failure")
	}
}

func TestReset_Idempotent(t *testing.T) {
	f := newFixture()
	for i := 0; i < 2; i++ {
		if err := f.engine.Reset(context.Background(), "p1", ScopeAll); err != nil {
			t.Fatalf("Reset() call %d = %v", i+1, err)
		}
	}
}
