package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/internal/embedding"
	"github.com/codelens/codelens/internal/generation"
	"github.com/codelens/codelens/internal/models"
	"github.com/codelens/codelens/internal/search"
	"github.com/codelens/codelens/internal/vector"
)

func testAnswerConfig() *config.AnswerConfig {
	return &config.AnswerConfig{
		TopK:                8,
		Temperature:         0.2,
		MaxOutputTokens:     1500,
		RefactorTemperature: 0.3,
		RefactorMaxTokens:   800,
	}
}

func seedSession(t *testing.T, texts []string) (*search.Searcher, string) {
	t.Helper()
	emb := embedding.NewMockEmbedder(32)
	store, err := vector.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			File:      "auth.py",
			LineStart: i*10 + 1,
			LineEnd:   i*10 + 10,
			Text:      text,
			Raw:       text,
		}
	}
	vectors, err := emb.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save("sess-1", chunks, vectors); err != nil {
		t.Fatal(err)
	}
	return search.NewSearcher(store, emb), "sess-1"
}

func TestAnswerGroundsPromptInSnippets(t *testing.T) {
	searcher, sessionID := seedSession(t, []string{"def login(user):", "def logout(user):"})
	gen := &generation.MockGenerator{Response: "It handles login. [1]"}

	c := NewComposer(searcher, gen, testAnswerConfig())
	result, err := c.Answer(context.Background(), sessionID, "def login(user):", false)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Answer != "It handles login. [1]" {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.Snippets) != 2 {
		t.Errorf("got %d snippets, want 2", len(result.Snippets))
	}
	if result.RefactorSuggestions != "" {
		t.Errorf("unexpected refactor suggestions: %q", result.RefactorSuggestions)
	}

	prompts := gen.Calls()
	if len(prompts) != 1 {
		t.Fatalf("generator called %d times, want 1", len(prompts))
	}
	prompt := prompts[0]
	if !strings.Contains(prompt, "def login(user):") {
		t.Error("prompt missing snippet content")
	}
	if !strings.Contains(prompt, "[1] auth.py (lines 1-10)") {
		t.Error("prompt missing numbered snippet label")
	}
	if !strings.Contains(prompt, "Question: def login(user):") {
		t.Error("prompt missing question")
	}
	if !strings.Contains(prompt, "```python") {
		t.Error("prompt missing language fence")
	}
}

func TestAnswerWithRefactor(t *testing.T) {
	searcher, sessionID := seedSession(t, []string{"def login(user):", "def logout(user):"})
	gen := &generation.MockGenerator{Response: "answer text"}

	c := NewComposer(searcher, gen, testAnswerConfig())
	result, err := c.Answer(context.Background(), sessionID, "def login(user):", true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.RefactorSuggestions != "answer text" {
		t.Errorf("refactor suggestions = %q", result.RefactorSuggestions)
	}

	prompts := gen.Calls()
	if len(prompts) != 2 {
		t.Fatalf("generator called %d times, want 2", len(prompts))
	}
	refactor := prompts[1]
	if !strings.Contains(refactor, "Issue, Suggestion, Why") {
		t.Error("refactor prompt missing structure instruction")
	}
	// Only the top-ranked snippet participates.
	if strings.Contains(refactor, "[2]") {
		t.Error("refactor prompt should contain a single snippet")
	}
}

func TestAnswerRefactorFailureIsBestEffort(t *testing.T) {
	searcher, sessionID := seedSession(t, []string{"def login(user):"})
	gen := &refactorFailingGenerator{answer: "the answer"}

	c := NewComposer(searcher, gen, testAnswerConfig())
	result, err := c.Answer(context.Background(), sessionID, "login", true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Answer != "the answer" {
		t.Errorf("answer = %q", result.Answer)
	}
	if result.RefactorSuggestions != "" {
		t.Errorf("refactor suggestions should be absent, got %q", result.RefactorSuggestions)
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	searcher, sessionID := seedSession(t, []string{"code"})
	gen := &generation.MockGenerator{Err: generation.ErrService}

	c := NewComposer(searcher, gen, testAnswerConfig())
	_, err := c.Answer(context.Background(), sessionID, "q", false)
	if !errors.Is(err, generation.ErrService) {
		t.Fatalf("err = %v, want ErrService", err)
	}
}

func TestAnswerMissingIndex(t *testing.T) {
	store, err := vector.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	searcher := search.NewSearcher(store, embedding.NewMockEmbedder(32))
	c := NewComposer(searcher, &generation.MockGenerator{}, testAnswerConfig())

	_, err = c.Answer(context.Background(), "nope", "q", false)
	if !errors.Is(err, vector.ErrIndexNotFound) {
		t.Fatalf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestAnswerNoResults(t *testing.T) {
	searcher, sessionID := seedSession(t, []string{"code"})
	gen := &generation.MockGenerator{Response: "should not be called"}

	cfg := testAnswerConfig()
	cfg.TopK = 0
	c := NewComposer(searcher, gen, cfg)

	result, err := c.Answer(context.Background(), sessionID, "q", true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if result.Answer != noResultsAnswer {
		t.Errorf("answer = %q, want fixed no-results answer", result.Answer)
	}
	if len(result.Snippets) != 0 || result.RefactorSuggestions != "" {
		t.Error("no-results answer must carry no snippets or suggestions")
	}
	if calls := gen.Calls(); len(calls) != 0 {
		t.Errorf("generator called %d times, want 0", len(calls))
	}
}

// refactorFailingGenerator answers the first call and fails every later one.
type refactorFailingGenerator struct {
	answer string
	calls  int
}

func (g *refactorFailingGenerator) Generate(_ context.Context, _ string, _ generation.Options) (string, error) {
	g.calls++
	if g.calls == 1 {
		return g.answer, nil
	}
	return "", generation.ErrService
}

func (g *refactorFailingGenerator) Close() error { return nil }
