// Package qa composes retrieval and generation into grounded answers about an
// indexed codebase.
package qa

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/internal/generation"
	"github.com/codelens/codelens/internal/models"
	"github.com/codelens/codelens/internal/search"
)

// noResultsAnswer is returned verbatim when retrieval finds nothing relevant.
const noResultsAnswer = "No relevant code found for your question. Try rephrasing or upload a different codebase."

// Composer answers questions about a session's codebase by retrieving the
// most relevant chunks and generating a grounded answer from them.
type Composer struct {
	searcher  *search.Searcher
	generator generation.Generator
	cfg       *config.AnswerConfig
	logger    *zap.Logger
}

// Option configures a Composer.
type Option func(*Composer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// NewComposer creates a composer over the given searcher and generator.
func NewComposer(searcher *search.Searcher, generator generation.Generator, cfg *config.AnswerConfig, opts ...Option) *Composer {
	c := &Composer{
		searcher:  searcher,
		generator: generator,
		cfg:       cfg,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Answer retrieves the chunks most relevant to question within sessionID and
// generates an answer grounded in them. When retrieval returns nothing, a
// fixed fallback answer with no snippets is returned without calling the
// generator. The refactor pass is best effort: its failure never fails the
// answer.
func (c *Composer) Answer(ctx context.Context, sessionID, question string, wantRefactor bool) (*models.QAResult, error) {
	snippets, err := c.searcher.Search(ctx, sessionID, question, c.cfg.TopK)
	if err != nil {
		return nil, err
	}

	if len(snippets) == 0 {
		return &models.QAResult{Answer: noResultsAnswer}, nil
	}

	answer, err := c.generator.Generate(ctx, buildAnswerPrompt(question, snippets), generation.Options{
		Temperature:     c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	result := &models.QAResult{
		Answer:   answer,
		Snippets: snippets,
	}

	if wantRefactor {
		// The refactor pass looks at only the top-ranked chunk.
		suggestions, err := c.generator.Generate(ctx, buildRefactorPrompt(snippets[:1]), generation.Options{
			Temperature:     c.cfg.RefactorTemperature,
			MaxOutputTokens: c.cfg.RefactorMaxTokens,
		})
		if err != nil {
			c.logger.Warn("refactor suggestions failed",
				zap.String("session_id", sessionID),
				zap.Error(err))
		} else {
			result.RefactorSuggestions = suggestions
		}
	}

	return result, nil
}
