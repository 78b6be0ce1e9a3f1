// Package search retrieves the chunks most similar to a query from a
// session's vector index.
package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/embedding"
	"github.com/codelens/codelens/internal/models"
	"github.com/codelens/codelens/internal/vector"
	"github.com/codelens/codelens/pkg/utils"
)

// Searcher ranks a session's chunks against a query by cosine similarity.
// Vectors are unit-normalized at indexing time, so the dot product is the
// cosine similarity.
type Searcher struct {
	store    *vector.Store
	embedder embedding.Embedder
	logger   *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// NewSearcher creates a searcher over the given store and embedder.
func NewSearcher(store *vector.Store, embedder embedding.Embedder, opts ...Option) *Searcher {
	s := &Searcher{
		store:    store,
		embedder: embedder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the topK chunks of sessionID most similar to query, in
// descending score order. Ties keep index order, so results are deterministic
// for a fixed index and query embedding. Returns vector.ErrIndexNotFound when
// the session has no index.
func (s *Searcher) Search(ctx context.Context, sessionID, query string, topK int) ([]models.ScoredChunk, error) {
	chunks, matrix, err := s.store.Load(sessionID)
	if err != nil {
		return nil, err
	}

	qvec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	scored := make([]models.ScoredChunk, len(chunks))
	for i, row := range matrix {
		if len(row) != len(qvec) {
			return nil, fmt.Errorf("index dimension %d does not match query dimension %d", len(row), len(qvec))
		}
		scored[i] = models.ScoredChunk{
			Chunk:    chunks[i],
			Score:    utils.Dot(qvec, row),
			Language: languageForFile(chunks[i].File),
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	if topK < 0 {
		topK = 0
	}
	if topK < len(scored) {
		scored = scored[:topK]
	}
	s.logger.Debug("search complete",
		zap.String("session_id", sessionID),
		zap.Int("results", len(scored)))
	return scored, nil
}
