package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/internal/embedding"
	"github.com/codelens/codelens/internal/models"
	"github.com/codelens/codelens/internal/vector"
)

var (
	// ErrNoIndexableContent is returned when a source tree contains no
	// recognized, non-empty code or build files.
	ErrNoIndexableContent = errors.New("no indexable content found")

	// ErrIndexingInProgress is returned when an indexing run is already
	// underway for the same session.
	ErrIndexingInProgress = errors.New("indexing already in progress for session")
)

// Indexer walks a source tree, chunks its files, embeds the chunks, and
// persists the resulting index for a session.
type Indexer struct {
	selector *Selector
	chunker  *Chunker
	embedder embedding.Embedder
	store    *vector.Store
	sem      *semaphore.Weighted
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(ix *Indexer) {
		ix.logger = logger
	}
}

// NewIndexer creates an indexer wired to the given embedder and store.
func NewIndexer(embedder embedding.Embedder, store *vector.Store, cfg *config.IndexingConfig, opts ...Option) *Indexer {
	ix := &Indexer{
		selector: NewSelector(cfg.MaxFileKB),
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder: embedder,
		store:    store,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:   zap.NewNop(),
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Index builds the index for sessionID from the source tree rooted at
// sourceDir. At most one run per session may be active; concurrent runs for
// other sessions beyond the configured limit wait their turn. On success the
// previous index for the session, if any, is replaced wholesale.
func (ix *Indexer) Index(ctx context.Context, sessionID, sourceDir string) (*models.IndexStats, error) {
	ix.mu.Lock()
	if ix.inFlight[sessionID] {
		ix.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrIndexingInProgress, sessionID)
	}
	ix.inFlight[sessionID] = true
	ix.mu.Unlock()

	defer func() {
		ix.mu.Lock()
		delete(ix.inFlight, sessionID)
		ix.mu.Unlock()
	}()

	if err := ix.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for indexing slot: %w", err)
	}
	defer ix.sem.Release(1)

	var (
		chunks       []models.Chunk
		filesIndexed int
	)
	skipped, err := ix.selector.Walk(sourceDir, func(relPath, text string) error {
		fileChunks := ix.chunker.Chunk(relPath, text)
		if len(fileChunks) == 0 {
			return nil
		}
		filesIndexed++
		chunks = append(chunks, fileChunks...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source tree: %w", err)
	}

	if len(chunks) == 0 {
		return nil, ErrNoIndexableContent
	}

	ix.logger.Info("indexing session",
		zap.String("session_id", sessionID),
		zap.Int("files", filesIndexed),
		zap.Int("chunks", len(chunks)))

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	if err := ix.store.Save(sessionID, chunks, vectors); err != nil {
		return nil, fmt.Errorf("persisting index: %w", err)
	}

	stats := &models.IndexStats{
		FilesIndexed: filesIndexed,
		FilesSkipped: skipped,
		TotalChunks:  len(chunks),
	}
	ix.logger.Info("indexing complete",
		zap.String("session_id", sessionID),
		zap.Int("files_indexed", stats.FilesIndexed),
		zap.Int("files_skipped", stats.FilesSkipped),
		zap.Int("total_chunks", stats.TotalChunks))
	return stats, nil
}
