// Package embedding provides text embedding via the Gemini API and caching.
package embedding

import (
	"context"
	"errors"
)

// Errors returned by embedding operations.
var (
	// ErrMissingAPIKey indicates no credential was configured. It is surfaced
	// at construction time, never mid-call.
	ErrMissingAPIKey = errors.New("embedding: GEMINI_API_KEY is not set")
	// ErrService indicates the remote embedding call failed. Callers may retry
	// the whole operation; the adapter does not retry internally.
	ErrService = errors.New("embedding: service request failed")
)

// Embedder produces unit-normalized vector embeddings for text. Rows returned
// by EmbedDocuments are in input order, one per input text.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
