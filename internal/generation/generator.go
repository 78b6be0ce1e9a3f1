// Package generation provides text generation via the Gemini API.
package generation

import (
	"context"
	"errors"
)

// Errors returned by generation operations.
var (
	// ErrMissingAPIKey indicates no credential was configured. It is surfaced
	// at construction time, never mid-call.
	ErrMissingAPIKey = errors.New("generation: GEMINI_API_KEY is not set")
	// ErrService indicates the remote generation call failed.
	ErrService = errors.New("generation: service request failed")
)

// Options controls sampling for a single generation call.
type Options struct {
	Temperature     float64
	MaxOutputTokens int
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Close() error
}
