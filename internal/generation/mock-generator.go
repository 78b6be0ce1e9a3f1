package generation

import (
	"context"
	"sync"
)

// MockGenerator is a canned-response generator for tests. It records every
// prompt it receives and can be configured to fail.
type MockGenerator struct {
	mu       sync.Mutex
	Response string
	Err      error
	Prompts  []string
}

// NewMockGenerator returns a generator that always answers with response.
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{Response: response}
}

// Generate records the prompt and returns the configured response or error.
func (m *MockGenerator) Generate(_ context.Context, prompt string, _ Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Calls returns a copy of the prompts received so far.
func (m *MockGenerator) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Prompts...)
}

// Close is a no-op.
func (m *MockGenerator) Close() error {
	return nil
}
