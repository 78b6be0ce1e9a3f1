package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGenerator implements Generator against the Gemini generateContent API.
type GeminiGenerator struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// GeminiOption configures a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithBaseURL overrides the API base URL. Used by tests to point at a local
// HTTP server.
func WithBaseURL(url string) GeminiOption {
	return func(g *GeminiGenerator) { g.baseURL = strings.TrimRight(url, "/") }
}

// NewGeminiGenerator creates a generator for the given model. Returns
// ErrMissingAPIKey if apiKey is empty.
func NewGeminiGenerator(apiKey, model string, opts ...GeminiOption) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	g := &GeminiGenerator{
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate runs one generation call and returns the trimmed response text.
// Failures are wrapped as ErrService and never retried internally.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	reqBody := generateRequest{
		Contents: []promptContent{{Parts: []promptPart{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxOutputTokens,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, string(b))
	}

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	if len(apiResp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates in response", ErrService)
	}

	var sb strings.Builder
	for _, p := range apiResp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate text", ErrService)
	}
	return text, nil
}

// Close releases idle HTTP connections.
func (g *GeminiGenerator) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

// Wire types for the Gemini generateContent endpoint.

type promptPart struct {
	Text string `json:"text"`
}

type promptContent struct {
	Parts []promptPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []promptContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content promptContent `json:"content"`
	} `json:"candidates"`
}
