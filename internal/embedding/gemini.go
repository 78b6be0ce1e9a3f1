package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codelens/codelens/internal/config"
	"github.com/codelens/codelens/pkg/utils"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// Task hints the service uses to specialize document vs query vectors.
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// GeminiEmbedder implements Embedder against the Gemini embedContent API.
// Document batches are capped at the configured batch size with a short pause
// between batches to stay inside the service's request-rate limits. Every
// returned vector is L2-normalized so that dot products equal cosine
// similarity.
type GeminiEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	batchPause time.Duration
	baseURL    string
	httpClient *http.Client
	cache      *Cache      // query embeddings only; nil disables caching
	logger     *zap.Logger // optional
}

// GeminiOption configures a GeminiEmbedder.
type GeminiOption func(*GeminiEmbedder)

// WithBaseURL overrides the API base URL. Used by tests to point at a local
// HTTP server.
func WithBaseURL(url string) GeminiOption {
	return func(g *GeminiEmbedder) { g.baseURL = strings.TrimRight(url, "/") }
}

// WithCache enables caching of query embeddings.
func WithCache(c *Cache) GeminiOption {
	return func(g *GeminiEmbedder) { g.cache = c }
}

// WithLogger sets a logger for debug output (batch progress).
func WithLogger(l *zap.Logger) GeminiOption {
	return func(g *GeminiEmbedder) { g.logger = l }
}

// NewGeminiEmbedder creates an embedder for the configured model. Returns
// ErrMissingAPIKey if apiKey is empty; the credential is checked once here so
// calls never fail on configuration mid-pipeline.
func NewGeminiEmbedder(apiKey string, cfg *config.EmbeddingConfig, opts ...GeminiOption) (*GeminiEmbedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	g := &GeminiEmbedder{
		apiKey:     strings.TrimSpace(apiKey),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause(),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// EmbedDocuments embeds texts in batches, preserving input order.
func (g *GeminiEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrService)
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		if g.logger != nil {
			g.logger.Debug("embedding batch",
				zap.Int("batch", start/g.batchSize+1),
				zap.Int("size", len(batch)))
		}
		vectors, err := g.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)

		if end < len(texts) && g.batchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.batchPause):
			}
		}
	}
	return out, nil
}

// EmbedQuery embeds a single retrieval query, consulting the cache first.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if g.cache != nil {
		if vec, ok := g.cache.Get(text); ok {
			return vec, nil
		}
	}

	reqBody := embedContentRequest{
		Model:    "models/" + g.model,
		Content:  content{Parts: []part{{Text: text}}},
		TaskType: taskTypeQuery,
	}
	var resp embedContentResponse
	if err := g.post(ctx, ":embedContent", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrService)
	}
	vec := resp.Embedding.Values
	utils.NormalizeL2(vec)

	if g.cache != nil {
		g.cache.Set(text, vec)
	}
	return vec, nil
}

// Dimensions returns the configured embedding dimension.
func (g *GeminiEmbedder) Dimensions() int {
	return g.dimensions
}

// Close releases idle HTTP connections.
func (g *GeminiEmbedder) Close() error {
	g.httpClient.CloseIdleConnections()
	return nil
}

func (g *GeminiEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := batchEmbedRequest{Requests: make([]embedContentRequest, len(texts))}
	for i, t := range texts {
		reqBody.Requests[i] = embedContentRequest{
			Model:    "models/" + g.model,
			Content:  content{Parts: []part{{Text: t}}},
			TaskType: taskTypeDocument,
		}
	}

	var resp batchEmbedResponse
	if err := g.post(ctx, ":batchEmbedContents", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrService, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vec := e.Values
		utils.NormalizeL2(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

// post issues one API call. Failures are wrapped as ErrService and not retried;
// the orchestrating component decides what to do with a failed attempt.
func (g *GeminiEmbedder) post(ctx context.Context, method string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s%s", g.baseURL, g.model, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrService, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrService, err)
	}
	return nil
}

// Wire types for the Gemini embedContent endpoints.

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type embedContentRequest struct {
	Model    string  `json:"model"`
	Content  content `json:"content"`
	TaskType string  `json:"taskType"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type embeddingValues struct {
	Values []float32 `json:"values"`
}

type batchEmbedResponse struct {
	Embeddings []embeddingValues `json:"embeddings"`
}

type embedContentResponse struct {
	Embedding embeddingValues `json:"embedding"`
}
