package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Reranker scores (query, document) pairs with a cross-encoder. Scores
// are raw model outputs, deliberately unnormalized: only their relative
// order matters, and squeezing them into [0,1] would discard the
// model's calibration.
type Reranker interface {
	// Predict returns one score per document, in input order.
	Predict(ctx context.Context, query string, documents []string) ([]float64, error)

	// Available reports whether the backend is reachable.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// HTTPRerankerConfig configures the HTTP cross-encoder client.
type HTTPRerankerConfig struct {
	Endpoint string // e.g. http://localhost:8765
	Model    string
	Timeout  time.Duration
}

// HTTPReranker calls an external cross-encoder service over HTTP.
type HTTPReranker struct {
	config HTTPRerankerConfig
	client *http.Client
}

// Compile-time interface check.
var _ Reranker = (*HTTPReranker)(nil)

// rerankRequest is the /rerank request body.
type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

// rerankResponse is the /rerank response body.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewHTTPReranker creates an HTTP reranker client.
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankTimeout
	}
	return &HTTPReranker{
		config: cfg,
		client: &http.Client{},
	}
}

// Predict scores the documents against the query.
func (r *HTTPReranker) Predict(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.config.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	if len(result.Scores) != len(documents) {
		return nil, fmt.Errorf("rerank returned %d scores for %d documents", len(result.Scores), len(documents))
	}

	return result.Scores, nil
}

// Available checks whether the reranker service responds on /health.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Close releases HTTP resources.
func (r *HTTPReranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
