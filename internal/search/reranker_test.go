package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRerankStub(t *testing.T, scoreFor func(doc string) float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/rerank":
			var req rerankRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			scores := make([]float64, len(req.Documents))
			for i, doc := range req.Documents {
				scores[i] = scoreFor(doc)
			}
			_ = json.NewEncoder(w).Encode(rerankResponse{Scores: scores})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPReranker_Predict(t *testing.T) {
	srv := newRerankStub(t, func(doc string) float64 {
		return float64(len(doc))
	})

	r := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	defer r.Close()

	scores, err := r.Predict(context.Background(), "card fees", []string{"short", "a longer document"})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Less(t, scores[0], scores[1])
}

func TestHTTPReranker_EmptyDocuments(t *testing.T) {
	r := NewHTTPReranker(HTTPRerankerConfig{Endpoint: "http://127.0.0.1:1"})
	defer r.Close()

	scores, err := r.Predict(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestHTTPReranker_UnreachableEndpointErrors(t *testing.T) {
	r := NewHTTPReranker(HTTPRerankerConfig{Endpoint: "http://127.0.0.1:1"})
	defer r.Close()

	_, err := r.Predict(context.Background(), "q", []string{"doc"})
	assert.Error(t, err)
	assert.False(t, r.Available(context.Background()))
}

func TestHTTPReranker_ScoreCountMismatchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(rerankResponse{Scores: []float64{1.0}})
	}))
	t.Cleanup(srv.Close)

	r := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	defer r.Close()

	_, err := r.Predict(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}

func TestHTTPReranker_Available(t *testing.T) {
	srv := newRerankStub(t, func(string) float64 { return 0 })

	r := NewHTTPReranker(HTTPRerankerConfig{Endpoint: srv.URL})
	defer r.Close()
	assert.True(t, r.Available(context.Background()))
}
