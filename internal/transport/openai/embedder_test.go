package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
)

// embeddingsResponse mirrors the OpenAI /v1/embeddings response shape.
type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEmbedder(&Config{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Model:      "text-embedding-3-small",
		Dimensions: 3,
		Provider:   "openai",
		Logger:     zap.NewNop(),
	})
}

func embeddingsHandler(t *testing.T, vectors [][]float32) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		var resp embeddingsResponse
		for i, v := range vectors {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: v})
		}
		resp.Usage.PromptTokens = 7
		resp.Usage.TotalTokens = 7
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestBatchEmbed_ReturnsVectorsInOrder(t *testing.T) {
	e := newTestEmbedder(t, embeddingsHandler(t, [][]float32{
		{0.1, 0.2, 0.3},
		{0.4, 0.5, 0.6},
	}))

	res, err := e.BatchEmbed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("batch embed: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(res.Embeddings))
	}
	if res.Embeddings[0][0] != 0.1 || res.Embeddings[1][0] != 0.4 {
		t.Errorf("embeddings = %v, want input order preserved", res.Embeddings)
	}
	if res.PromptTokens != 7 || res.TotalTokens != 7 {
		t.Errorf("usage = %d/%d, want 7/7", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchEmbed_RestoresAPIOrder(t *testing.T) {
	// The API is allowed to return data entries out of order; Index wins.
	e := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"index":1,"embedding":[0.4,0.5,0.6]},
			{"index":0,"embedding":[0.1,0.2,0.3]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`)
	})

	res, err := e.BatchEmbed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("batch embed: %v", err)
	}
	if res.Embeddings[0][0] != 0.1 || res.Embeddings[1][0] != 0.4 {
		t.Errorf("embeddings = %v, want index-restored order", res.Embeddings)
	}
}

func TestBatchEmbed_EmptyInput(t *testing.T) {
	e := newTestEmbedder(t, embeddingsHandler(t, nil))
	if _, err := e.BatchEmbed(context.Background(), nil); !errors.Is(err, domain.ErrEmptyBatch) {
		t.Errorf("got %v, want ErrEmptyBatch", err)
	}
}

func TestBatchEmbed_ShortResponse(t *testing.T) {
	e := newTestEmbedder(t, embeddingsHandler(t, [][]float32{{0.1, 0.2, 0.3}}))

	_, err := e.BatchEmbed(context.Background(), []string{"alpha", "beta"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("got %v, want ErrEmbeddingProviderError", err)
	}
}

func TestBatchEmbed_RateLimited(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"detail":"rate limit exceeded"}`)
	})

	_, err := e.BatchEmbed(context.Background(), []string{"alpha"})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("got %v, want ErrRateLimited", err)
	}
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("got %v, want ErrEmbeddingProviderError as well", err)
	}
	if !domain.Retryable(err) {
		t.Error("rate-limited error must be retryable")
	}
}

func TestBatchEmbed_ServerError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail":"upstream exploded"}`)
	})

	_, err := e.BatchEmbed(context.Background(), []string{"alpha"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("got %v, want ErrBackendUnavailable", err)
	}
	if !domain.Retryable(err) {
		t.Error("5xx error must be retryable")
	}
}

func TestBatchEmbed_ClientError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"detail":"model not found"}`)
	})

	_, err := e.BatchEmbed(context.Background(), []string{"alpha"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Errorf("got %v, want ErrEmbeddingProviderError", err)
	}
	if domain.Retryable(err) {
		t.Error("4xx error must not be retryable")
	}
}

func TestBatchEmbed_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewEmbedder(&Config{
		APIKey:  "test-key",
		BaseURL: url + "/v1",
		Model:   "text-embedding-3-small",
		Logger:  zap.NewNop(),
	})

	_, err := e.BatchEmbed(context.Background(), []string{"alpha"})
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("got %v, want ErrBackendUnavailable", err)
	}
}

func TestHealthCheck(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("health probed %s, want /v1/models", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"text-embedding-3-small"}]}`)
	})
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check: %v", err)
	}
}
