package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/retry"
)

// mockEmbedder records calls and serves scripted responses per call.
type mockEmbedder struct {
	mu      sync.Mutex
	calls   [][]string
	respond func(call int, texts []string) (domain.BatchEmbeddingResult, error)
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, texts)
	m.mu.Unlock()
	return m.respond(call, texts)
}

func vectorsFor(texts []string, dim int) domain.BatchEmbeddingResult {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return domain.BatchEmbeddingResult{Embeddings: out, PromptTokens: len(texts), TotalTokens: len(texts)}
}

func noSleepPolicy(maxAttempts int) retry.Policy {
	return retry.New(maxAttempts, time.Millisecond, time.Millisecond).
		WithSleep(func(context.Context, time.Duration) error { return nil })
}

func newTestBatcher(inner domain.BatchEmbedder, cfg Config) *Batcher {
	return NewBatcher(inner, cfg, "openai", "text-embedding-3-small", zap.NewNop())
}

func TestBatchEmbed_SingleSubBatch(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(_ int, texts []string) (domain.BatchEmbeddingResult, error) {
			return vectorsFor(texts, 3), nil
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 10, Dimensions: 3, Retry: noSleepPolicy(1)})

	res, err := b.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("batch embed: %v", err)
	}
	if len(inner.calls) != 1 {
		t.Errorf("made %d API calls, want 1", len(inner.calls))
	}
	if len(res.Embeddings) != 3 {
		t.Errorf("got %d embeddings, want 3", len(res.Embeddings))
	}
	if res.PromptTokens != 3 || res.TotalTokens != 3 {
		t.Errorf("usage = %d/%d, want 3/3", res.PromptTokens, res.TotalTokens)
	}
}

func TestBatchEmbed_SplitsOversizedInput(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(_ int, texts []string) (domain.BatchEmbeddingResult, error) {
			return vectorsFor(texts, 2), nil
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 2, Dimensions: 2, Retry: noSleepPolicy(1)})

	texts := []string{"a", "b", "c", "d", "e"}
	res, err := b.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("batch embed: %v", err)
	}
	if len(inner.calls) != 3 {
		t.Fatalf("made %d API calls, want 3 for batch size 2", len(inner.calls))
	}
	if len(inner.calls[0]) != 2 || len(inner.calls[2]) != 1 {
		t.Errorf("sub-batch sizes = %d,%d,%d, want 2,2,1",
			len(inner.calls[0]), len(inner.calls[1]), len(inner.calls[2]))
	}
	if len(res.Embeddings) != 5 {
		t.Errorf("got %d embeddings, want 5", len(res.Embeddings))
	}
	for i, vec := range res.Embeddings {
		if vec == nil {
			t.Errorf("embedding %d is nil", i)
		}
	}
	// Token usage accumulates across sub-batches.
	if res.TotalTokens != 5 {
		t.Errorf("total tokens = %d, want 5", res.TotalTokens)
	}
}

func TestBatchEmbed_EmptyInput(t *testing.T) {
	b := newTestBatcher(&mockEmbedder{}, Config{Retry: noSleepPolicy(1)})

	res, err := b.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("batch embed: %v", err)
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("got %d embeddings for empty input", len(res.Embeddings))
	}
}

func TestBatchEmbed_RetriesTransientFailure(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(call int, texts []string) (domain.BatchEmbeddingResult, error) {
			if call == 0 {
				return domain.BatchEmbeddingResult{}, domain.ErrRateLimited
			}
			return vectorsFor(texts, 2), nil
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 10, Dimensions: 2, Retry: noSleepPolicy(3)})

	res, err := b.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("batch embed: %v", err)
	}
	if len(inner.calls) != 2 {
		t.Errorf("made %d API calls, want 2 (one retry)", len(inner.calls))
	}
	if len(res.Embeddings) != 2 {
		t.Errorf("got %d embeddings, want 2", len(res.Embeddings))
	}
}

func TestBatchEmbed_PositionalErrorAfterExhaustion(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(_ int, texts []string) (domain.BatchEmbeddingResult, error) {
			// Second sub-batch (offset 2) always fails.
			if texts[0] == "c" {
				return domain.BatchEmbeddingResult{}, domain.ErrBackendUnavailable
			}
			return vectorsFor(texts, 2), nil
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 2, Dimensions: 2, Retry: noSleepPolicy(2)})

	_, err := b.BatchEmbed(context.Background(), []string{"a", "b", "c", "d"})

	var batchErr *domain.EmbedBatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("got %T (%v), want *domain.EmbedBatchError", err, err)
	}
	if len(batchErr.Positions) != 2 || batchErr.Positions[0] != 2 || batchErr.Positions[1] != 3 {
		t.Errorf("failed positions = %v, want [2 3]", batchErr.Positions)
	}
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("positional error does not wrap the cause: %v", err)
	}
}

func TestBatchEmbed_NonRetryableFailsFast(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(_ int, _ []string) (domain.BatchEmbeddingResult, error) {
			return domain.BatchEmbeddingResult{}, domain.ErrEmbeddingProviderError
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 10, Retry: noSleepPolicy(5)})

	_, err := b.BatchEmbed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(inner.calls) != 1 {
		t.Errorf("made %d API calls for a non-retryable failure, want 1", len(inner.calls))
	}
}

func TestBatchEmbed_DimensionValidation(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(_ int, texts []string) (domain.BatchEmbeddingResult, error) {
			return vectorsFor(texts, 4), nil
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 10, Dimensions: 3, Retry: noSleepPolicy(1)})

	_, err := b.BatchEmbed(context.Background(), []string{"a"})
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Errorf("got %v, want ErrVectorDimMismatch", err)
	}
}

func TestBatchEmbed_ShortResponse(t *testing.T) {
	inner := &mockEmbedder{
		respond: func(_ int, texts []string) (domain.BatchEmbeddingResult, error) {
			return vectorsFor(texts[:len(texts)-1], 2), nil
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 10, Dimensions: 2, Retry: noSleepPolicy(1)})

	_, err := b.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("short response accepted")
	}
	var batchErr *domain.EmbedBatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("got %T, want *domain.EmbedBatchError", err)
	}
	if !errors.Is(batchErr.Err, domain.ErrEmbeddingProviderError) {
		t.Errorf("cause = %v, want ErrEmbeddingProviderError", batchErr.Err)
	}
}

func TestBatchEmbed_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := &mockEmbedder{
		respond: func(_ int, _ []string) (domain.BatchEmbeddingResult, error) {
			cancel()
			return domain.BatchEmbeddingResult{}, context.Canceled
		},
	}
	b := newTestBatcher(inner, Config{MaxBatchSize: 1, Retry: noSleepPolicy(1)})

	_, err := b.BatchEmbed(ctx, []string{"a", "b", "c"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if len(inner.calls) > 1 {
		t.Errorf("made %d API calls after cancellation, want 1", len(inner.calls))
	}
}
