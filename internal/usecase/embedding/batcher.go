// Package embedding provides the batching, retrying decorator around a
// raw embedding transport. Callers hand it an arbitrary number of texts
// and get back vectors in input order or a positional error.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/metrics"
	"github.com/notedex/notedex/internal/retry"
)

// DefaultMaxBatchSize bounds one API request.
const DefaultMaxBatchSize = 256

// Config tunes the decorator.
type Config struct {
	MaxBatchSize int
	Dimensions   int
	CallTimeout  time.Duration
	Retry        retry.Policy
}

// Batcher splits oversized inputs into sub-batches, retries transient
// sub-batch failures, and validates returned dimensions. A sub-batch
// failure after retries surfaces as a positional error so callers know
// exactly which texts have no vector.
type Batcher struct {
	inner    domain.BatchEmbedder
	cfg      Config
	provider string
	model    string
	logger   *zap.Logger
}

// NewBatcher wraps a transport-level batch embedder.
func NewBatcher(
	inner domain.BatchEmbedder, cfg Config,
	provider, model string, logger *zap.Logger,
) *Batcher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Batcher{
		inner:    inner,
		cfg:      cfg,
		provider: provider,
		model:    model,
		logger:   logger,
	}
}

// BatchEmbed implements domain.BatchEmbedder over any input size.
func (b *Batcher) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	embeddings := make([][]float32, len(texts))
	var totalPrompt, totalTokens int
	var failed []int
	var lastErr error

	for offset := 0; offset < len(texts); offset += b.cfg.MaxBatchSize {
		end := offset + b.cfg.MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[offset:end]

		res, err := b.embedSub(ctx, sub)
		if err != nil {
			if ctx.Err() != nil {
				return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", ctx.Err())
			}
			b.logger.Error("sub-batch embedding failed",
				zap.String("provider", b.provider),
				zap.String("model", b.model),
				zap.Int("offset", offset),
				zap.Int("size", len(sub)),
				zap.Error(err),
			)
			for i := offset; i < end; i++ {
				failed = append(failed, i)
			}
			lastErr = err
			continue
		}

		for i, vec := range res.Embeddings {
			embeddings[offset+i] = vec
		}
		totalPrompt += res.PromptTokens
		totalTokens += res.TotalTokens
	}

	if len(failed) > 0 {
		return domain.BatchEmbeddingResult{}, &domain.EmbedBatchError{
			Positions: failed,
			Err:       lastErr,
		}
	}

	metrics.EmbeddingBatchSize.WithLabelValues(b.provider, b.model).Observe(float64(len(texts)))

	b.logger.Debug("batch embedding completed",
		zap.String("provider", b.provider),
		zap.String("model", b.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", totalPrompt),
		zap.Int("total_tokens", totalTokens),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

// embedSub runs one sub-batch under the retry policy and a per-call
// timeout, then validates the response shape.
func (b *Batcher) embedSub(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	var res domain.BatchEmbeddingResult

	err := b.cfg.Retry.Do(ctx, "embed_batch", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
		defer cancel()

		r, err := b.inner.BatchEmbed(callCtx, texts)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	if len(res.Embeddings) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"got %d embeddings for %d texts: %w",
			len(res.Embeddings), len(texts), domain.ErrEmbeddingProviderError)
	}
	if b.cfg.Dimensions > 0 {
		for i, vec := range res.Embeddings {
			if len(vec) != b.cfg.Dimensions {
				return domain.BatchEmbeddingResult{}, fmt.Errorf(
					"embedding %d has %d dimensions, want %d: %w",
					i, len(vec), b.cfg.Dimensions, domain.ErrVectorDimMismatch)
			}
		}
	}
	return res, nil
}
