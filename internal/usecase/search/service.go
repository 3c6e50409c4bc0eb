// Package search implements query-time retrieval: embed the query when
// needed, oversample the backend at chunk level, then collapse hits to
// at most one result per page.
package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/search"
	"github.com/notedex/notedex/internal/metrics"
)

// Oversampling bounds. Fetching more chunks than requested results is
// what makes page-level dedup work: several top chunks often share a
// page, and without headroom the final list comes up short.
const (
	oversampleFactor = 4
	oversampleFloor  = 20
)

// Service answers semantic queries against the vector index.
type Service struct {
	index    VectorIndex
	embedder Embedder
	logger   *zap.Logger
}

// New creates the search service.
func New(index VectorIndex, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{index: index, embedder: embedder, logger: logger}
}

// Search runs one query and returns page-deduplicated results, best
// score first, at most Limit entries.
func (s *Service) Search(ctx context.Context, q search.Query) ([]search.Result, error) {
	start := time.Now()

	vector := q.Vector()
	if len(vector) == 0 {
		res, err := s.embedder.BatchEmbed(ctx, []string{q.Text()})
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		if len(res.Embeddings) != 1 {
			return nil, fmt.Errorf("got %d query embeddings: %w",
				len(res.Embeddings), domain.ErrEmbeddingProviderError)
		}
		vector = res.Embeddings[0]
	}

	k := q.Limit() * oversampleFactor
	if k < oversampleFloor {
		k = oversampleFloor
	}

	hits, err := s.index.Search(ctx, vector, k, q.Filter())
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := dedupByPage(hits)
	if len(results) > q.Limit() {
		results = results[:q.Limit()]
	}

	metrics.SearchRequestsTotal.WithLabelValues("success").Inc()
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug("search completed",
		zap.Int("limit", q.Limit()),
		zap.Int("oversampled_k", k),
		zap.Int("chunk_hits", len(hits)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// Stats returns the index statistics for the active namespace.
func (s *Service) Stats(ctx context.Context) (search.IndexStats, error) {
	stats, err := s.index.Stats(ctx)
	if err != nil {
		return search.IndexStats{}, fmt.Errorf("index stats: %w", err)
	}
	return stats, nil
}
