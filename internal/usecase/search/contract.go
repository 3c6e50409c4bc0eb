package search

import (
	"context"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/search"
)

// VectorIndex is the consumer view of the vector backend for querying.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, k int, filter search.Filter) ([]search.Result, error)
	Stats(ctx context.Context) (search.IndexStats, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
