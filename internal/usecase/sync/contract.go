package sync

import (
	"context"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/buildstate"
	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/search"
	"github.com/notedex/notedex/internal/domain/source"
)

// Source supplies notebook content. The retrieval client behind it is
// out of scope here; the service only consumes pages and entries.
type Source interface {
	ListPages(ctx context.Context, notebookID string) ([]source.Page, error)
	PageEntries(ctx context.Context, pageID string) ([]source.Entry, error)
}

// VectorIndex is the consumer view of the remote vector backend.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []chunk.Embedded) error
	DeleteByPage(ctx context.Context, pageID string) error
	Stats(ctx context.Context) (search.IndexStats, error)
}

// ChunkStore is the consumer view of local columnar persistence.
type ChunkStore interface {
	Save(ctx context.Context, unitID string, chunks []chunk.Embedded) error
	Load(ctx context.Context, unitID string) ([]chunk.Embedded, error)
	ListUnits(ctx context.Context) ([]string, error)
	CountChunks(ctx context.Context, unitID string) (int, error)
}

// RecordStore persists the build record between runs.
type RecordStore interface {
	Load(ctx context.Context) (buildstate.Record, error)
	Save(ctx context.Context, r buildstate.Record) error
}

// Embedder is the batching embedder used during indexing.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
