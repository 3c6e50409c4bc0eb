// Package redis adapts the db.Store facade to the vector index contract.
// All operations are scoped to one namespace so multiple logical indices
// can share a single Redis instance without cross-contamination.
package redis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/db"
	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/search"
)

// store is the consumer interface over db.Store (ISP).
type store interface {
	Ping(ctx context.Context) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Config holds index parameters for one namespace.
type Config struct {
	KeyPrefix    string // e.g. "notedex:"
	Namespace    string
	Dimensions   int
	EmbedVersion string
	HNSWM        int
	HNSWEFConst  int
}

// Index is the Redis-backed vector index for one namespace.
type Index struct {
	store  store
	cfg    Config
	logger *zap.Logger
}

// New creates the index adapter and ensures the FT index exists.
func New(ctx context.Context, s store, cfg Config, logger *zap.Logger) (*Index, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required: %w", domain.ErrValidation)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive: %w", domain.ErrValidation)
	}
	idx := &Index{store: s, cfg: cfg, logger: logger}
	if err := idx.ensureIndex(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureIndex(ctx context.Context) error {
	name := i.indexName()
	exists, err := i.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("probe index %s: %w: %w", name, domain.ErrBackendUnavailable, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     name,
		Prefixes: []string{i.chunkKeyPrefix()},
		Fields: []db.IndexField{
			{Name: "vector", Type: db.IndexFieldVector,
				VectorAlgo: db.VectorHNSW, VectorDim: i.cfg.Dimensions,
				VectorDistance: db.DistanceCosine,
				VectorM:        i.cfg.HNSWM, VectorEFConstruct: i.cfg.HNSWEFConst},
			{Name: "notebook_id", Type: db.IndexFieldTag},
			{Name: "page_id", Type: db.IndexFieldTag},
			{Name: "entry_type", Type: db.IndexFieldTag},
			{Name: "author", Type: db.IndexFieldTag},
			{Name: "tags", Type: db.IndexFieldTag, TagSeparator: ","},
			{Name: "created_at", Type: db.IndexFieldNumeric},
		},
	}

	if err := i.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w: %w", name, domain.ErrBackendUnavailable, err)
	}

	i.logger.Info("Created vector index",
		zap.String("index", name),
		zap.Int("dimensions", i.cfg.Dimensions),
	)
	return nil
}

// Upsert stores a batch of embedded chunks. Last writer wins per id.
// An empty batch is a validation error, never a silent no-op.
func (i *Index) Upsert(ctx context.Context, chunks []chunk.Embedded) error {
	if len(chunks) == 0 {
		return fmt.Errorf("upsert: %w", domain.ErrEmptyBatch)
	}

	items := make([]db.HashSetItem, len(chunks))
	for n := range chunks {
		c := &chunks[n]
		if len(c.Vector()) != i.cfg.Dimensions {
			return fmt.Errorf("chunk %s: got %d dimensions, want %d: %w",
				c.ID(), len(c.Vector()), i.cfg.Dimensions, domain.ErrVectorDimMismatch)
		}
		meta := c.Meta()
		items[n] = db.HashSetItem{
			Key:    i.chunkKey(meta.PageID(), c.ID()),
			Fields: buildHashFields(c),
		}
	}

	if err := i.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d chunks: %w: %w", len(chunks), domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Search runs a KNN query and returns chunk-level hits. Page-level
// deduplication is the caller's concern; k is the raw candidate count.
func (i *Index) Search(
	ctx context.Context, vector []float32, k int, filter search.Filter,
) ([]search.Result, error) {
	if len(vector) != i.cfg.Dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d: %w",
			len(vector), i.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}

	res, err := i.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: i.indexName(),
		Filter:    buildFilter(filter),
		Vector:    vector,
		K:         k,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w: %w", domain.ErrBackendUnavailable, err)
	}

	results := make([]search.Result, 0, len(res.Entries))
	for _, entry := range res.Entries {
		results = append(results, parseSearchEntry(entry))
	}
	return results, nil
}

// Delete removes chunks by id.
func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("delete: %w", domain.ErrEmptyBatch)
	}

	// Keys embed the page id; resolve them by scan per id suffix.
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		matched, err := i.store.Scan(ctx, i.chunkKeyPrefix()+"*:"+id)
		if err != nil {
			return fmt.Errorf("scan for %s: %w: %w", id, domain.ErrBackendUnavailable, err)
		}
		keys = append(keys, matched...)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := i.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete %d chunks: %w: %w", len(keys), domain.ErrBackendUnavailable, err)
	}
	return nil
}

// DeleteByPage removes every chunk belonging to one page.
func (i *Index) DeleteByPage(ctx context.Context, pageID string) error {
	if pageID == "" {
		return fmt.Errorf("page id is required: %w", domain.ErrValidation)
	}

	keys, err := i.store.Scan(ctx, i.chunkKey(pageID, "*"))
	if err != nil {
		return fmt.Errorf("scan page %s: %w: %w", pageID, domain.ErrBackendUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := i.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete page %s: %w: %w", pageID, domain.ErrBackendUnavailable, err)
	}
	return nil
}

// Stats reports the current index state for this namespace.
func (i *Index) Stats(ctx context.Context) (search.IndexStats, error) {
	total, err := i.store.SearchCount(ctx, i.indexName(), "*")
	if err != nil {
		return search.IndexStats{}, fmt.Errorf("count: %w: %w", domain.ErrBackendUnavailable, err)
	}
	return search.IndexStats{
		TotalVectors: total,
		Dimensions:   i.cfg.Dimensions,
		EmbedVersion: i.cfg.EmbedVersion,
		Namespace:    i.cfg.Namespace,
	}, nil
}

// HealthCheck verifies backend connectivity.
func (i *Index) HealthCheck(ctx context.Context) error {
	if err := i.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w: %w", domain.ErrBackendUnavailable, err)
	}
	return nil
}

func (i *Index) indexName() string {
	return i.cfg.KeyPrefix + "idx:" + i.cfg.Namespace
}

func (i *Index) chunkKeyPrefix() string {
	return i.cfg.KeyPrefix + i.cfg.Namespace + ":chunk:"
}

func (i *Index) chunkKey(pageID, id string) string {
	return i.chunkKeyPrefix() + pageID + ":" + id
}
