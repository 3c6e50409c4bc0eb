package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/db"
	"github.com/notedex/notedex/internal/domain/chunk"
)

// mockStore implements the store consumer interface with overridable
// functions. Unset functions succeed with zero values, so tests only
// wire what they assert on.
type mockStore struct {
	pingFunc        func(ctx context.Context) error
	hsetMultiFunc   func(ctx context.Context, items []db.HashSetItem) error
	delFunc         func(ctx context.Context, keys ...string) error
	scanFunc        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFunc func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFunc func(ctx context.Context, name string) (bool, error)
	searchKNNFunc   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchCountFunc func(ctx context.Context, index, query string) (int, error)
}

func (m *mockStore) Ping(ctx context.Context) error {
	if m.pingFunc != nil {
		return m.pingFunc(ctx)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFunc != nil {
		return m.hsetMultiFunc(ctx, items)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFunc != nil {
		return m.delFunc(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFunc != nil {
		return m.scanFunc(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFunc != nil {
		return m.createIndexFunc(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFunc != nil {
		return m.indexExistsFunc(ctx, name)
	}
	return true, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFunc != nil {
		return m.searchKNNFunc(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, index, query string) (int, error) {
	if m.searchCountFunc != nil {
		return m.searchCountFunc(ctx, index, query)
	}
	return 0, nil
}

func testConfig() Config {
	return Config{
		KeyPrefix:    "notedex:",
		Namespace:    "nb1",
		Dimensions:   3,
		EmbedVersion: "v1",
		HNSWM:        16,
		HNSWEFConst:  200,
	}
}

func newTestIndex(t *testing.T, s *mockStore) *Index {
	t.Helper()
	idx, err := New(context.Background(), s, testConfig(), zap.NewNop())
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx
}

func testEmbedded(t *testing.T, id, pageID string, vector []float32) chunk.Embedded {
	t.Helper()
	meta, err := chunk.NewMetadata(
		"nb1", "Lab Notes", pageID, "Page "+pageID, "e1", "text",
		"alice", time.Unix(1700000000, 0).UTC(), "",
		[]string{"go"}, "https://notes.local/"+pageID, "v1",
	)
	if err != nil {
		t.Fatalf("new metadata: %v", err)
	}
	e, err := chunk.NewEmbedded(id, "chunk text", vector, meta)
	if err != nil {
		t.Fatalf("new embedded: %v", err)
	}
	return e
}
