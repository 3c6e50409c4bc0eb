package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/chunker"
	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/buildstate"
	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/search"
	"github.com/notedex/notedex/internal/domain/source"
)

// mockSource serves a fixed set of pages and entries.
type mockSource struct {
	pages   []source.Page
	entries map[string][]source.Entry

	listErr error
}

func (m *mockSource) ListPages(_ context.Context, _ string) ([]source.Page, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.pages, nil
}

func (m *mockSource) PageEntries(_ context.Context, pageID string) ([]source.Entry, error) {
	return m.entries[pageID], nil
}

// mockIndex counts index mutations.
type mockIndex struct {
	mu          sync.Mutex
	upserts     int
	upserted    []chunk.Embedded
	pageDeletes []string

	upsertErr error
	deleteErr error
}

func (m *mockIndex) Upsert(_ context.Context, chunks []chunk.Embedded) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserts++
	m.upserted = append(m.upserted, chunks...)
	return nil
}

func (m *mockIndex) DeleteByPage(_ context.Context, pageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.pageDeletes = append(m.pageDeletes, pageID)
	return nil
}

func (m *mockIndex) Stats(_ context.Context) (search.IndexStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return search.IndexStats{TotalVectors: len(m.upserted)}, nil
}

// mockChunkStore keeps chunks in memory per unit.
type mockChunkStore struct {
	mu    sync.Mutex
	units map[string][]chunk.Embedded
	saves int

	saveErr error
}

func newMockChunkStore() *mockChunkStore {
	return &mockChunkStore{units: map[string][]chunk.Embedded{}}
}

func (m *mockChunkStore) Save(_ context.Context, unitID string, chunks []chunk.Embedded) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	if len(chunks) == 0 {
		delete(m.units, unitID)
		return nil
	}
	m.units[unitID] = chunks
	return nil
}

func (m *mockChunkStore) Load(_ context.Context, unitID string) ([]chunk.Embedded, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks, ok := m.units[unitID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return chunks, nil
}

func (m *mockChunkStore) ListUnits(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	units := make([]string, 0, len(m.units))
	for id := range m.units {
		units = append(units, id)
	}
	return units, nil
}

func (m *mockChunkStore) CountChunks(_ context.Context, unitID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units[unitID]), nil
}

// mockRecordStore keeps the record in memory.
type mockRecordStore struct {
	mu     sync.Mutex
	record buildstate.Record
	loaded bool
	saves  int
}

func (m *mockRecordStore) Load(_ context.Context) (buildstate.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return buildstate.Record{}, domain.ErrNotFound
	}
	return m.record, nil
}

func (m *mockRecordStore) Save(_ context.Context, r buildstate.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = r
	m.loaded = true
	m.saves++
	return nil
}

// mockEmbedder returns constant unit vectors.
type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int

	err error
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	m.calls++
	m.texts += len(texts)
	embeddings := make([][]float32, len(texts))
	for i := range embeddings {
		embeddings[i] = []float32{1, 0, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: embeddings, TotalTokens: len(texts) * 7}, nil
}

type fixture struct {
	src     *mockSource
	index   *mockIndex
	chunks  *mockChunkStore
	records *mockRecordStore
	emb     *mockEmbedder
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		src: &mockSource{
			pages: []source.Page{
				{ID: "p1", Title: "First", NotebookID: "nb1", NotebookName: "Notes", UpdatedAt: time.Unix(1000, 0)},
				{ID: "p2", Title: "Second", NotebookID: "nb1", NotebookName: "Notes", UpdatedAt: time.Unix(2000, 0)},
			},
			entries: map[string][]source.Entry{
				"p1": {
					{ID: "e1", Type: "text", Text: "alpha beta gamma", CreatedAt: time.Unix(900, 0)},
					{ID: "e2", Type: "heading", Text: "Overview", CreatedAt: time.Unix(901, 0)},
				},
				"p2": {
					{ID: "e3", Type: "text", Text: "delta epsilon", CreatedAt: time.Unix(1900, 0)},
				},
			},
		},
		index:   &mockIndex{},
		chunks:  newMockChunkStore(),
		records: &mockRecordStore{},
		emb:     &mockEmbedder{},
	}

	svc, err := New(f.src, f.index, f.chunks, f.records, f.emb, Config{
		NotebookID:   "nb1",
		NotebookName: "Notes",
		EmbedVersion: "v1",
		Chunking:     chunker.Config{SizeTokens: 400, OverlapTokens: 50},
		Parallelism:  2,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) currentFingerprints(t *testing.T) map[string]string {
	t.Helper()
	fps := map[string]string{}
	for _, p := range f.src.pages {
		fps[p.ID] = fingerprintPage(f.src.entries[p.ID])
	}
	return fps
}
