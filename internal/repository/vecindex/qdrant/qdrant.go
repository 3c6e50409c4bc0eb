// Package qdrant adapts the Qdrant REST API to the vector index
// contract. Swapping backends changes only this adapter; callers depend
// on the interface alone.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/search"
)

// Config holds connection and collection parameters.
type Config struct {
	URL          string
	APIKey       string
	Namespace    string // one Qdrant collection per namespace
	Dimensions   int
	EmbedVersion string
	Timeout      time.Duration
}

// Index is the Qdrant-backed vector index for one namespace.
type Index struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates the adapter and ensures the collection exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required: %w", domain.ErrValidation)
	}
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required: %w", domain.ErrValidation)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive: %w", domain.ErrValidation)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	idx := &Index{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (i *Index) ensureCollection(ctx context.Context) error {
	// PUT returns 200 when the collection already exists with the same schema.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     i.cfg.Dimensions,
			"distance": "Cosine",
		},
	}
	if err := i.call(ctx, http.MethodPut, i.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return nil
}

// Upsert stores a batch of embedded chunks. Upsert is idempotent by id.
func (i *Index) Upsert(ctx context.Context, chunks []chunk.Embedded) error {
	if len(chunks) == 0 {
		return fmt.Errorf("upsert: %w", domain.ErrEmptyBatch)
	}

	points := make([]map[string]any, len(chunks))
	for n := range chunks {
		c := &chunks[n]
		if len(c.Vector()) != i.cfg.Dimensions {
			return fmt.Errorf("chunk %s: got %d dimensions, want %d: %w",
				c.ID(), len(c.Vector()), i.cfg.Dimensions, domain.ErrVectorDimMismatch)
		}
		points[n] = map[string]any{
			"id":      pointID(c.ID()),
			"vector":  c.Vector(),
			"payload": buildPayload(c),
		}
	}

	body := map[string]any{"points": points}
	if err := i.call(ctx, http.MethodPut, i.collectionPath("/points?wait=true"), body, nil); err != nil {
		return fmt.Errorf("upsert %d chunks: %w", len(chunks), err)
	}
	return nil
}

// Search runs a KNN query and returns chunk-level hits.
func (i *Index) Search(
	ctx context.Context, vector []float32, k int, filter search.Filter,
) ([]search.Result, error) {
	if len(vector) != i.cfg.Dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d: %w",
			len(vector), i.cfg.Dimensions, domain.ErrVectorDimMismatch)
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if f := buildFilterClause(filter); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := i.call(ctx, http.MethodPost, i.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]search.Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, parsePayload(r.Score, r.Payload))
	}
	return results, nil
}

// Delete removes chunks by id.
func (i *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("delete: %w", domain.ErrEmptyBatch)
	}
	points := make([]string, len(ids))
	for n, id := range ids {
		points[n] = pointID(id)
	}
	body := map[string]any{"points": points}
	if err := i.call(ctx, http.MethodPost, i.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete %d chunks: %w", len(ids), err)
	}
	return nil
}

// DeleteByPage removes every chunk belonging to one page.
func (i *Index) DeleteByPage(ctx context.Context, pageID string) error {
	if pageID == "" {
		return fmt.Errorf("page id is required: %w", domain.ErrValidation)
	}
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "page_id", "match": map[string]any{"value": pageID}},
			},
		},
	}
	if err := i.call(ctx, http.MethodPost, i.collectionPath("/points/delete?wait=true"), body, nil); err != nil {
		return fmt.Errorf("delete page %s: %w", pageID, err)
	}
	return nil
}

// Stats reports the current collection state.
func (i *Index) Stats(ctx context.Context) (search.IndexStats, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	if err := i.call(ctx, http.MethodGet, i.collectionPath(""), nil, &resp); err != nil {
		return search.IndexStats{}, fmt.Errorf("collection info: %w", err)
	}
	return search.IndexStats{
		TotalVectors: resp.Result.PointsCount,
		Dimensions:   i.cfg.Dimensions,
		EmbedVersion: i.cfg.EmbedVersion,
		Namespace:    i.cfg.Namespace,
	}, nil
}

// HealthCheck verifies backend connectivity.
func (i *Index) HealthCheck(ctx context.Context) error {
	if err := i.call(ctx, http.MethodGet, "/collections", nil, nil); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

func (i *Index) collectionPath(suffix string) string {
	return "/collections/" + i.cfg.Namespace + suffix
}

// call issues one JSON request. Transport failures and 429/5xx statuses
// map to the transient error class for the shared retry policy.
func (i *Index) call(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.cfg.URL+path, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.cfg.APIKey != "" {
		req.Header.Set("api-key", i.cfg.APIKey)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%s %s: status 429: %w", method, path, domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrBackendUnavailable)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, domain.ErrValidation)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// pointID derives a Qdrant-compatible point id. Qdrant requires UUIDs or
// unsigned integers, so the structured chunk id is hashed to a uint64.
func pointID(id string) string {
	var h uint64 = 14695981039346656037 // FNV-1a 64
	for n := 0; n < len(id); n++ {
		h ^= uint64(id[n])
		h *= 1099511628211
	}
	return strconv.FormatUint(h, 10)
}

func buildPayload(c *chunk.Embedded) map[string]any {
	m := c.Meta()
	payload := map[string]any{
		"id":            c.ID(),
		"text":          c.Text(),
		"notebook_id":   m.NotebookID(),
		"notebook_name": m.NotebookName(),
		"page_id":       m.PageID(),
		"page_title":    m.PageTitle(),
		"entry_id":      m.EntryID(),
		"entry_type":    string(m.EntryType()),
		"author":        m.Author(),
		"created_at":    m.CreatedAt().Unix(),
		"url":           m.URL(),
		"embed_version": m.EmbedVersion(),
	}
	if m.Folder() != "" {
		payload["folder"] = m.Folder()
	}
	if len(m.Tags()) > 0 {
		payload["tags"] = m.Tags()
	}
	return payload
}

func buildFilterClause(f search.Filter) map[string]any {
	if f.IsEmpty() {
		return nil
	}
	var must []map[string]any
	add := func(key, value string) {
		must = append(must, map[string]any{
			"key": key, "match": map[string]any{"value": value},
		})
	}
	if f.NotebookID != "" {
		add("notebook_id", f.NotebookID)
	}
	if f.Author != "" {
		add("author", f.Author)
	}
	if f.EntryType != "" {
		add("entry_type", f.EntryType)
	}
	if f.Tag != "" {
		add("tags", f.Tag)
	}
	return map[string]any{"must": must}
}

func parsePayload(score float64, payload map[string]any) search.Result {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}

	var createdAt time.Time
	if ts, ok := payload["created_at"].(float64); ok {
		createdAt = time.Unix(int64(ts), 0).UTC()
	}

	var tags []string
	if raw, ok := payload["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
	}

	meta := chunk.ReconstructMetadata(
		str("notebook_id"), str("notebook_name"), str("page_id"), str("page_title"),
		str("entry_id"), chunk.EntryType(str("entry_type")), str("author"), createdAt,
		str("folder"), tags, str("url"), str("embed_version"),
	)

	return search.Result{
		ID:      str("id"),
		Score:   score,
		Excerpt: strings.TrimSpace(str("text")),
		Meta:    meta,
	}
}
