// Package search holds the query and result envelopes for index search.
package search

import (
	"fmt"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/chunk"
)

// MaxLimit bounds the number of results one query may request.
const MaxLimit = 100

// Filter restricts search to matching metadata. Zero values mean "any".
type Filter struct {
	NotebookID string
	Author     string
	EntryType  string
	Tag        string
}

// IsEmpty reports whether no restriction is set.
func (f Filter) IsEmpty() bool {
	return f.NotebookID == "" && f.Author == "" && f.EntryType == "" && f.Tag == ""
}

// Query is one search request. Either Text or Vector must be set;
// Vector takes precedence when both are present.
type Query struct {
	text   string
	vector []float32
	limit  int
	filter Filter
}

// NewQuery validates and creates a search query.
func NewQuery(text string, vector []float32, limit int, filter Filter) (Query, error) {
	if text == "" && len(vector) == 0 {
		return Query{}, fmt.Errorf("query text or vector is required: %w", domain.ErrValidation)
	}
	if limit <= 0 {
		return Query{}, fmt.Errorf("limit must be positive: %w", domain.ErrValidation)
	}
	if limit > MaxLimit {
		return Query{}, fmt.Errorf("limit %d exceeds %d: %w", limit, MaxLimit, domain.ErrValidation)
	}
	if filter.EntryType != "" {
		if _, err := chunk.ParseEntryType(filter.EntryType); err != nil {
			return Query{}, err
		}
	}
	return Query{text: text, vector: vector, limit: limit, filter: filter}, nil
}

// Text returns the query text (empty when a vector was supplied).
func (q *Query) Text() string { return q.text }

// Vector returns the query vector, if supplied directly.
func (q *Query) Vector() []float32 { return q.vector }

// Limit returns the requested result count.
func (q *Query) Limit() int { return q.limit }

// Filter returns the metadata restriction.
func (q *Query) Filter() Filter { return q.filter }

// Result is one ranked hit. Hits are deduplicated at the page level
// before they reach the caller.
type Result struct {
	ID      string
	Score   float64
	Excerpt string
	Meta    chunk.Metadata
}

// IndexStats describes the current state of a vector index namespace.
type IndexStats struct {
	TotalVectors int
	Dimensions   int
	EmbedVersion string
	Namespace    string
}
