package search

import (
	"sort"

	"github.com/notedex/notedex/internal/domain/search"
)

// dedupByPage keeps the best-scoring chunk per page, preserving score
// order among the survivors. Ties break toward the earlier hit, which
// is already the backend's preferred ordering.
func dedupByPage(hits []search.Result) []search.Result {
	best := make(map[string]int, len(hits)) // page id -> index into out
	out := make([]search.Result, 0, len(hits))

	for _, h := range hits {
		pageID := h.Meta.PageID()
		if i, ok := best[pageID]; ok {
			if h.Score > out[i].Score {
				out[i] = h
			}
			continue
		}
		best[pageID] = len(out)
		out = append(out, h)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
