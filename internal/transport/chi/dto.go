package chi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/notedex/notedex/internal/domain/search"
	syncdom "github.com/notedex/notedex/internal/domain/sync"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type syncRequest struct {
	Force       bool     `json:"force,omitempty"`
	DryRun      bool     `json:"dry_run,omitempty"`
	MaxAgeHours float64  `json:"max_age_hours,omitempty"`
	Pages       []string `json:"pages,omitempty"`
}

type syncResponse struct {
	RunID      string   `json:"run_id"`
	Decision   string   `json:"decision"`
	Units      []string `json:"units,omitempty"`
	Executed   bool     `json:"executed"`
	Processed  int      `json:"processed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	DurationMs int64    `json:"duration_ms"`
}

type searchRequest struct {
	Query  string    `json:"query,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Filter struct {
		NotebookID string `json:"notebook_id,omitempty"`
		Author     string `json:"author,omitempty"`
		EntryType  string `json:"entry_type,omitempty"`
		Tag        string `json:"tag,omitempty"`
	} `json:"filter"`
}

type searchHit struct {
	ID        string    `json:"id"`
	Score     float64   `json:"score"`
	Excerpt   string    `json:"excerpt"`
	PageID    string    `json:"page_id"`
	PageTitle string    `json:"page_title,omitempty"`
	EntryID   string    `json:"entry_id"`
	EntryType string    `json:"entry_type"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []string  `json:"tags,omitempty"`
	URL       string    `json:"url,omitempty"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Total   int         `json:"total"`
}

type statsResponse struct {
	TotalVectors int    `json:"total_vectors"`
	Dimensions   int    `json:"dimensions"`
	EmbedVersion string `json:"embed_version"`
	Namespace    string `json:"namespace"`
}

func toSyncResponse(r syncdom.Report) syncResponse {
	return syncResponse{
		RunID:      r.RunID,
		Decision:   string(r.Decision),
		Units:      r.Units,
		Executed:   r.Executed,
		Processed:  r.Processed,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		DurationMs: r.Duration.Milliseconds(),
	}
}

func toSearchHits(results []search.Result) []searchHit {
	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{
			ID:        r.ID,
			Score:     r.Score,
			Excerpt:   r.Excerpt,
			PageID:    r.Meta.PageID(),
			PageTitle: r.Meta.PageTitle(),
			EntryID:   r.Meta.EntryID(),
			EntryType: string(r.Meta.EntryType()),
			Author:    r.Meta.Author(),
			CreatedAt: r.Meta.CreatedAt(),
			Tags:      r.Meta.Tags(),
			URL:       r.Meta.URL(),
		}
	}
	return hits
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
