package search

import (
	"testing"
	"time"

	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/search"
)

func hit(t *testing.T, id, pageID string, score float64) search.Result {
	t.Helper()
	meta := chunk.ReconstructMetadata(
		"nb1", "Lab Notes", pageID, "Page "+pageID, "e1",
		chunk.EntryText, "alice", time.Unix(1700000000, 0),
		"research", nil, "", "v1",
	)
	return search.Result{ID: id, Score: score, Excerpt: "text", Meta: meta}
}

func TestDedupByPage_KeepsBestChunkPerPage(t *testing.T) {
	hits := []search.Result{
		hit(t, "c1", "p1", 0.91),
		hit(t, "c2", "p2", 0.88),
		hit(t, "c3", "p1", 0.85),
		hit(t, "c4", "p2", 0.95),
		hit(t, "c5", "p3", 0.40),
	}

	out := dedupByPage(hits)

	if len(out) != 3 {
		t.Fatalf("got %d results, want 3", len(out))
	}
	wantIDs := []string{"c4", "c1", "c5"}
	for i, want := range wantIDs {
		if out[i].ID != want {
			t.Errorf("result[%d] = %s, want %s", i, out[i].ID, want)
		}
	}
}

func TestDedupByPage_TieBreaksTowardEarlierHit(t *testing.T) {
	hits := []search.Result{
		hit(t, "c1", "p1", 0.80),
		hit(t, "c2", "p1", 0.80),
	}

	out := dedupByPage(hits)

	if len(out) != 1 {
		t.Fatalf("got %d results, want 1", len(out))
	}
	if out[0].ID != "c1" {
		t.Errorf("tie kept %s, want c1", out[0].ID)
	}
}

func TestDedupByPage_Empty(t *testing.T) {
	if out := dedupByPage(nil); len(out) != 0 {
		t.Errorf("got %d results for empty input, want 0", len(out))
	}
}

func TestDedupByPage_PreservesScoreOrder(t *testing.T) {
	hits := []search.Result{
		hit(t, "c1", "p1", 0.10),
		hit(t, "c2", "p2", 0.90),
		hit(t, "c3", "p3", 0.50),
	}

	out := dedupByPage(hits)

	for i := 1; i < len(out); i++ {
		if out[i].Score > out[i-1].Score {
			t.Errorf("results out of order at %d: %f > %f", i, out[i].Score, out[i-1].Score)
		}
	}
}
