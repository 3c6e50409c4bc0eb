package chunk

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/notedex/notedex/internal/domain"
)

func testMeta(t *testing.T) Metadata {
	t.Helper()
	m, err := NewMetadata(
		"nb1", "Notebook", "p1", "Page One", "e1", "text",
		"ada", time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC),
		"research", []string{"go", "vectors"}, "https://example.com/p1", "v1",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestID_Format(t *testing.T) {
	got := ID("nb1", "p1", "e1", 3)
	if got != "nb1_p1_e1_3" {
		t.Errorf("unexpected id: %q", got)
	}
	if err := ValidateID(got); err != nil {
		t.Errorf("built id should validate: %v", err)
	}
}

func TestValidateID(t *testing.T) {
	cases := []struct {
		id      string
		wantErr bool
	}{
		{"nb_p_e_0", false},
		{"nb_p_sub_e_12", false}, // extra segments are fine
		{"nb_p_e", true},
		{"nb__e_0", true},
		{"_p_e_0", true},
		{"", true},
	}
	for _, tc := range cases {
		err := ValidateID(tc.id)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateID(%q) = %v, wantErr %v", tc.id, err, tc.wantErr)
		}
		if err != nil && !errors.Is(err, domain.ErrInvalidChunkID) {
			t.Errorf("ValidateID(%q) should wrap ErrInvalidChunkID, got %v", tc.id, err)
		}
	}
}

func TestNewEmbedded_Valid(t *testing.T) {
	meta := testMeta(t)
	e, err := NewEmbedded("nb1_p1_e1_0", "hello", []float32{0.1, 0.2}, meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID() != "nb1_p1_e1_0" || e.Text() != "hello" {
		t.Errorf("unexpected fields: %q %q", e.ID(), e.Text())
	}
	m := e.Meta()
	if m.PageID() != "p1" {
		t.Errorf("unexpected page id: %q", m.PageID())
	}
}

func TestNewEmbedded_Rejections(t *testing.T) {
	meta := testMeta(t)
	vec := []float32{0.1, 0.2}

	cases := []struct {
		name     string
		id       string
		text     string
		vector   []float32
		sentinel error
	}{
		{"bad id", "nb1_p1", "hello", vec, domain.ErrInvalidChunkID},
		{"empty text", "nb1_p1_e1_0", "", vec, domain.ErrValidation},
		{"oversized text", "nb1_p1_e1_0", strings.Repeat("x", MaxTextSize+1), vec, domain.ErrValidation},
		{"empty vector", "nb1_p1_e1_0", "hello", nil, domain.ErrValidation},
		{"oversized vector", "nb1_p1_e1_0", "hello", make([]float32, MaxVectorDim+1), domain.ErrValidation},
		{"nan coordinate", "nb1_p1_e1_0", "hello", []float32{0.1, float32(math.NaN())}, domain.ErrNonFiniteVector},
		{"inf coordinate", "nb1_p1_e1_0", "hello", []float32{float32(math.Inf(1))}, domain.ErrNonFiniteVector},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewEmbedded(tc.id, tc.text, tc.vector, meta)
			if !errors.Is(err, tc.sentinel) {
				t.Errorf("expected %v, got %v", tc.sentinel, err)
			}
		})
	}
}

func TestNewMetadata_Rejections(t *testing.T) {
	now := time.Now()

	if _, err := NewMetadata("", "", "p1", "", "e1", "text", "", now, "", nil, "", "v1"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for missing notebook id, got %v", err)
	}
	if _, err := NewMetadata("nb1", "", "", "", "e1", "text", "", now, "", nil, "", "v1"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for missing page id, got %v", err)
	}
	if _, err := NewMetadata("nb1", "", "p1", "", "e1", "sticker", "", now, "", nil, "", "v1"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for unknown entry type, got %v", err)
	}
}

func TestMetadata_TagsAreCopied(t *testing.T) {
	tags := []string{"a", "b"}
	m, err := NewMetadata("nb1", "", "p1", "", "e1", "text", "", time.Now(), "", tags, "", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tags[0] = "mutated"
	if m.Tags()[0] != "a" {
		t.Error("metadata must not share the caller's tag slice")
	}
}

func TestParseEntryType(t *testing.T) {
	for _, valid := range []string{"text", "heading", "list_item", "code", "quote", "table"} {
		if _, err := ParseEntryType(valid); err != nil {
			t.Errorf("expected %q to parse, got %v", valid, err)
		}
	}
	if _, err := ParseEntryType("drawing"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected validation error for unknown type, got %v", err)
	}
}
