// Package chunk holds the chunk aggregate: text segments produced by the
// chunker, their metadata, and the embedded form stored in the index.
package chunk

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/notedex/notedex/internal/domain"
)

// MaxTextSize bounds the text of a single embedded chunk, in bytes.
const MaxTextSize = 32768

// MaxVectorDim bounds the dimensionality of a stored vector.
const MaxVectorDim = 4096

// Chunk is one contiguous span of a source unit's text.
// Offsets are codepoint (rune) positions into the source text, never bytes.
type Chunk struct {
	UnitID     string
	Index      int
	StartRune  int
	EndRune    int
	Text       string
	TokenCount int
}

// EntryType classifies a notebook entry. The set is closed; unknown
// values are rejected at construction.
type EntryType string

// Allowed entry types.
const (
	EntryText     EntryType = "text"
	EntryHeading  EntryType = "heading"
	EntryListItem EntryType = "list_item"
	EntryCode     EntryType = "code"
	EntryQuote    EntryType = "quote"
	EntryTable    EntryType = "table"
)

var validEntryTypes = map[EntryType]bool{
	EntryText: true, EntryHeading: true, EntryListItem: true,
	EntryCode: true, EntryQuote: true, EntryTable: true,
}

// ParseEntryType validates and converts a raw entry type string.
func ParseEntryType(s string) (EntryType, error) {
	et := EntryType(s)
	if !validEntryTypes[et] {
		return "", fmt.Errorf("unknown entry type %q: %w", s, domain.ErrValidation)
	}
	return et, nil
}

// Metadata is the descriptive context attached to a chunk for filtering.
type Metadata struct {
	notebookID   string
	notebookName string
	pageID       string
	pageTitle    string
	entryID      string
	entryType    EntryType
	author       string
	createdAt    time.Time
	folder       string
	tags         []string
	url          string
	embedVersion string
}

// NewMetadata validates and creates chunk metadata.
func NewMetadata(
	notebookID, notebookName, pageID, pageTitle, entryID, rawEntryType,
	author string, createdAt time.Time, folder string, tags []string,
	url, embedVersion string,
) (Metadata, error) {
	if notebookID == "" {
		return Metadata{}, fmt.Errorf("notebook id is required: %w", domain.ErrValidation)
	}
	if pageID == "" {
		return Metadata{}, fmt.Errorf("page id is required: %w", domain.ErrValidation)
	}
	if entryID == "" {
		return Metadata{}, fmt.Errorf("entry id is required: %w", domain.ErrValidation)
	}
	et, err := ParseEntryType(rawEntryType)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		notebookID:   notebookID,
		notebookName: notebookName,
		pageID:       pageID,
		pageTitle:    pageTitle,
		entryID:      entryID,
		entryType:    et,
		author:       author,
		createdAt:    createdAt,
		folder:       folder,
		tags:         cloneTags(tags),
		url:          url,
		embedVersion: embedVersion,
	}, nil
}

// ReconstructMetadata creates Metadata without validation (storage hydration).
func ReconstructMetadata(
	notebookID, notebookName, pageID, pageTitle, entryID string,
	entryType EntryType, author string, createdAt time.Time,
	folder string, tags []string, url, embedVersion string,
) Metadata {
	return Metadata{
		notebookID: notebookID, notebookName: notebookName,
		pageID: pageID, pageTitle: pageTitle,
		entryID: entryID, entryType: entryType,
		author: author, createdAt: createdAt,
		folder: folder, tags: tags, url: url, embedVersion: embedVersion,
	}
}

// NotebookID returns the owning notebook identifier.
func (m *Metadata) NotebookID() string { return m.notebookID }

// NotebookName returns the owning notebook name.
func (m *Metadata) NotebookName() string { return m.notebookName }

// PageID returns the owning page identifier.
func (m *Metadata) PageID() string { return m.pageID }

// PageTitle returns the owning page title.
func (m *Metadata) PageTitle() string { return m.pageTitle }

// EntryID returns the source entry identifier.
func (m *Metadata) EntryID() string { return m.entryID }

// EntryType returns the source entry type.
func (m *Metadata) EntryType() EntryType { return m.entryType }

// Author returns the entry author.
func (m *Metadata) Author() string { return m.author }

// CreatedAt returns the entry timestamp.
func (m *Metadata) CreatedAt() time.Time { return m.createdAt }

// Folder returns the optional folder path.
func (m *Metadata) Folder() string { return m.folder }

// Tags returns the optional tag set.
func (m *Metadata) Tags() []string { return m.tags }

// URL returns the direct reference URL.
func (m *Metadata) URL() string { return m.url }

// EmbedVersion returns the embedding-configuration version tag.
func (m *Metadata) EmbedVersion() string { return m.embedVersion }

// Embedded is a chunk plus its vector and metadata, ready for the index.
type Embedded struct {
	id     string
	text   string
	vector []float32
	meta   Metadata
}

// ID builds the deterministic chunk identifier
// {notebook}_{page}_{entry}_{index}.
func ID(notebookID, pageID, entryID string, index int) string {
	return fmt.Sprintf("%s_%s_%s_%d", notebookID, pageID, entryID, index)
}

// NewEmbedded validates and creates an embedded chunk.
// The id must have at least four underscore-delimited non-empty segments,
// the vector must be finite in every coordinate, and text must be
// non-empty and bounded.
func NewEmbedded(id, text string, vector []float32, meta Metadata) (Embedded, error) {
	if err := ValidateID(id); err != nil {
		return Embedded{}, err
	}
	if text == "" {
		return Embedded{}, fmt.Errorf("chunk %s: text is required: %w", id, domain.ErrValidation)
	}
	if len(text) > MaxTextSize {
		return Embedded{}, fmt.Errorf(
			"chunk %s: text too large (%d bytes, max %d): %w",
			id, len(text), MaxTextSize, domain.ErrValidation,
		)
	}
	if len(vector) == 0 {
		return Embedded{}, fmt.Errorf("chunk %s: vector is required: %w", id, domain.ErrValidation)
	}
	if len(vector) > MaxVectorDim {
		return Embedded{}, fmt.Errorf(
			"chunk %s: vector dimension %d exceeds %d: %w",
			id, len(vector), MaxVectorDim, domain.ErrValidation,
		)
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Embedded{}, fmt.Errorf(
				"chunk %s: coordinate %d: %w", id, i, domain.ErrNonFiniteVector,
			)
		}
	}
	return Embedded{id: id, text: text, vector: vector, meta: meta}, nil
}

// ReconstructEmbedded creates an Embedded without validation (storage hydration).
func ReconstructEmbedded(id, text string, vector []float32, meta Metadata) Embedded {
	return Embedded{id: id, text: text, vector: vector, meta: meta}
}

// ValidateID checks the {notebook}_{page}_{entry}_{index} id format.
func ValidateID(id string) error {
	segments := strings.Split(id, "_")
	if len(segments) < 4 {
		return fmt.Errorf("id %q has %d segments, want at least 4: %w",
			id, len(segments), domain.ErrInvalidChunkID)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("id %q has an empty segment: %w", id, domain.ErrInvalidChunkID)
		}
	}
	return nil
}

// ID returns the chunk identifier.
func (e *Embedded) ID() string { return e.id }

// Text returns the chunk text.
func (e *Embedded) Text() string { return e.text }

// Vector returns the embedding vector.
func (e *Embedded) Vector() []float32 { return e.vector }

// Meta returns the chunk metadata.
func (e *Embedded) Meta() Metadata { return e.meta }

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	c := make([]string, len(tags))
	copy(c, tags)
	return c
}
