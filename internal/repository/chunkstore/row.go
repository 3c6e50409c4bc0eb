package chunkstore

import (
	"strings"
	"time"

	"github.com/notedex/notedex/internal/domain/chunk"
)

// chunkRow is the columnar on-disk shape of one embedded chunk.
// Tags are stored joined to keep the schema flat.
type chunkRow struct {
	ID           string    `parquet:"id,dict"`
	Text         string    `parquet:"text,zstd"`
	Vector       []float32 `parquet:"vector"`
	NotebookID   string    `parquet:"notebook_id,dict"`
	NotebookName string    `parquet:"notebook_name,dict"`
	PageID       string    `parquet:"page_id,dict"`
	PageTitle    string    `parquet:"page_title,dict"`
	EntryID      string    `parquet:"entry_id,dict"`
	EntryType    string    `parquet:"entry_type,dict"`
	Author       string    `parquet:"author,dict"`
	CreatedAt    int64     `parquet:"created_at"`
	Folder       string    `parquet:"folder,dict"`
	Tags         string    `parquet:"tags"`
	URL          string    `parquet:"url"`
	EmbedVersion string    `parquet:"embed_version,dict"`
}

func toRow(c *chunk.Embedded) chunkRow {
	m := c.Meta()
	return chunkRow{
		ID:           c.ID(),
		Text:         c.Text(),
		Vector:       c.Vector(),
		NotebookID:   m.NotebookID(),
		NotebookName: m.NotebookName(),
		PageID:       m.PageID(),
		PageTitle:    m.PageTitle(),
		EntryID:      m.EntryID(),
		EntryType:    string(m.EntryType()),
		Author:       m.Author(),
		CreatedAt:    m.CreatedAt().Unix(),
		Folder:       m.Folder(),
		Tags:         strings.Join(m.Tags(), ","),
		URL:          m.URL(),
		EmbedVersion: m.EmbedVersion(),
	}
}

func fromRow(r chunkRow) chunk.Embedded {
	var tags []string
	if r.Tags != "" {
		tags = strings.Split(r.Tags, ",")
	}
	meta := chunk.ReconstructMetadata(
		r.NotebookID, r.NotebookName, r.PageID, r.PageTitle,
		r.EntryID, chunk.EntryType(r.EntryType), r.Author,
		time.Unix(r.CreatedAt, 0).UTC(),
		r.Folder, tags, r.URL, r.EmbedVersion,
	)
	return chunk.ReconstructEmbedded(r.ID, r.Text, r.Vector, meta)
}
