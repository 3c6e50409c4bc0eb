package redis

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/notedex/notedex/internal/db"
	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/search"
)

// buildHashFields converts an embedded chunk into a flat map for HSET.
func buildHashFields(c *chunk.Embedded) map[string]string {
	m := c.Meta()
	fields := map[string]string{
		"id":            c.ID(),
		"__text":        c.Text(),
		"vector":        vectorToBytes(c.Vector()),
		"notebook_id":   m.NotebookID(),
		"notebook_name": m.NotebookName(),
		"page_id":       m.PageID(),
		"page_title":    m.PageTitle(),
		"entry_id":      m.EntryID(),
		"entry_type":    string(m.EntryType()),
		"author":        m.Author(),
		"created_at":    strconv.FormatInt(m.CreatedAt().Unix(), 10),
		"url":           m.URL(),
		"embed_version": m.EmbedVersion(),
	}
	if m.Folder() != "" {
		fields["folder"] = m.Folder()
	}
	if len(m.Tags()) > 0 {
		fields["tags"] = strings.Join(m.Tags(), ",")
	}
	return fields
}

// parseSearchEntry converts a raw FT.SEARCH hit into a domain result.
func parseSearchEntry(entry db.SearchEntry) search.Result {
	f := entry.Fields

	var createdAt time.Time
	if ts, err := strconv.ParseInt(f["created_at"], 10, 64); err == nil {
		createdAt = time.Unix(ts, 0).UTC()
	}
	var tags []string
	if f["tags"] != "" {
		tags = strings.Split(f["tags"], ",")
	}

	meta := chunk.ReconstructMetadata(
		f["notebook_id"], f["notebook_name"], f["page_id"], f["page_title"],
		f["entry_id"], chunk.EntryType(f["entry_type"]), f["author"], createdAt,
		f["folder"], tags, f["url"], f["embed_version"],
	)

	return search.Result{
		ID:      f["id"],
		Score:   entry.Score,
		Excerpt: f["__text"],
		Meta:    meta,
	}
}

// buildFilter translates a metadata filter into an FT.SEARCH pre-filter
// query string. Empty filter yields "" (match all).
func buildFilter(f search.Filter) string {
	if f.IsEmpty() {
		return ""
	}
	var parts []string
	if f.NotebookID != "" {
		parts = append(parts, buildTagFilter("notebook_id", f.NotebookID))
	}
	if f.Author != "" {
		parts = append(parts, buildTagFilter("author", f.Author))
	}
	if f.EntryType != "" {
		parts = append(parts, buildTagFilter("entry_type", f.EntryType))
	}
	if f.Tag != "" {
		parts = append(parts, buildTagFilter("tags", f.Tag))
	}
	return strings.Join(parts, " ")
}

func buildTagFilter(key, value string) string {
	return fmt.Sprintf("@%s:{%s}", key, tagEscaper.Replace(value))
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
