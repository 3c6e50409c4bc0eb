// Package notebook reads notebook content from a local export file.
// It is the bundled Source implementation; deployments talking to a
// live content API plug in their own client behind the same interface.
package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/source"
)

// export is the on-disk shape of a notebook export.
type export struct {
	Notebook struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"notebook"`
	Pages []exportPage `json:"pages"`
}

type exportPage struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Folder    string        `json:"folder,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
	Entries   []exportEntry `json:"entries"`
}

type exportEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Tags      []string  `json:"tags,omitempty"`
	URL       string    `json:"url,omitempty"`
}

// ExportSource serves pages and entries from one export file. The file
// is re-read on every listing, so replacing it between sync runs (a
// fresh export drop) is picked up without a restart.
type ExportSource struct {
	path string
}

// NewExportSource creates the source for one export file.
func NewExportSource(path string) (*ExportSource, error) {
	if path == "" {
		return nil, fmt.Errorf("export path is required: %w", domain.ErrValidation)
	}
	return &ExportSource{path: path}, nil
}

// ListPages returns all pages of the given notebook.
func (s *ExportSource) ListPages(ctx context.Context, notebookID string) ([]source.Page, error) {
	exp, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if exp.Notebook.ID != notebookID {
		return nil, fmt.Errorf("export holds notebook %q, requested %q: %w",
			exp.Notebook.ID, notebookID, domain.ErrNotFound)
	}

	pages := make([]source.Page, len(exp.Pages))
	for i, p := range exp.Pages {
		pages[i] = source.Page{
			ID:           p.ID,
			Title:        p.Title,
			NotebookID:   exp.Notebook.ID,
			NotebookName: exp.Notebook.Name,
			Folder:       p.Folder,
			UpdatedAt:    p.UpdatedAt,
		}
	}
	return pages, nil
}

// PageEntries returns the entries of one page, in page order.
func (s *ExportSource) PageEntries(ctx context.Context, pageID string) ([]source.Entry, error) {
	exp, err := s.read(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range exp.Pages {
		if p.ID != pageID {
			continue
		}
		entries := make([]source.Entry, len(p.Entries))
		for i, e := range p.Entries {
			entries[i] = source.Entry{
				ID:        e.ID,
				Type:      e.Type,
				Text:      e.Text,
				Author:    e.Author,
				CreatedAt: e.CreatedAt,
				Tags:      e.Tags,
				URL:       e.URL,
			}
		}
		return entries, nil
	}
	return nil, fmt.Errorf("page %s: %w", pageID, domain.ErrNotFound)
}

func (s *ExportSource) read(ctx context.Context) (*export, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("export %s: %w", s.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read export %s: %w", s.path, err)
	}

	var exp export
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse export %s: %w", s.path, err)
	}
	return &exp, nil
}
