// Package source defines the inputs supplied by the notebook content
// collaborator. The retrieval client itself lives outside this module;
// these types are its wire-agnostic contract.
package source

import "time"

// Page is one notebook page — the coarsest unit tracked for
// fingerprinting and incremental sync.
type Page struct {
	ID           string
	Title        string
	NotebookID   string
	NotebookName string
	Folder       string
	UpdatedAt    time.Time
}

// Entry is a single content block within a page, in page order.
type Entry struct {
	ID        string
	Type      string
	Text      string
	Author    string
	CreatedAt time.Time
	Tags      []string
	URL       string
}
