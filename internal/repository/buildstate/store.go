// Package buildstate persists the indexing record as a JSON file next
// to the chunk storage, with atomic replace on write.
package buildstate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/notedex/notedex/internal/domain"
	bs "github.com/notedex/notedex/internal/domain/buildstate"
)

const stateName = "buildstate.json"

// recordDTO is the on-disk shape of a build record.
type recordDTO struct {
	Fingerprints map[string]string `json:"fingerprints"`
	LastBuild    time.Time         `json:"last_build"`
	EmbedVersion string            `json:"embed_version"`
	Processed    int               `json:"processed"`
	Skipped      int               `json:"skipped"`
	Failed       int               `json:"failed"`
}

// Store reads and writes the build record for one storage directory.
type Store struct {
	path string
}

// New creates the store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is required: %w", domain.ErrValidation)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{path: filepath.Join(dir, stateName)}, nil
}

// Load returns the persisted record. A missing file is ErrNotFound, not
// a failure; first runs start from nothing.
func (s *Store) Load(ctx context.Context) (bs.Record, error) {
	_ = ctx
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return bs.Record{}, fmt.Errorf("build record: %w", domain.ErrNotFound)
		}
		return bs.Record{}, fmt.Errorf("read build record: %w", err)
	}

	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return bs.Record{}, fmt.Errorf("parse build record: %w", err)
	}
	return bs.New(
		dto.Fingerprints, dto.LastBuild, dto.EmbedVersion,
		dto.Processed, dto.Skipped, dto.Failed,
	), nil
}

// Save writes the record atomically (temp file, then rename).
func (s *Store) Save(ctx context.Context, r bs.Record) error {
	_ = ctx
	dto := recordDTO{
		Fingerprints: r.Fingerprints(),
		LastBuild:    r.LastBuild(),
		EmbedVersion: r.EmbedVersion(),
		Processed:    r.Processed(),
		Skipped:      r.Skipped(),
		Failed:       r.Failed(),
	}
	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write build record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit build record: %w", err)
	}
	return nil
}
