// Package chunkstore persists embedded chunks as one columnar file per
// page unit. The layout is <dir>/<embed_version>/<unit_id>.parquet, so
// a model upgrade naturally lands in a fresh directory while the old
// generation stays readable.
package chunkstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/chunk"
)

const fileExt = ".parquet"

// Config holds storage parameters.
type Config struct {
	Dir          string
	EmbedVersion string
	LockTimeout  time.Duration
}

// Store writes and reads per-unit chunk files with exclusive locking,
// so concurrent sync runs cannot interleave writes to the same unit.
type Store struct {
	cfg     Config
	tracker *Tracker
	logger  *zap.Logger
}

// New creates the store and its version directory.
func New(cfg Config, tracker *Tracker, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage dir is required: %w", domain.ErrValidation)
	}
	if cfg.EmbedVersion == "" {
		return nil, fmt.Errorf("embed version is required: %w", domain.ErrValidation)
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 10 * time.Second
	}
	if err := os.MkdirAll(filepath.Join(cfg.Dir, cfg.EmbedVersion), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{cfg: cfg, tracker: tracker, logger: logger}, nil
}

// Save replaces the unit's file with the given chunks. The write goes to
// a temp file first and renames into place, so readers never observe a
// partial file. An empty chunk list removes the unit.
func (s *Store) Save(ctx context.Context, unitID string, chunks []chunk.Embedded) error {
	if err := validateUnitID(unitID); err != nil {
		return err
	}

	lock, err := acquireLock(ctx, s.lockPath(unitID), s.cfg.LockTimeout)
	if err != nil {
		return fmt.Errorf("save unit %s: %w", unitID, err)
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			s.logger.Warn("failed to release unit lock", zap.String("unit_id", unitID), zap.Error(rerr))
		}
	}()

	path := s.unitPath(unitID)
	if len(chunks) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove unit %s: %w", unitID, err)
		}
		s.track(unitID)
		return nil
	}

	rows := make([]chunkRow, len(chunks))
	for i := range chunks {
		rows[i] = toRow(&chunks[i])
	}

	tmp := path + ".tmp"
	if err := writeRows(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write unit %s: %w", unitID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit unit %s: %w", unitID, err)
	}

	s.track(unitID)
	return nil
}

// Load reads every chunk of one unit. A missing file is ErrNotFound.
func (s *Store) Load(ctx context.Context, unitID string) ([]chunk.Embedded, error) {
	if err := validateUnitID(unitID); err != nil {
		return nil, err
	}
	_ = ctx

	path := s.unitPath(unitID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unit %s: %w", unitID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("stat unit %s: %w", unitID, err)
	}
	rows, err := parquet.ReadFile[chunkRow](path)
	if err != nil {
		return nil, fmt.Errorf("read unit %s: %w", unitID, err)
	}

	chunks := make([]chunk.Embedded, len(rows))
	for i, r := range rows {
		chunks[i] = fromRow(r)
	}
	return chunks, nil
}

// ListUnits returns every stored unit id for the active embed version.
func (s *Store) ListUnits(ctx context.Context) ([]string, error) {
	_ = ctx
	pattern := filepath.Join(s.versionDir(), "*"+fileExt)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	units := make([]string, 0, len(paths))
	for _, p := range paths {
		name := filepath.Base(p)
		units = append(units, strings.TrimSuffix(name, fileExt))
	}
	return units, nil
}

// CountChunks returns the row count of one unit without decoding rows.
func (s *Store) CountChunks(ctx context.Context, unitID string) (int, error) {
	if err := validateUnitID(unitID); err != nil {
		return 0, err
	}
	_ = ctx

	f, err := os.Open(s.unitPath(unitID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("unit %s: %w", unitID, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("open unit %s: %w", unitID, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat unit %s: %w", unitID, err)
	}
	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return 0, fmt.Errorf("open parquet %s: %w", unitID, err)
	}
	return int(pf.NumRows()), nil
}

// Verify checks stored files against the manifest, when tracking is on.
func (s *Store) Verify(ctx context.Context) ([]string, error) {
	if s.tracker == nil {
		return nil, nil
	}
	return s.tracker.Verify(ctx, s.versionDir())
}

func (s *Store) track(unitID string) {
	if s.tracker == nil {
		return
	}
	if err := s.tracker.Record(s.versionDir(), unitID+fileExt); err != nil {
		// Manifest tracking is advisory; a failure must not fail the sync.
		s.logger.Warn("manifest update failed", zap.String("unit_id", unitID), zap.Error(err))
	}
}

func (s *Store) versionDir() string {
	return filepath.Join(s.cfg.Dir, s.cfg.EmbedVersion)
}

func (s *Store) unitPath(unitID string) string {
	return filepath.Join(s.versionDir(), unitID+fileExt)
}

func (s *Store) lockPath(unitID string) string {
	return filepath.Join(s.versionDir(), unitID+".lock")
}

func writeRows(path string, rows []chunkRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := parquet.NewGenericWriter[chunkRow](f, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func validateUnitID(unitID string) error {
	if unitID == "" {
		return fmt.Errorf("unit id is required: %w", domain.ErrValidation)
	}
	if strings.ContainsAny(unitID, `/\`) || unitID == "." || unitID == ".." {
		return fmt.Errorf("unit id %q is not a valid file name: %w", unitID, domain.ErrValidation)
	}
	return nil
}
