// Package sync implements index synchronization: planning the cheapest
// sufficient action (skip, incremental, rebuild) and executing the
// chunk-embed-store-upsert pipeline per changed page.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notedex/notedex/internal/chunker"
	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/buildstate"
	"github.com/notedex/notedex/internal/domain/chunk"
	"github.com/notedex/notedex/internal/domain/source"
	syncdom "github.com/notedex/notedex/internal/domain/sync"
	"github.com/notedex/notedex/internal/metrics"
)

// Config holds the notebook binding and pipeline tuning.
type Config struct {
	NotebookID   string
	NotebookName string
	EmbedVersion string
	Chunking     chunker.Config
	Parallelism  int

	// DriftTolerance is the local-vs-remote chunk count gap still
	// reported as in sync. Zero demands exact agreement.
	DriftTolerance int
}

// Service orchestrates synchronization between the notebook source, the
// local chunk store, and the remote vector index.
type Service struct {
	src      Source
	index    VectorIndex
	chunks   ChunkStore
	records  RecordStore
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	runMu gosync.Mutex // one sync run at a time per service
}

// New creates the sync service.
func New(
	src Source, index VectorIndex, chunks ChunkStore,
	records RecordStore, embedder Embedder,
	cfg Config, logger *zap.Logger,
) (*Service, error) {
	if cfg.NotebookID == "" {
		return nil, fmt.Errorf("notebook id is required: %w", domain.ErrValidation)
	}
	if cfg.EmbedVersion == "" {
		return nil, fmt.Errorf("embed version is required: %w", domain.ErrValidation)
	}
	if err := cfg.Chunking.Validate(); err != nil {
		return nil, fmt.Errorf("chunking config: %w", err)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Service{
		src:      src,
		index:    index,
		chunks:   chunks,
		records:  records,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// pageState is the per-unit planning snapshot. Entries are fetched once
// during planning and reused by execution.
type pageState struct {
	page        source.Page
	entries     []source.Entry
	fingerprint string
	removed     bool // present in the record but gone from the source
}

// Plan decides the cheapest sufficient action without side effects.
func (s *Service) Plan(ctx context.Context, opts syncdom.Options) (syncdom.Plan, error) {
	plan, _, err := s.plan(ctx, opts)
	return plan, err
}

func (s *Service) plan(
	ctx context.Context, opts syncdom.Options,
) (syncdom.Plan, map[string]*pageState, error) {
	pages, err := s.src.ListPages(ctx, s.cfg.NotebookID)
	if err != nil {
		return syncdom.Plan{}, nil, fmt.Errorf("list pages: %w", err)
	}
	pages = filterScope(pages, opts.PageScope)

	states := make(map[string]*pageState, len(pages))
	for i := range pages {
		p := pages[i]
		entries, err := s.src.PageEntries(ctx, p.ID)
		if err != nil {
			return syncdom.Plan{}, nil, fmt.Errorf("entries for page %s: %w", p.ID, err)
		}
		states[p.ID] = &pageState{
			page:        p,
			entries:     entries,
			fingerprint: fingerprintPage(entries),
		}
	}

	record, err := s.records.Load(ctx)
	haveRecord := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return syncdom.Plan{}, nil, fmt.Errorf("load build record: %w", err)
	}

	allUnits := unitIDs(states)

	if opts.Force {
		return syncdom.NewPlan(syncdom.DecisionRebuild, allUnits, opts), states, nil
	}
	if !haveRecord {
		return syncdom.NewPlan(syncdom.DecisionRebuild, allUnits, opts), states, nil
	}
	if record.EmbedVersion() != s.cfg.EmbedVersion {
		return syncdom.NewPlan(syncdom.DecisionRebuild, allUnits, opts), states, nil
	}

	var changed []string
	for id, st := range states {
		fp, ok := record.Fingerprint(id)
		if !ok || fp != st.fingerprint {
			changed = append(changed, id)
		}
	}

	// Pages recorded last run but absent now need their vectors removed.
	// Scoped runs only consider removals inside the scope.
	for id := range record.Fingerprints() {
		if _, ok := states[id]; ok {
			continue
		}
		if len(opts.PageScope) > 0 && !containsString(opts.PageScope, id) {
			continue
		}
		states[id] = &pageState{removed: true, page: source.Page{ID: id}}
		changed = append(changed, id)
	}

	if len(changed) == 0 {
		// A record older than the staleness bound forces re-verification
		// of every in-scope unit even when fingerprints match.
		if s.stale(&record, opts) {
			return syncdom.NewPlan(syncdom.DecisionIncremental, allUnits, opts), states, nil
		}
		return syncdom.NewPlan(syncdom.DecisionSkip, nil, opts), states, nil
	}

	sort.Strings(changed)
	return syncdom.NewPlan(syncdom.DecisionIncremental, changed, opts), states, nil
}

func (s *Service) stale(record *buildstate.Record, opts syncdom.Options) bool {
	if opts.MaxAgeHours <= 0 {
		return false
	}
	bound := time.Duration(opts.MaxAgeHours * float64(time.Hour))
	return s.now().Sub(record.LastBuild()) > bound
}

// Run plans and, unless dry-run, executes. The report always carries the
// decision and affected units, so a dry run is a faithful preview.
func (s *Service) Run(ctx context.Context, opts syncdom.Options) (syncdom.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	start := s.now()

	plan, states, err := s.plan(ctx, opts)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues("plan_error").Inc()
		return syncdom.Report{}, err
	}

	report := syncdom.Report{
		RunID:    runID,
		Decision: plan.Decision(),
		Units:    plan.Units(),
	}

	if plan.Decision() == syncdom.DecisionSkip || opts.DryRun {
		report.Duration = s.now().Sub(start)
		metrics.SyncRunsTotal.WithLabelValues(string(plan.Decision())).Inc()
		s.logger.Info("sync finished without execution",
			zap.String("run_id", runID),
			zap.String("decision", string(plan.Decision())),
			zap.Bool("dry_run", opts.DryRun),
			zap.Int("units", len(plan.Units())),
		)
		return report, nil
	}

	record, err := s.records.Load(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return syncdom.Report{}, fmt.Errorf("load build record: %w", err)
	}

	outcome := s.execute(ctx, plan.Units(), states)

	report.Executed = true
	report.Processed = len(outcome.processed)
	report.Failed = len(outcome.failed)
	report.Skipped = len(states) - len(plan.Units())
	report.Duration = s.now().Sub(start)

	newRecord := s.mergeRecord(&record, plan, outcome, report)
	if err := s.records.Save(ctx, newRecord); err != nil {
		return report, fmt.Errorf("save build record: %w", err)
	}

	metrics.SyncRunsTotal.WithLabelValues(string(plan.Decision())).Inc()
	metrics.SyncDuration.Observe(report.Duration.Seconds())
	metrics.SyncUnitsTotal.WithLabelValues("processed").Add(float64(report.Processed))
	metrics.SyncUnitsTotal.WithLabelValues("failed").Add(float64(report.Failed))

	s.logger.Info("sync run completed",
		zap.String("run_id", runID),
		zap.String("decision", string(plan.Decision())),
		zap.Int("processed", report.Processed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)

	if report.Failed > 0 {
		return report, fmt.Errorf("%d of %d units failed: %w",
			report.Failed, len(plan.Units()), outcome.firstErr)
	}
	return report, nil
}

// runOutcome aggregates per-unit results across workers.
type runOutcome struct {
	mu           gosync.Mutex
	processed    []string
	failed       []string
	fingerprints map[string]string // successful units only
	removedOK    map[string]bool
	firstErr     error
}

func (o *runOutcome) recordSuccess(unitID, fp string, removed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processed = append(o.processed, unitID)
	if removed {
		o.removedOK[unitID] = true
	} else {
		o.fingerprints[unitID] = fp
	}
}

func (o *runOutcome) recordFailure(unitID string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, unitID)
	if o.firstErr == nil {
		o.firstErr = err
	}
}

// execute runs the per-unit pipeline across a bounded worker group.
// Unit failures are collected, not fatal: one bad page must not abort
// the rest of the run.
func (s *Service) execute(
	ctx context.Context, units []string, states map[string]*pageState,
) *runOutcome {
	outcome := &runOutcome{
		fingerprints: map[string]string{},
		removedOK:    map[string]bool{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	for _, unitID := range units {
		st := states[unitID]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcome.recordFailure(st.page.ID, err)
				return nil
			}
			if err := s.syncUnit(gctx, st); err != nil {
				s.logger.Error("unit sync failed",
					zap.String("page_id", st.page.ID), zap.Error(err))
				outcome.recordFailure(st.page.ID, err)
				return nil
			}
			outcome.recordSuccess(st.page.ID, st.fingerprint, st.removed)
			return nil
		})
	}
	g.Wait()

	sort.Strings(outcome.processed)
	sort.Strings(outcome.failed)
	return outcome
}

// syncUnit brings one page fully up to date: embed its chunks, persist
// them locally, then replace its vectors remotely. Removed pages just
// get their traces deleted on both sides.
func (s *Service) syncUnit(ctx context.Context, st *pageState) error {
	if st.removed {
		if err := s.index.DeleteByPage(ctx, st.page.ID); err != nil {
			return fmt.Errorf("delete page vectors: %w", err)
		}
		if err := s.chunks.Save(ctx, st.page.ID, nil); err != nil {
			return fmt.Errorf("remove local chunks: %w", err)
		}
		return nil
	}

	plain, metas, err := s.chunkPage(st)
	if err != nil {
		return err
	}

	embedded, err := s.embedChunks(ctx, st, plain, metas)
	if err != nil {
		return err
	}

	// Local persistence first: a failed remote upsert can be replayed
	// from disk without re-embedding.
	if err := s.chunks.Save(ctx, st.page.ID, embedded); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	if err := s.index.DeleteByPage(ctx, st.page.ID); err != nil {
		return fmt.Errorf("clear page vectors: %w", err)
	}
	if len(embedded) > 0 {
		if err := s.index.Upsert(ctx, embedded); err != nil {
			return fmt.Errorf("upsert vectors: %w", err)
		}
	}
	return nil
}

// chunkPage splits every content-bearing entry and pairs each chunk with
// its metadata. Empty entries are skipped; an entry with an unknown type
// fails the whole unit rather than silently dropping content.
func (s *Service) chunkPage(st *pageState) ([]chunk.Chunk, []chunk.Metadata, error) {
	var plain []chunk.Chunk
	var metas []chunk.Metadata

	for _, entry := range st.entries {
		if entry.Text == "" {
			continue
		}
		if _, err := chunk.ParseEntryType(entry.Type); err != nil {
			return nil, nil, fmt.Errorf("entry %s on page %s: %w", entry.ID, st.page.ID, err)
		}

		parts, err := chunker.Split(entry.ID, entry.Text, s.cfg.Chunking)
		if err != nil {
			return nil, nil, fmt.Errorf("chunk entry %s: %w", entry.ID, err)
		}

		meta, err := chunk.NewMetadata(
			s.cfg.NotebookID, st.page.NotebookName, st.page.ID, st.page.Title,
			entry.ID, entry.Type, entry.Author, entry.CreatedAt,
			st.page.Folder, entry.Tags, entry.URL, s.cfg.EmbedVersion,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("metadata for entry %s: %w", entry.ID, err)
		}

		for _, c := range parts {
			plain = append(plain, c)
			metas = append(metas, meta)
		}
	}
	return plain, metas, nil
}

func (s *Service) embedChunks(
	ctx context.Context, st *pageState,
	plain []chunk.Chunk, metas []chunk.Metadata,
) ([]chunk.Embedded, error) {
	if len(plain) == 0 {
		return nil, nil
	}

	texts := make([]string, len(plain))
	for i, c := range plain {
		texts[i] = c.Text
	}

	res, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}

	embedded := make([]chunk.Embedded, 0, len(plain))
	for i, c := range plain {
		id := chunk.ID(s.cfg.NotebookID, st.page.ID, c.UnitID, c.Index)
		e, err := chunk.NewEmbedded(id, c.Text, res.Embeddings[i], metas[i])
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", id, err)
		}
		embedded = append(embedded, e)
	}
	return embedded, nil
}

// mergeRecord folds this run's results into the previous record:
// succeeded units get their new fingerprints, removed units drop out,
// failed units keep their old fingerprints so the next run retries them.
func (s *Service) mergeRecord(
	prev *buildstate.Record, plan syncdom.Plan,
	outcome *runOutcome, report syncdom.Report,
) buildstate.Record {
	fps := prev.Fingerprints()
	if plan.Decision() == syncdom.DecisionRebuild {
		// A rebuild resets state; stale entries from the old record must
		// not survive into the new one.
		fps = map[string]string{}
		for _, id := range outcome.failed {
			if old, ok := prev.Fingerprint(id); ok {
				fps[id] = old
			}
		}
	}
	for id, fp := range outcome.fingerprints {
		fps[id] = fp
	}
	for id := range outcome.removedOK {
		delete(fps, id)
	}

	return buildstate.New(
		fps, s.now().UTC(), s.cfg.EmbedVersion,
		report.Processed, report.Skipped, report.Failed,
	)
}

// Restore replays locally persisted chunks into the vector index
// without re-embedding. Used after a backend wipe or migration.
func (s *Service) Restore(ctx context.Context) (syncdom.Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runID := uuid.NewString()
	start := s.now()

	units, err := s.chunks.ListUnits(ctx)
	if err != nil {
		return syncdom.Report{}, fmt.Errorf("list stored units: %w", err)
	}

	report := syncdom.Report{
		RunID:    runID,
		Decision: syncdom.DecisionRebuild,
		Units:    units,
		Executed: true,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	var mu gosync.Mutex
	var firstErr error

	for _, unitID := range units {
		g.Go(func() error {
			embedded, err := s.chunks.Load(gctx, unitID)
			if err == nil && len(embedded) > 0 {
				if derr := s.index.DeleteByPage(gctx, unitID); derr != nil {
					err = derr
				} else {
					err = s.index.Upsert(gctx, embedded)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				if firstErr == nil {
					firstErr = fmt.Errorf("restore unit %s: %w", unitID, err)
				}
				return nil
			}
			report.Processed++
			return nil
		})
	}
	g.Wait()

	report.Duration = s.now().Sub(start)
	s.logger.Info("restore completed",
		zap.String("run_id", runID),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)

	if firstErr != nil {
		return report, firstErr
	}
	return report, nil
}

// DriftEntry describes one unit whose local and remote chunk counts may
// disagree.
type DriftEntry struct {
	UnitID      string `json:"unit_id"`
	LocalChunks int    `json:"local_chunks"`
}

// DriftReport compares local persistence against the remote index.
type DriftReport struct {
	LocalUnits   int          `json:"local_units"`
	LocalChunks  int          `json:"local_chunks"`
	RemoteChunks int          `json:"remote_chunks"`
	InSync       bool         `json:"in_sync"`
	Units        []DriftEntry `json:"units,omitempty"`
}

// Drift reports the divergence between stored chunk files and the
// remote index, without modifying either side.
func (s *Service) Drift(ctx context.Context) (DriftReport, error) {
	units, err := s.chunks.ListUnits(ctx)
	if err != nil {
		return DriftReport{}, fmt.Errorf("list stored units: %w", err)
	}

	var report DriftReport
	report.LocalUnits = len(units)
	for _, unitID := range units {
		n, err := s.chunks.CountChunks(ctx, unitID)
		if err != nil {
			return DriftReport{}, fmt.Errorf("count chunks for %s: %w", unitID, err)
		}
		report.LocalChunks += n
		report.Units = append(report.Units, DriftEntry{UnitID: unitID, LocalChunks: n})
	}

	stats, err := s.index.Stats(ctx)
	if err != nil {
		return DriftReport{}, fmt.Errorf("index stats: %w", err)
	}
	report.RemoteChunks = stats.TotalVectors
	gap := report.LocalChunks - report.RemoteChunks
	if gap < 0 {
		gap = -gap
	}
	report.InSync = gap <= s.cfg.DriftTolerance
	return report, nil
}

func filterScope(pages []source.Page, scope []string) []source.Page {
	if len(scope) == 0 {
		return pages
	}
	out := pages[:0:0]
	for _, p := range pages {
		if containsString(scope, p.ID) {
			out = append(out, p)
		}
	}
	return out
}

func unitIDs(states map[string]*pageState) []string {
	ids := make([]string, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
