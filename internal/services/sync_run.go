package services

import (
	"context"
	"fmt"
	"time"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
)

type Target string

const (
	TargetGraph   Target = "graph"
	TargetVectors Target = "vectors"
	TargetBoth    Target = "both"
)

type ReconcileMode string

const (
	ReconcileOff    ReconcileMode = "off"
	ReconcileBefore ReconcileMode = "before"
	ReconcileAfter  ReconcileMode = "after"
)

// RunOptions shapes a single sync run. Zero values fall back to the
// configured sync defaults.
type RunOptions struct {
	Target    Target
	Reconcile ReconcileMode
	// Filter overrides; empty fields inherit config.
	Categories    []string
	PublishedFrom string
	PublishedTo   string
	MaxPapers     int
	Resync        bool
}

func (o *RunOptions) normalize(cfg config.SyncConfig) {
	if o.Target == "" {
		o.Target = TargetBoth
	}
	if o.Reconcile == "" {
		o.Reconcile = ReconcileOff
	}
	if len(o.Categories) == 0 {
		o.Categories = cfg.Categories
	}
	if o.PublishedFrom == "" {
		o.PublishedFrom = cfg.PublishedFrom
	}
	if o.PublishedTo == "" {
		o.PublishedTo = cfg.PublishedTo
	}
	if o.MaxPapers <= 0 {
		o.MaxPapers = cfg.MaxPapers
	}
	if !o.Resync {
		o.Resync = cfg.Resync
	}
}

func (o RunOptions) validate() error {
	switch o.Target {
	case TargetGraph, TargetVectors, TargetBoth:
	default:
		return fmt.Errorf("unknown sync target %q", o.Target)
	}
	switch o.Reconcile {
	case ReconcileOff, ReconcileBefore, ReconcileAfter:
	default:
		return fmt.Errorf("unknown reconcile mode %q", o.Reconcile)
	}
	return nil
}

// SyncRunner drives the scan → replicate → mark pipeline across one or
// both derived stores.
type SyncRunner struct {
	log        *logger.Logger
	cfg        config.SyncConfig
	papers     PaperScanner
	ledger     TrackingLedger
	graph      *GraphSyncService
	vectors    *VectorSyncService
	reconcile  *ReconcileService
	vectorEnum DerivedEnumerator
	graphEnum  DerivedEnumerator
	lock       *RunLock
}

func NewSyncRunner(
	log *logger.Logger,
	cfg config.SyncConfig,
	papers PaperScanner,
	ledger TrackingLedger,
	graph *GraphSyncService,
	vectors *VectorSyncService,
	reconcile *ReconcileService,
	vectorEnum DerivedEnumerator,
	graphEnum DerivedEnumerator,
	lock *RunLock,
) *SyncRunner {
	return &SyncRunner{
		log:        log.With("service", "SyncRunner"),
		cfg:        cfg,
		papers:     papers,
		ledger:     ledger,
		graph:      graph,
		vectors:    vectors,
		reconcile:  reconcile,
		vectorEnum: vectorEnum,
		graphEnum:  graphEnum,
		lock:       lock,
	}
}

// Run executes one sync pass. Item-level failures are counted and logged
// but do not abort the run; only startup failures (lock, collection
// bootstrap, dimension mismatch) and primary-store errors do.
func (r *SyncRunner) Run(ctx context.Context, opts RunOptions) (domain.RunStats, error) {
	start := time.Now()
	var stats domain.RunStats

	opts.normalize(r.cfg)
	if err := opts.validate(); err != nil {
		return stats, err
	}

	if err := r.lock.Acquire(ctx); err != nil {
		return stats, err
	}
	defer r.lock.Release(ctx)

	syncVectors := opts.Target == TargetVectors || opts.Target == TargetBoth
	syncGraph := opts.Target == TargetGraph || opts.Target == TargetBoth
	_ = syncGraph

	if syncVectors {
		if err := r.vectors.EnsureCollection(ctx); err != nil {
			return stats, err
		}
	}

	if opts.Reconcile == ReconcileBefore {
		r.runReconcile(ctx, opts.Target)
	}

	filter := domain.ScanFilter{
		Categories:    opts.Categories,
		PublishedFrom: opts.PublishedFrom,
		PublishedTo:   opts.PublishedTo,
		RequireText:   true,
	}

	// Tracked ids are loaded once up front. The exclusion set therefore
	// stays fixed for the whole run, which keeps skip-based paging stable
	// while this run is the only writer to the ledger.
	var tracked map[string]struct{}
	if !opts.Resync {
		var err error
		tracked, err = r.ledger.AllTrackedIDs(ctx)
		if err != nil {
			return stats, fmt.Errorf("load tracked ids: %w", err)
		}
		filter.ExcludeIDs = make([]string, 0, len(tracked))
		for id := range tracked {
			filter.ExcludeIDs = append(filter.ExcludeIDs, id)
		}
	}

	total, err := r.papers.Count(ctx, filter)
	if err != nil {
		return stats, fmt.Errorf("count candidates: %w", err)
	}
	r.log.Info("Starting sync run",
		"target", string(opts.Target),
		"candidates", total,
		"batch_size", r.cfg.BatchSize,
		"resync", opts.Resync)

	processed := 0
	for page := 0; ; page++ {
		batch, err := r.papers.ScanPage(ctx, filter, page, r.cfg.BatchSize)
		if err != nil {
			return stats, fmt.Errorf("scan page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}
		if opts.MaxPapers > 0 && processed+len(batch) > opts.MaxPapers {
			batch = batch[:opts.MaxPapers-processed]
		}

		batchStats, err := r.runBatch(ctx, opts, batch)
		stats.Add(batchStats)
		stats.BatchesProcessed++
		if err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		processed += len(batch)
		if opts.MaxPapers > 0 && processed >= opts.MaxPapers {
			r.log.Info("Reached max papers limit", "max_papers", opts.MaxPapers)
			break
		}
	}

	if opts.Reconcile == ReconcileAfter {
		r.runReconcile(ctx, opts.Target)
	}

	stats.Duration = time.Since(start)
	r.log.Info("Sync run finished",
		"batches", stats.BatchesProcessed,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"duration", stats.Duration.String())
	return stats, nil
}

func (r *SyncRunner) runBatch(ctx context.Context, opts RunOptions, batch []domain.PaperRecord) (domain.RunStats, error) {
	var stats domain.RunStats

	var graphEntries, vectorEntries []domain.LedgerEntry
	graphRan := opts.Target == TargetGraph || opts.Target == TargetBoth
	vectorsRan := opts.Target == TargetVectors || opts.Target == TargetBoth

	if graphRan {
		ok, failed, entries := r.graph.ReplicateBatch(ctx, batch)
		stats.Succeeded += ok
		stats.Failed += failed
		graphEntries = entries
	}

	if vectorsRan {
		var known map[string]string
		if opts.Resync {
			ids := make([]string, len(batch))
			for i, p := range batch {
				ids[i] = p.ID
			}
			var err error
			known, err = r.ledger.Fingerprints(ctx, ids)
			if err != nil {
				return stats, fmt.Errorf("load fingerprints: %w", err)
			}
		}
		ok, failed, skipped, entries, err := r.vectors.ReplicateBatch(ctx, batch, known)
		stats.Succeeded += ok
		stats.Failed += failed
		stats.Skipped += skipped
		vectorEntries = entries
		if err != nil {
			return stats, err
		}
	}

	entries := mergeEntries(graphRan, vectorsRan, graphEntries, vectorEntries)
	if len(entries) > 0 {
		if err := r.ledger.MarkSyncedBulk(ctx, entries); err != nil {
			return stats, fmt.Errorf("mark synced: %w", err)
		}
	}
	return stats, nil
}

// mergeEntries decides which papers the batch may mark as synced. When
// both stores ran, only papers that landed in both are marked, so a
// half-replicated paper is retried end to end on the next run. The
// vector entry wins because its derived ref carries the point id.
func mergeEntries(graphRan, vectorsRan bool, graphEntries, vectorEntries []domain.LedgerEntry) []domain.LedgerEntry {
	switch {
	case graphRan && !vectorsRan:
		return graphEntries
	case vectorsRan && !graphRan:
		return vectorEntries
	}
	inGraph := make(map[string]struct{}, len(graphEntries))
	for _, e := range graphEntries {
		inGraph[e.PaperID] = struct{}{}
	}
	out := make([]domain.LedgerEntry, 0, len(vectorEntries))
	for _, e := range vectorEntries {
		if _, ok := inGraph[e.PaperID]; ok {
			out = append(out, e)
		}
	}
	return out
}

// runReconcile is best-effort within a sync run: a failure is logged and
// the run continues with the ledger in its prior state. Standalone
// reconciliation via the API surfaces its error to the caller instead.
func (r *SyncRunner) runReconcile(ctx context.Context, target Target) {
	if r.reconcile == nil {
		return
	}
	var enum DerivedEnumerator
	switch target {
	case TargetGraph:
		enum = r.graphEnum
	default:
		// For "both" the vector store is the reconciliation source of
		// truth; it is the store whose writes cost the most to repeat.
		enum = r.vectorEnum
	}
	if enum == nil {
		return
	}
	removed, added, err := r.reconcile.Reconcile(ctx, enum)
	if err != nil {
		r.log.Warn("Reconciliation failed; continuing run", "error", err)
		return
	}
	r.log.Info("Reconciliation complete", "removed", removed, "added", added)
}
