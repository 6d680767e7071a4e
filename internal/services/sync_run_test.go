package services

import (
	"context"
	"testing"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/domain"
)

func newTestRunner(t *testing.T, scanner *fakeScanner, ledger *fakeLedger, graph *fakeGraph, vectors *fakeVectors) *SyncRunner {
	t.Helper()
	log := newTestLogger(t)
	return NewSyncRunner(
		log,
		config.SyncConfig{BatchSize: 2},
		scanner,
		ledger,
		NewGraphSyncService(log, graph),
		NewVectorSyncService(log, &fakeEmbedder{dim: 3}, vectors),
		NewReconcileService(log, ledger, scanner),
		&fakeEnum{},
		&fakeEnum{},
		nil,
	)
}

func TestRunSyncsBothStoresAndMarksLedger(t *testing.T) {
	scanner := &fakeScanner{records: []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.LG"),
		testPaper("p3", "cs.AI"),
	}}
	ledger := &fakeLedger{}
	graph := &fakeGraph{}
	vectors := &fakeVectors{}
	runner := newTestRunner(t, scanner, ledger, graph, vectors)

	stats, err := runner.Run(context.Background(), RunOptions{Target: TargetBoth})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.BatchesProcessed != 2 {
		t.Fatalf("batches: want=2 got=%d", stats.BatchesProcessed)
	}
	// Each paper counts once per store.
	if stats.Succeeded != 6 || stats.Failed != 0 {
		t.Fatalf("counts: want=(6,0) got=(%d,%d)", stats.Succeeded, stats.Failed)
	}
	if len(graph.upserted) != 3 || len(vectors.upserted) != 3 {
		t.Fatalf("store writes: graph=%d vectors=%d", len(graph.upserted), len(vectors.upserted))
	}
	if len(ledger.marked) != 3 {
		t.Fatalf("ledger entries: want=3 got=%d", len(ledger.marked))
	}
	if stats.Duration <= 0 {
		t.Fatalf("duration must be recorded")
	}
}

func TestRunExcludesTrackedPapers(t *testing.T) {
	scanner := &fakeScanner{records: []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.LG"),
	}}
	ledger := &fakeLedger{tracked: map[string]struct{}{"p1": {}}}
	graph := &fakeGraph{}
	runner := newTestRunner(t, scanner, ledger, graph, &fakeVectors{})

	stats, err := runner.Run(context.Background(), RunOptions{Target: TargetGraph})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(graph.upserted) != 1 || graph.upserted[0] != "p2" {
		t.Fatalf("tracked paper must be excluded, upserted=%v", graph.upserted)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("succeeded: want=1 got=%d", stats.Succeeded)
	}
}

func TestRunHalfReplicatedPaperIsNotMarked(t *testing.T) {
	scanner := &fakeScanner{records: []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.LG"),
	}}
	ledger := &fakeLedger{}
	graph := &fakeGraph{failIDs: map[string]bool{"p2": true}}
	runner := newTestRunner(t, scanner, ledger, graph, &fakeVectors{})

	stats, err := runner.Run(context.Background(), RunOptions{Target: TargetBoth})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("failed: want=1 got=%d", stats.Failed)
	}
	if len(ledger.marked) != 1 || ledger.marked[0].PaperID != "p1" {
		t.Fatalf("only fully replicated papers may be marked, marked=%+v", ledger.marked)
	}
}

func TestRunHonorsMaxPapers(t *testing.T) {
	scanner := &fakeScanner{records: []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.LG"),
		testPaper("p3", "cs.LG"),
	}}
	graph := &fakeGraph{}
	runner := newTestRunner(t, scanner, &fakeLedger{}, graph, &fakeVectors{})

	_, err := runner.Run(context.Background(), RunOptions{Target: TargetGraph, MaxPapers: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(graph.upserted) != 1 {
		t.Fatalf("max papers: want=1 upsert got=%d", len(graph.upserted))
	}
}

func TestRunRejectsUnknownTarget(t *testing.T) {
	runner := newTestRunner(t, &fakeScanner{}, &fakeLedger{}, &fakeGraph{}, &fakeVectors{})
	if _, err := runner.Run(context.Background(), RunOptions{Target: "tapes"}); err == nil {
		t.Fatalf("expected error for unknown target")
	}
}

func TestRunAbortsWhenCollectionBootstrapFails(t *testing.T) {
	vectors := &fakeVectors{ensureErr: context.DeadlineExceeded}
	runner := newTestRunner(t, &fakeScanner{}, &fakeLedger{}, &fakeGraph{}, vectors)
	if _, err := runner.Run(context.Background(), RunOptions{Target: TargetVectors}); err == nil {
		t.Fatalf("expected bootstrap error to abort the run")
	}
}

func TestMergeEntriesIntersectsWhenBothStoresRan(t *testing.T) {
	graphEntries := []domain.LedgerEntry{
		{PaperID: "p1", DerivedRef: "p1"},
		{PaperID: "p2", DerivedRef: "p2"},
	}
	vectorEntries := []domain.LedgerEntry{
		{PaperID: "p1", DerivedRef: "point-1"},
		{PaperID: "p3", DerivedRef: "point-3"},
	}
	got := mergeEntries(true, true, graphEntries, vectorEntries)
	if len(got) != 1 {
		t.Fatalf("merged entries: want=1 got=%d", len(got))
	}
	if got[0].PaperID != "p1" || got[0].DerivedRef != "point-1" {
		t.Fatalf("merged entry must be the vector entry for the intersection, got=%+v", got[0])
	}
}

func TestMergeEntriesSingleStorePassthrough(t *testing.T) {
	graphEntries := []domain.LedgerEntry{{PaperID: "p1"}}
	vectorEntries := []domain.LedgerEntry{{PaperID: "p2"}}

	if got := mergeEntries(true, false, graphEntries, nil); len(got) != 1 || got[0].PaperID != "p1" {
		t.Fatalf("graph-only merge: got=%+v", got)
	}
	if got := mergeEntries(false, true, nil, vectorEntries); len(got) != 1 || got[0].PaperID != "p2" {
		t.Fatalf("vector-only merge: got=%+v", got)
	}
}

func TestRunOptionsNormalizeInheritsConfig(t *testing.T) {
	cfg := config.SyncConfig{
		BatchSize:  50,
		Categories: []string{"cs.LG"},
		MaxPapers:  500,
		Resync:     true,
	}
	opts := RunOptions{}
	opts.normalize(cfg)

	if opts.Target != TargetBoth {
		t.Fatalf("target default: want=%s got=%s", TargetBoth, opts.Target)
	}
	if opts.Reconcile != ReconcileOff {
		t.Fatalf("reconcile default: want=%s got=%s", ReconcileOff, opts.Reconcile)
	}
	if len(opts.Categories) != 1 || opts.Categories[0] != "cs.LG" {
		t.Fatalf("categories: got=%v", opts.Categories)
	}
	if opts.MaxPapers != 500 || !opts.Resync {
		t.Fatalf("config inheritance: got=%+v", opts)
	}
}

func TestRunContinuesWhenReconciliationFails(t *testing.T) {
	scanner := &fakeScanner{records: []domain.PaperRecord{testPaper("p1", "cs.LG")}}
	ledger := &fakeLedger{}
	log := newTestLogger(t)
	graph := &fakeGraph{}
	runner := NewSyncRunner(
		log,
		config.SyncConfig{BatchSize: 2},
		scanner,
		ledger,
		NewGraphSyncService(log, graph),
		NewVectorSyncService(log, &fakeEmbedder{dim: 3}, &fakeVectors{}),
		NewReconcileService(log, ledger, scanner),
		&fakeEnum{err: context.DeadlineExceeded},
		&fakeEnum{err: context.DeadlineExceeded},
		nil,
	)

	stats, err := runner.Run(context.Background(), RunOptions{Target: TargetGraph, Reconcile: ReconcileBefore})
	if err != nil {
		t.Fatalf("reconciliation failure must not abort the run: %v", err)
	}
	if stats.Succeeded != 1 || len(graph.upserted) != 1 {
		t.Fatalf("sync should proceed after failed reconciliation: %+v", stats)
	}
}

func TestRunReconcileBeforeRemovesStaleEntriesFirst(t *testing.T) {
	scanner := &fakeScanner{records: []domain.PaperRecord{testPaper("p1", "cs.LG")}}
	ledger := &fakeLedger{tracked: map[string]struct{}{"p1": {}, "gone": {}}}
	log := newTestLogger(t)
	graph := &fakeGraph{}
	runner := NewSyncRunner(
		log,
		config.SyncConfig{BatchSize: 2},
		scanner,
		ledger,
		NewGraphSyncService(log, graph),
		NewVectorSyncService(log, &fakeEmbedder{dim: 3}, &fakeVectors{}),
		NewReconcileService(log, ledger, scanner),
		&fakeEnum{ids: []string{"p1"}},
		&fakeEnum{ids: []string{"p1"}},
		nil,
	)

	_, err := runner.Run(context.Background(), RunOptions{Target: TargetGraph, Reconcile: ReconcileBefore})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ledger.removed) != 1 || ledger.removed[0] != "gone" {
		t.Fatalf("stale entry should be removed before scanning, removed=%v", ledger.removed)
	}
}
