package services

import (
	"context"
	"testing"

	"github.com/paperscope/backend/internal/domain"
)

func TestGraphReplicateBatchAllSucceed(t *testing.T) {
	graph := &fakeGraph{}
	svc := NewGraphSyncService(newTestLogger(t), graph)

	batch := []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.AI"),
	}
	succeeded, failed, entries := svc.ReplicateBatch(context.Background(), batch)
	if succeeded != 2 || failed != 0 {
		t.Fatalf("counts: want=(2,0) got=(%d,%d)", succeeded, failed)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: want=2 got=%d", len(entries))
	}
	if entries[0].PaperID != "p1" || entries[0].Category != "cs.LG" {
		t.Fatalf("entry 0: got=%+v", entries[0])
	}
	if entries[0].DerivedRef != "p1" {
		t.Fatalf("graph derived ref must be the paper id, got=%q", entries[0].DerivedRef)
	}
	if entries[0].ContentFingerprint != batch[0].Fingerprint() {
		t.Fatalf("entry fingerprint mismatch")
	}
}

func TestGraphReplicateBatchIsolatesFailures(t *testing.T) {
	graph := &fakeGraph{failIDs: map[string]bool{"p2": true}}
	svc := NewGraphSyncService(newTestLogger(t), graph)

	succeeded, failed, entries := svc.ReplicateBatch(context.Background(), []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.LG"),
		testPaper("p3", "cs.LG"),
	})
	if succeeded != 2 || failed != 1 {
		t.Fatalf("counts: want=(2,1) got=(%d,%d)", succeeded, failed)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: want=2 got=%d", len(entries))
	}
	for _, e := range entries {
		if e.PaperID == "p2" {
			t.Fatalf("failed paper must not produce a ledger entry")
		}
	}
	if len(graph.upserted) != 2 {
		t.Fatalf("upserts: want=2 got=%d", len(graph.upserted))
	}
}

func TestGraphReplicateBatchEmpty(t *testing.T) {
	svc := NewGraphSyncService(newTestLogger(t), &fakeGraph{})
	succeeded, failed, entries := svc.ReplicateBatch(context.Background(), nil)
	if succeeded != 0 || failed != 0 || len(entries) != 0 {
		t.Fatalf("empty batch: got=(%d,%d,%d)", succeeded, failed, len(entries))
	}
}
