package services

import (
	"context"
	"errors"
	"testing"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/qdrant"
)

func TestVectorReplicateBatchHappyPath(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	vectors := &fakeVectors{}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	batch := []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.AI"),
	}
	succeeded, failed, skipped, entries, err := svc.ReplicateBatch(context.Background(), batch, nil)
	if err != nil {
		t.Fatalf("ReplicateBatch: %v", err)
	}
	if succeeded != 2 || failed != 0 || skipped != 0 {
		t.Fatalf("counts: want=(2,0,0) got=(%d,%d,%d)", succeeded, failed, skipped)
	}
	if embedder.batchCalls != 1 {
		t.Fatalf("embedding must be batched: batch_calls=%d", embedder.batchCalls)
	}
	if len(vectors.upserted) != 2 {
		t.Fatalf("upserted points: want=2 got=%d", len(vectors.upserted))
	}
	if vectors.upserted[0].ID != qdrant.PointID("p1") {
		t.Fatalf("point id must be the deterministic mapping of the paper id, got=%q", vectors.upserted[0].ID)
	}
	if vectors.upserted[0].Payload["paper_id"] != "p1" {
		t.Fatalf("payload paper_id: got=%v", vectors.upserted[0].Payload["paper_id"])
	}
	if entries[0].DerivedRef != qdrant.PointID("p1") {
		t.Fatalf("entry derived ref: want point id, got=%q", entries[0].DerivedRef)
	}
	if entries[0].ContentFingerprint != batch[0].Fingerprint() {
		t.Fatalf("entry fingerprint mismatch")
	}
}

func TestVectorReplicateBatchSkipsEmptySummaries(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	vectors := &fakeVectors{}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	blank := testPaper("p2", "cs.LG")
	blank.Summary = "   "
	succeeded, failed, skipped, entries, err := svc.ReplicateBatch(context.Background(), []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		blank,
	}, nil)
	if err != nil {
		t.Fatalf("ReplicateBatch: %v", err)
	}
	if succeeded != 1 || failed != 0 || skipped != 1 {
		t.Fatalf("counts: want=(1,0,1) got=(%d,%d,%d)", succeeded, failed, skipped)
	}
	for _, e := range entries {
		if e.PaperID == "p2" {
			t.Fatalf("skipped paper must not produce a ledger entry")
		}
	}
}

func TestVectorReplicateBatchSkipsUnchangedFingerprints(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	vectors := &fakeVectors{}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	p1 := testPaper("p1", "cs.LG")
	p2 := testPaper("p2", "cs.LG")
	known := map[string]string{
		"p1": p1.Fingerprint(), // unchanged
		"p2": "stale-fingerprint",
	}
	succeeded, failed, skipped, entries, err := svc.ReplicateBatch(context.Background(), []domain.PaperRecord{p1, p2}, known)
	if err != nil {
		t.Fatalf("ReplicateBatch: %v", err)
	}
	if succeeded != 1 || failed != 0 || skipped != 1 {
		t.Fatalf("counts: want=(1,0,1) got=(%d,%d,%d)", succeeded, failed, skipped)
	}
	if len(entries) != 1 || entries[0].PaperID != "p2" {
		t.Fatalf("only the changed paper should be re-synced, entries=%+v", entries)
	}
}

func TestVectorReplicateBatchFallsBackToPerPaperEmbedding(t *testing.T) {
	p2 := testPaper("p2", "cs.LG")
	embedder := &fakeEmbedder{
		dim:       3,
		failBatch: true,
		failTexts: map[string]bool{p2.Summary: true},
	}
	vectors := &fakeVectors{}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	succeeded, failed, skipped, entries, err := svc.ReplicateBatch(context.Background(), []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		p2,
		testPaper("p3", "cs.LG"),
	}, nil)
	if err != nil {
		t.Fatalf("ReplicateBatch: %v", err)
	}
	if succeeded != 2 || failed != 1 || skipped != 0 {
		t.Fatalf("counts: want=(2,1,0) got=(%d,%d,%d)", succeeded, failed, skipped)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: want=2 got=%d", len(entries))
	}
	for _, e := range entries {
		if e.PaperID == "p2" {
			t.Fatalf("paper with failed embedding must not be marked synced")
		}
	}
}

func TestVectorReplicateBatchFallsBackToPerPointUpsert(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	vectors := &fakeVectors{
		bulkErr:      errors.New("bulk write rejected"),
		failPointIDs: map[string]bool{qdrant.PointID("p2"): true},
	}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	succeeded, failed, skipped, entries, err := svc.ReplicateBatch(context.Background(), []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
		testPaper("p2", "cs.LG"),
		testPaper("p3", "cs.LG"),
	}, nil)
	if err != nil {
		t.Fatalf("ReplicateBatch: %v", err)
	}
	if succeeded != 2 || failed != 1 || skipped != 0 {
		t.Fatalf("counts: want=(2,1,0) got=(%d,%d,%d)", succeeded, failed, skipped)
	}
	if vectors.oneCalls != 3 {
		t.Fatalf("per-point fallback calls: want=3 got=%d", vectors.oneCalls)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: want=2 got=%d", len(entries))
	}
}

func TestVectorReplicateBatchPropagatesFatalErrors(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	vectors := &fakeVectors{
		bulkErr: &qdrant.OperationError{
			Code:      qdrant.OperationErrorDimensionMismatch,
			Operation: "upsert",
			Message:   "collection has vector size 768",
		},
	}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	_, _, _, _, err := svc.ReplicateBatch(context.Background(), []domain.PaperRecord{
		testPaper("p1", "cs.LG"),
	}, nil)
	if err == nil {
		t.Fatalf("dimension mismatch must abort the run")
	}
	var opErr *qdrant.OperationError
	if !errors.As(err, &opErr) || !opErr.IsFatal() {
		t.Fatalf("expected fatal operation error, got=%v", err)
	}
	if vectors.oneCalls != 0 {
		t.Fatalf("fatal error must not trigger per-point retries")
	}
}

func TestVectorReplicateBatchIdempotentPointIDs(t *testing.T) {
	embedder := &fakeEmbedder{dim: 3}
	vectors := &fakeVectors{}
	svc := NewVectorSyncService(newTestLogger(t), embedder, vectors)

	batch := []domain.PaperRecord{testPaper("p1", "cs.LG")}
	for i := 0; i < 2; i++ {
		if _, _, _, _, err := svc.ReplicateBatch(context.Background(), batch, nil); err != nil {
			t.Fatalf("ReplicateBatch run %d: %v", i, err)
		}
	}
	if len(vectors.upserted) != 2 {
		t.Fatalf("upserts: want=2 got=%d", len(vectors.upserted))
	}
	if vectors.upserted[0].ID != vectors.upserted[1].ID {
		t.Fatalf("replaying a paper must hit the same point id: %q vs %q",
			vectors.upserted[0].ID, vectors.upserted[1].ID)
	}
}
