package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/paperscope/backend/internal/data/papers"
	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/qdrant"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() {
		log.Sync()
	})
	return log
}

type fakeGraph struct {
	upserted []string
	failIDs  map[string]bool
}

func (f *fakeGraph) UpsertPaper(_ context.Context, p domain.PaperRecord) error {
	if f.failIDs[p.ID] {
		return fmt.Errorf("boom: %s", p.ID)
	}
	f.upserted = append(f.upserted, p.ID)
	return nil
}

type fakeEmbedder struct {
	dim        int
	failBatch  bool
	failTexts  map[string]bool
	batchCalls int
	callTexts  [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.callTexts = append(f.callTexts, append([]string(nil), texts...))
	if len(texts) > 1 {
		f.batchCalls++
		if f.failBatch {
			return nil, fmt.Errorf("batch embed failed")
		}
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if f.failTexts[text] {
			return nil, fmt.Errorf("cannot embed %q", text)
		}
		vec := make([]float32, f.dim)
		vec[0] = float32(len(text))
		out = append(out, vec)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeVectors struct {
	ensureErr    error
	bulkErr      error
	failPointIDs map[string]bool
	upserted     []qdrant.Point
	oneCalls     int
}

func (f *fakeVectors) EnsureCollection(context.Context) error { return f.ensureErr }

func (f *fakeVectors) Upsert(_ context.Context, points []qdrant.Point) error {
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.upserted = append(f.upserted, points...)
	return nil
}

func (f *fakeVectors) UpsertOne(_ context.Context, p qdrant.Point) error {
	f.oneCalls++
	if f.failPointIDs[p.ID] {
		return fmt.Errorf("point rejected: %s", p.ID)
	}
	f.upserted = append(f.upserted, p)
	return nil
}

type fakeLedger struct {
	marked       []domain.LedgerEntry
	tracked      map[string]struct{}
	fingerprints map[string]string
	removed      []string
	markErr      error
	removeErr    error
	allErr       error
}

func (f *fakeLedger) MarkSyncedBulk(_ context.Context, entries []domain.LedgerEntry) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, entries...)
	return nil
}

func (f *fakeLedger) AllTrackedIDs(context.Context) (map[string]struct{}, error) {
	if f.allErr != nil {
		return nil, f.allErr
	}
	out := make(map[string]struct{}, len(f.tracked))
	for id := range f.tracked {
		out[id] = struct{}{}
	}
	return out, nil
}

func (f *fakeLedger) Fingerprints(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if fp, ok := f.fingerprints[id]; ok {
			out[id] = fp
		}
	}
	return out, nil
}

func (f *fakeLedger) Remove(_ context.Context, ids []string) (int64, error) {
	if f.removeErr != nil {
		return 0, f.removeErr
	}
	f.removed = append(f.removed, ids...)
	return int64(len(ids)), nil
}

type fakeScanner struct {
	records   []domain.PaperRecord
	notFound  bool
	findCalls []string
}

func (f *fakeScanner) matches(p domain.PaperRecord, filter domain.ScanFilter) bool {
	for _, ex := range filter.ExcludeIDs {
		if p.ID == ex {
			return false
		}
	}
	return true
}

func (f *fakeScanner) ScanPage(_ context.Context, filter domain.ScanFilter, page, batchSize int) ([]domain.PaperRecord, error) {
	var all []domain.PaperRecord
	for _, p := range f.records {
		if f.matches(p, filter) {
			all = append(all, p)
		}
	}
	start := page * batchSize
	if start >= len(all) {
		return nil, nil
	}
	end := start + batchSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeScanner) Count(_ context.Context, filter domain.ScanFilter) (int64, error) {
	var n int64
	for _, p := range f.records {
		if f.matches(p, filter) {
			n++
		}
	}
	return n, nil
}

func (f *fakeScanner) FindByID(_ context.Context, id string) (*domain.PaperRecord, error) {
	f.findCalls = append(f.findCalls, id)
	if f.notFound {
		return nil, papers.ErrNotFound
	}
	for _, p := range f.records {
		if p.ID == id {
			rec := p
			return &rec, nil
		}
	}
	return nil, papers.ErrNotFound
}

type fakeEnum struct {
	ids []string
	err error
}

func (f *fakeEnum) PresentIDs(context.Context) (map[string]struct{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]struct{}, len(f.ids))
	for _, id := range f.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func testPaper(id, category string) domain.PaperRecord {
	return domain.PaperRecord{
		ID:         id,
		Title:      "Title " + id,
		Summary:    "Summary of " + id,
		Published:  "2023-01-01T00:00:00Z",
		Authors:    []string{"Author " + id},
		Categories: []string{category},
	}
}
