package services

import (
	"context"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/qdrant"
)

// PaperScanner pages through the primary store. Read-only.
type PaperScanner interface {
	ScanPage(ctx context.Context, filter domain.ScanFilter, page, batchSize int) ([]domain.PaperRecord, error)
	Count(ctx context.Context, filter domain.ScanFilter) (int64, error)
	FindByID(ctx context.Context, id string) (*domain.PaperRecord, error)
}

// TrackingLedger records successful replications and supports drift
// correction.
type TrackingLedger interface {
	MarkSyncedBulk(ctx context.Context, entries []domain.LedgerEntry) error
	AllTrackedIDs(ctx context.Context) (map[string]struct{}, error)
	Fingerprints(ctx context.Context, ids []string) (map[string]string, error)
	Remove(ctx context.Context, ids []string) (int64, error)
}

// GraphWriter upserts one paper into the graph store.
type GraphWriter interface {
	UpsertPaper(ctx context.Context, p domain.PaperRecord) error
}

// VectorWriter upserts points into the vector store.
type VectorWriter interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []qdrant.Point) error
	UpsertOne(ctx context.Context, p qdrant.Point) error
}

// Embedder is the external embedding collaborator.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// DerivedEnumerator lists the paper ids actually present in a derived
// store, for reconciliation.
type DerivedEnumerator interface {
	PresentIDs(ctx context.Context) (map[string]struct{}, error)
}
