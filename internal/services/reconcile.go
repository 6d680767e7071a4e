package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/paperscope/backend/internal/data/papers"
	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/qdrant"
)

// ReconcileService aligns the tracking ledger with what a derived store
// actually contains. It may run before a sync pass (so items already
// replicated by an interrupted run are not re-processed) or after (to
// pick up items written by some other process).
type ReconcileService struct {
	log     *logger.Logger
	ledger  TrackingLedger
	primary PaperScanner
}

func NewReconcileService(log *logger.Logger, ledger TrackingLedger, primary PaperScanner) *ReconcileService {
	return &ReconcileService{
		log:     log.With("service", "Reconcile"),
		ledger:  ledger,
		primary: primary,
	}
}

// Reconcile enumerates the derived store fully before touching the
// ledger, then applies deletions and insertions in that order. Both halves
// are idempotent, so a crash between them is healed by the next run
// instead of losing state.
func (s *ReconcileService) Reconcile(ctx context.Context, derived DerivedEnumerator) (removed, added int64, err error) {
	present, err := derived.PresentIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(present) == 0 {
		// An empty derived store usually means a fresh collection about to
		// be filled; dropping the whole ledger here would force a full
		// re-sync, so leave it alone.
		s.log.Info("Derived store is empty; ledger left unchanged")
		return 0, 0, nil
	}

	tracked, err := s.ledger.AllTrackedIDs(ctx)
	if err != nil {
		return 0, 0, err
	}

	stale := make([]string, 0)
	for id := range tracked {
		if _, ok := present[id]; !ok {
			stale = append(stale, id)
		}
	}
	untracked := make([]string, 0)
	for id := range present {
		if _, ok := tracked[id]; !ok {
			untracked = append(untracked, id)
		}
	}

	if len(stale) > 0 {
		n, err := s.ledger.Remove(ctx, stale)
		if err != nil {
			return 0, 0, err
		}
		removed = n
		s.log.Info("Removed stale ledger entries", "count", removed)
	}

	if len(untracked) > 0 {
		entries := make([]domain.LedgerEntry, 0, len(untracked))
		for _, id := range untracked {
			entries = append(entries, s.backfillEntry(ctx, id))
		}
		if err := s.ledger.MarkSyncedBulk(ctx, entries); err != nil {
			return removed, 0, err
		}
		added = int64(len(entries))
		s.log.Info("Backfilled untracked ledger entries", "count", added)
	}

	return removed, added, nil
}

// backfillEntry recovers the category (and content metadata) from the
// primary store. A missing primary record still gets a minimal entry with
// the sentinel category, so the item is not rediscovered as untracked on
// every run.
func (s *ReconcileService) backfillEntry(ctx context.Context, paperID string) domain.LedgerEntry {
	entry := domain.LedgerEntry{
		PaperID:  paperID,
		Category: domain.SentinelCategory,
	}
	rec, err := s.primary.FindByID(ctx, paperID)
	if err != nil {
		if !errors.Is(err, papers.ErrNotFound) {
			s.log.Warn("Primary lookup failed during backfill", "paper_id", paperID, "error", err)
		}
		return entry
	}
	entry.Category = rec.PrimaryCategory()
	entry.ContentFingerprint = rec.Fingerprint()
	entry.SummaryLength = len(rec.Summary)
	entry.Published = rec.Published
	return entry
}

// VectorEnumerator lists paper ids present in the vector store by
// scrolling the full collection in bounded pages.
type VectorEnumerator struct {
	log      *logger.Logger
	client   *qdrant.Client
	pageSize int
}

func NewVectorEnumerator(log *logger.Logger, client *qdrant.Client, pageSize int) *VectorEnumerator {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &VectorEnumerator{
		log:      log.With("service", "VectorEnumerator"),
		client:   client,
		pageSize: pageSize,
	}
}

func (e *VectorEnumerator) PresentIDs(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	var offset json.RawMessage
	for {
		points, next, err := e.client.Scroll(ctx, offset, e.pageSize)
		if err != nil {
			return nil, err
		}
		for _, pt := range points {
			if id, ok := pt.Payload["paper_id"].(string); ok && id != "" {
				out[id] = struct{}{}
			}
		}
		if len(points) == 0 || next == nil {
			return out, nil
		}
		offset = next
	}
}

// GraphEnumerator adapts the paper-graph store to the enumerator shape.
type GraphEnumerator struct {
	store interface {
		ListPaperIDs(ctx context.Context, pageSize int) (map[string]struct{}, error)
	}
	pageSize int
}

func NewGraphEnumerator(store interface {
	ListPaperIDs(ctx context.Context, pageSize int) (map[string]struct{}, error)
}, pageSize int) *GraphEnumerator {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &GraphEnumerator{store: store, pageSize: pageSize}
}

func (e *GraphEnumerator) PresentIDs(ctx context.Context) (map[string]struct{}, error) {
	return e.store.ListPaperIDs(ctx, e.pageSize)
}
