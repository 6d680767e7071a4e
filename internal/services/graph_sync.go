package services

import (
	"context"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
)

// GraphSyncService replicates paper batches into the graph store.
type GraphSyncService struct {
	log   *logger.Logger
	graph GraphWriter
}

func NewGraphSyncService(log *logger.Logger, graph GraphWriter) *GraphSyncService {
	return &GraphSyncService{
		log:   log.With("service", "GraphSync"),
		graph: graph,
	}
}

// ReplicateBatch upserts each paper independently. A failure on one paper
// is logged with its natural key, counted, and never aborts the batch.
// Successful papers come back as ledger entries for the caller to commit.
func (s *GraphSyncService) ReplicateBatch(ctx context.Context, papers []domain.PaperRecord) (succeeded, failed int, entries []domain.LedgerEntry) {
	entries = make([]domain.LedgerEntry, 0, len(papers))
	for _, p := range papers {
		if err := s.graph.UpsertPaper(ctx, p); err != nil {
			s.log.Error("Graph upsert failed", "paper_id", p.ID, "error", err)
			failed++
			continue
		}
		succeeded++
		entries = append(entries, domain.LedgerEntry{
			PaperID:            p.ID,
			Category:           p.PrimaryCategory(),
			DerivedRef:         p.ID,
			ContentFingerprint: p.Fingerprint(),
			SummaryLength:      len(p.Summary),
			Published:          p.Published,
		})
	}
	return succeeded, failed, entries
}
