package services

import (
	"context"
	"errors"
	"strings"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/qdrant"
)

// VectorSyncService replicates paper summaries into the vector store.
type VectorSyncService struct {
	log      *logger.Logger
	embedder Embedder
	vectors  VectorWriter
}

func NewVectorSyncService(log *logger.Logger, embedder Embedder, vectors VectorWriter) *VectorSyncService {
	return &VectorSyncService{
		log:      log.With("service", "VectorSync"),
		embedder: embedder,
		vectors:  vectors,
	}
}

// EnsureCollection must succeed before the first batch; a dimension
// mismatch is fatal for the run.
func (s *VectorSyncService) EnsureCollection(ctx context.Context) error {
	return s.vectors.EnsureCollection(ctx)
}

// ReplicateBatch embeds and upserts one batch. knownFingerprints maps
// already-tracked paper ids to their last synced content fingerprint;
// papers whose content is unchanged are skipped, papers with no summary
// text are skipped, and any single paper's embedding or upsert failure is
// absorbed as a per-item failure. A fatal vector-store configuration error
// is the only error that propagates.
func (s *VectorSyncService) ReplicateBatch(
	ctx context.Context,
	papers []domain.PaperRecord,
	knownFingerprints map[string]string,
) (succeeded, failed, skipped int, entries []domain.LedgerEntry, err error) {
	type candidate struct {
		paper       domain.PaperRecord
		fingerprint string
		vector      []float32
	}

	candidates := make([]candidate, 0, len(papers))
	for _, p := range papers {
		if strings.TrimSpace(p.Summary) == "" {
			s.log.Debug("Skipping paper without summary", "paper_id", p.ID)
			skipped++
			continue
		}
		fp := p.Fingerprint()
		if prev, ok := knownFingerprints[p.ID]; ok && prev == fp {
			skipped++
			continue
		}
		candidates = append(candidates, candidate{paper: p, fingerprint: fp})
	}
	if len(candidates) == 0 {
		return succeeded, failed, skipped, entries, nil
	}

	// One embedding call for the whole batch; if the batch call fails,
	// retry per paper so one malformed summary cannot sink its neighbors.
	texts := make([]string, len(candidates))
	for i := range candidates {
		texts[i] = candidates[i].paper.Summary
	}
	embedded := candidates[:0]
	if vectors, embedErr := s.embedder.Embed(ctx, texts); embedErr == nil && len(vectors) == len(candidates) {
		for i := range candidates {
			candidates[i].vector = vectors[i]
			embedded = append(embedded, candidates[i])
		}
	} else {
		if embedErr != nil {
			s.log.Warn("Batch embedding failed; retrying per paper", "batch_size", len(candidates), "error", embedErr)
		}
		for i := range candidates {
			vecs, oneErr := s.embedder.Embed(ctx, []string{candidates[i].paper.Summary})
			if oneErr != nil || len(vecs) != 1 {
				s.log.Error("Embedding failed", "paper_id", candidates[i].paper.ID, "error", oneErr)
				failed++
				continue
			}
			candidates[i].vector = vecs[0]
			embedded = append(embedded, candidates[i])
		}
	}
	if len(embedded) == 0 {
		return succeeded, failed, skipped, entries, nil
	}

	points := make([]qdrant.Point, len(embedded))
	for i, c := range embedded {
		points[i] = qdrant.Point{
			ID:      qdrant.PointID(c.paper.ID),
			Vector:  c.vector,
			Payload: pointPayload(c.paper),
		}
	}

	if upsertErr := s.vectors.Upsert(ctx, points); upsertErr != nil {
		if fatal := asFatal(upsertErr); fatal != nil {
			return succeeded, failed, skipped, entries, fatal
		}
		// Bulk write rejected: fall back to per-point upserts so the diff
		// between requested and applied points becomes per-item counts.
		s.log.Warn("Bulk vector upsert failed; retrying per point", "points", len(points), "error", upsertErr)
		kept := embedded[:0]
		for i, pt := range points {
			if oneErr := s.vectors.UpsertOne(ctx, pt); oneErr != nil {
				if fatal := asFatal(oneErr); fatal != nil {
					return succeeded, failed, skipped, entries, fatal
				}
				s.log.Error("Vector upsert failed", "paper_id", embedded[i].paper.ID, "error", oneErr)
				failed++
				continue
			}
			kept = append(kept, embedded[i])
		}
		embedded = kept
	}

	entries = make([]domain.LedgerEntry, 0, len(embedded))
	for _, c := range embedded {
		succeeded++
		entries = append(entries, domain.LedgerEntry{
			PaperID:            c.paper.ID,
			Category:           c.paper.PrimaryCategory(),
			DerivedRef:         qdrant.PointID(c.paper.ID),
			ContentFingerprint: c.fingerprint,
			SummaryLength:      len(c.paper.Summary),
			Published:          c.paper.Published,
		})
	}
	return succeeded, failed, skipped, entries, nil
}

// pointPayload is the denormalized slice of the record stored next to the
// vector for downstream filtering and display.
func pointPayload(p domain.PaperRecord) map[string]any {
	return map[string]any{
		"paper_id":       p.ID,
		"title":          p.Title,
		"category":       p.PrimaryCategory(),
		"published":      p.Published,
		"summary":        p.Summary,
		"summary_length": len(p.Summary),
	}
}

func asFatal(err error) error {
	var opErr *qdrant.OperationError
	if errors.As(err, &opErr) && opErr.IsFatal() {
		return err
	}
	return nil
}
