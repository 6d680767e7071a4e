package ledger

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/mongodb"
)

// Ledger is the keyed tracking store recording which papers have been
// successfully replicated. It is mutated only by the replicators (on
// success) and by reconciliation (on drift correction).
type Ledger struct {
	log  *logger.Logger
	coll *mongo.Collection
}

func New(ctx context.Context, client *mongodb.Client, log *logger.Logger, collection string) (*Ledger, error) {
	l := &Ledger{
		log:  log.With("store", "Ledger"),
		coll: client.Collection(collection),
	}
	if err := l.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) ensureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "paper_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "processed_at", Value: 1}}},
	}
	if _, err := l.coll.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("ledger: create indexes: %w", err)
	}
	return nil
}

// MarkSynced upserts one entry, stamping ProcessedAt when unset.
func (l *Ledger) MarkSynced(ctx context.Context, entry domain.LedgerEntry) error {
	if entry.PaperID == "" {
		return fmt.Errorf("ledger: paper_id is required")
	}
	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now().UTC()
	}
	_, err := l.coll.UpdateOne(
		ctx,
		bson.M{"paper_id": entry.PaperID},
		bson.M{"$set": entry},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ledger: mark %s: %w", entry.PaperID, err)
	}
	return nil
}

// MarkSyncedBulk upserts a batch in one unordered bulk write, so one bad
// entry does not block the rest.
func (l *Ledger) MarkSyncedBulk(ctx context.Context, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	writes := make([]mongo.WriteModel, 0, len(entries))
	for _, entry := range entries {
		if entry.PaperID == "" {
			continue
		}
		if entry.ProcessedAt.IsZero() {
			entry.ProcessedAt = now
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"paper_id": entry.PaperID}).
			SetUpdate(bson.M{"$set": entry}).
			SetUpsert(true))
	}
	if len(writes) == 0 {
		return nil
	}
	_, err := l.coll.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("ledger: bulk mark %d entries: %w", len(writes), err)
	}
	return nil
}

// IsSynced reports whether a paper has a ledger entry.
func (l *Ledger) IsSynced(ctx context.Context, paperID string) (bool, error) {
	n, err := l.coll.CountDocuments(ctx, bson.M{"paper_id": paperID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("ledger: is synced %s: %w", paperID, err)
	}
	return n > 0, nil
}

// AllTrackedIDs projects the full id set.
func (l *Ledger) AllTrackedIDs(ctx context.Context) (map[string]struct{}, error) {
	cur, err := l.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.D{{Key: "paper_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("ledger: list tracked ids: %w", err)
	}
	var docs []struct {
		PaperID string `bson:"paper_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ledger: decode tracked ids: %w", err)
	}
	out := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		out[d.PaperID] = struct{}{}
	}
	return out, nil
}

// Fingerprints returns paper_id -> content_fingerprint for the given ids.
// Untracked ids are simply absent from the result.
func (l *Ledger) Fingerprints(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	cur, err := l.coll.Find(
		ctx,
		bson.M{"paper_id": bson.M{"$in": ids}},
		options.Find().SetProjection(bson.D{
			{Key: "paper_id", Value: 1},
			{Key: "content_fingerprint", Value: 1},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: load fingerprints: %w", err)
	}
	var docs []struct {
		PaperID            string `bson:"paper_id"`
		ContentFingerprint string `bson:"content_fingerprint"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ledger: decode fingerprints: %w", err)
	}
	out := make(map[string]string, len(docs))
	for _, d := range docs {
		out[d.PaperID] = d.ContentFingerprint
	}
	return out, nil
}

// Remove deletes entries by id set. Only reconciliation calls this.
func (l *Ledger) Remove(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := l.coll.DeleteMany(ctx, bson.M{"paper_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("ledger: remove %d ids: %w", len(ids), err)
	}
	return res.DeletedCount, nil
}
