package papers

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/mongodb"
)

// ErrNotFound is returned when a paper id has no primary-store record.
var ErrNotFound = errors.New("papers: record not found")

// Store is the read-only scanner over the primary paper collection.
type Store struct {
	log  *logger.Logger
	coll *mongo.Collection
}

func NewStore(client *mongodb.Client, log *logger.Logger, collection string) *Store {
	return &Store{
		log:  log.With("store", "Papers"),
		coll: client.Collection(collection),
	}
}

// BuildFilter translates a ScanFilter into the Mongo query document.
func BuildFilter(f domain.ScanFilter) bson.M {
	query := bson.M{}
	if f.RequireText {
		query["summary"] = bson.M{"$exists": true, "$nin": bson.A{nil, ""}}
	}
	if len(f.Categories) > 0 {
		query["categories"] = bson.M{"$in": f.Categories}
	}
	published := bson.M{}
	if f.PublishedFrom != "" {
		published["$gte"] = f.PublishedFrom
	}
	if f.PublishedTo != "" {
		published["$lte"] = f.PublishedTo
	}
	if len(published) > 0 {
		query["published"] = published
	}
	if len(f.ExcludeIDs) > 0 {
		query["id"] = bson.M{"$nin": f.ExcludeIDs}
	}
	return query
}

var scanProjection = bson.D{
	{Key: "id", Value: 1},
	{Key: "title", Value: 1},
	{Key: "summary", Value: 1},
	{Key: "authors", Value: 1},
	{Key: "categories", Value: 1},
	{Key: "published", Value: 1},
	{Key: "updated", Value: 1},
	{Key: "arxiv_url", Value: 1},
	{Key: "pdf_url", Value: 1},
}

// ScanPage fetches one page of the filtered result set under a fixed
// internal-order sort (_id ascending). Skip-based paging is not safe if
// the collection is concurrently written during a scan: rows can be
// skipped or repeated. Resumability therefore leans on the tracking
// ledger, not on this cursor.
func (s *Store) ScanPage(ctx context.Context, filter domain.ScanFilter, page, batchSize int) ([]domain.PaperRecord, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("papers: batch size must be positive, got %d", batchSize)
	}
	if page < 0 {
		return nil, fmt.Errorf("papers: page must be non-negative, got %d", page)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page * batchSize)).
		SetLimit(int64(batchSize)).
		SetProjection(scanProjection)

	cur, err := s.coll.Find(ctx, BuildFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("papers: scan page %d: %w", page, err)
	}
	var out []domain.PaperRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("papers: decode page %d: %w", page, err)
	}
	return out, nil
}

// Count returns the number of papers matching the filter.
func (s *Store) Count(ctx context.Context, filter domain.ScanFilter) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, BuildFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("papers: count: %w", err)
	}
	return n, nil
}

// FindByID loads one record by its natural key.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.PaperRecord, error) {
	var rec domain.PaperRecord
	err := s.coll.FindOne(ctx, bson.M{"id": id}, options.FindOne().SetProjection(scanProjection)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("papers: find %s: %w", id, err)
	}
	return &rec, nil
}
