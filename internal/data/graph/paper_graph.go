package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/paperscope/backend/internal/domain"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/neo4jdb"
)

// Store writes the paper graph. Node identity is always the natural key
// (Paper.id, Author.name, Category.name); every write is a MERGE so
// replaying a batch can never create duplicates.
type Store struct {
	log    *logger.Logger
	client *neo4jdb.Client

	schemaOnce sync.Once
}

func NewStore(client *neo4jdb.Client, log *logger.Logger) *Store {
	return &Store{
		log:    log.With("store", "PaperGraph"),
		client: client,
	}
}

// paperParams flattens one record into the Cypher parameter shape.
// Authors and categories are deduplicated and blank entries dropped;
// records without categories get the sentinel category so the paper stays
// reachable by category traversal.
func paperParams(p domain.PaperRecord, syncedAt string) map[string]any {
	authors := dedupeNonEmpty(p.Authors)
	categories := dedupeNonEmpty(p.Categories)
	if len(categories) == 0 {
		categories = []string{domain.SentinelCategory}
	}
	return map[string]any{
		"id":          p.ID,
		"title":       p.Title,
		"summary":     p.Summary,
		"published":   p.Published,
		"updated":     p.Updated,
		"arxiv_url":   p.ArxivURL,
		"pdf_url":     p.PDFURL,
		"authors":     authors,
		"categories":  categories,
		"last_synced": syncedAt,
	}
}

func dedupeNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// UpsertPaper writes one paper, its authors, and its categories as a
// single write transaction: the paper either lands fully or not at all,
// and a failure here is isolated to this paper by the caller.
func (s *Store) UpsertPaper(ctx context.Context, p domain.PaperRecord) error {
	if s.client == nil || s.client.Driver == nil {
		return fmt.Errorf("graph: store not initialized")
	}
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("graph: paper id is required")
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	s.ensureSchema(ctx, session)

	params := paperParams(p, time.Now().UTC().Format(time.RFC3339Nano))
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if res, err := tx.Run(ctx, `
MERGE (p:Paper {id: $id})
SET p.title = $title,
    p.summary = $summary,
    p.published = $published,
    p.updated = $updated,
    p.arxiv_url = $arxiv_url,
    p.pdf_url = $pdf_url,
    p.last_synced = $last_synced
`, params); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if res, err := tx.Run(ctx, `
MATCH (p:Paper {id: $id})
UNWIND $authors AS author
MERGE (a:Author {name: author})
MERGE (a)-[e:AUTHORED]->(p)
SET e.last_synced = $last_synced
`, params); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if res, err := tx.Run(ctx, `
MATCH (p:Paper {id: $id})
UNWIND $categories AS category
MERGE (c:Category {name: category})
MERGE (p)-[e:IN_CATEGORY]->(c)
SET e.last_synced = $last_synced
`, params); err != nil {
			return nil, err
		} else if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: upsert paper %s: %w", p.ID, err)
	}
	return nil
}

// ensureSchema installs uniqueness constraints once per process,
// best-effort: a failure is logged and the sync continues, since MERGE by
// key is still correct without the constraint.
func (s *Store) ensureSchema(ctx context.Context, session neo4j.SessionWithContext) {
	s.schemaOnce.Do(func() {
		stmts := []string{
			`CREATE CONSTRAINT paper_id_unique IF NOT EXISTS FOR (p:Paper) REQUIRE p.id IS UNIQUE`,
			`CREATE CONSTRAINT author_name_unique IF NOT EXISTS FOR (a:Author) REQUIRE a.name IS UNIQUE`,
			`CREATE CONSTRAINT category_name_unique IF NOT EXISTS FOR (c:Category) REQUIRE c.name IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				s.log.Warn("neo4j schema init failed (continuing)", "error", err)
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	})
}

// ListPaperIDs enumerates every Paper id in bounded pages, for
// reconciliation against the graph store.
func (s *Store) ListPaperIDs(ctx context.Context, pageSize int) (map[string]struct{}, error) {
	if s.client == nil || s.client.Driver == nil {
		return nil, fmt.Errorf("graph: store not initialized")
	}
	if pageSize <= 0 {
		pageSize = 1000
	}

	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	out := make(map[string]struct{})
	for skip := 0; ; skip += pageSize {
		ids, err := s.listPaperIDsPage(ctx, session, skip, pageSize)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			out[id] = struct{}{}
		}
		if len(ids) < pageSize {
			return out, nil
		}
	}
}

func (s *Store) listPaperIDsPage(ctx context.Context, session neo4j.SessionWithContext, skip, limit int) ([]string, error) {
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (p:Paper)
RETURN p.id AS id
ORDER BY p.id
SKIP $skip LIMIT $limit
`, map[string]any{"skip": skip, "limit": limit})
		if err != nil {
			return nil, err
		}
		var ids []string
		for res.Next(ctx) {
			if raw, ok := res.Record().Get("id"); ok {
				if id, ok := raw.(string); ok && id != "" {
					ids = append(ids, id)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("graph: list paper ids (skip=%d): %w", skip, err)
	}
	ids, _ := result.([]string)
	return ids, nil
}
