package app

import (
	"context"
	"fmt"
	"time"

	"github.com/paperscope/backend/internal/config"
	"github.com/paperscope/backend/internal/data/graph"
	"github.com/paperscope/backend/internal/data/ledger"
	"github.com/paperscope/backend/internal/data/papers"
	"github.com/paperscope/backend/internal/embed"
	"github.com/paperscope/backend/internal/handlers"
	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/platform/mongodb"
	"github.com/paperscope/backend/internal/platform/neo4jdb"
	"github.com/paperscope/backend/internal/platform/qdrant"
	"github.com/paperscope/backend/internal/services"
)

// App is the wired service graph shared by the HTTP server and the sync
// CLI.
type App struct {
	Runner      *services.SyncRunner
	Reconcile   *services.ReconcileService
	SyncHandler *handlers.SyncHandler
	VectorEnum  services.DerivedEnumerator
	GraphEnum   services.DerivedEnumerator

	mongo *mongodb.Client
	neo   *neo4jdb.Client
	lock  *services.RunLock
}

func (a *App) Close() {
	a.lock.Close()
	closeClients(a.mongo, a.neo)
}

func closeClients(mongo *mongodb.Client, neo *neo4jdb.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if neo != nil {
		_ = neo.Close(ctx)
	}
	if mongo != nil {
		_ = mongo.Close(ctx)
	}
}

// New wires clients, stores, and services top to bottom. Any
// connectivity failure is fatal; a sync process that cannot reach one of
// its stores has nothing useful to do.
func New(log *logger.Logger, cfg *config.Config) (*App, error) {
	// Clients
	log.Info("Wiring clients...")
	mongoClient, err := mongodb.New(log, cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("init mongo client: %w", err)
	}
	neoClient, err := neo4jdb.New(log, cfg.Neo4j)
	if err != nil {
		closeClients(mongoClient, nil)
		return nil, fmt.Errorf("init neo4j client: %w", err)
	}
	qdrantClient, err := qdrant.NewClient(log, cfg.Qdrant)
	if err != nil {
		closeClients(mongoClient, neoClient)
		return nil, fmt.Errorf("init qdrant client: %w", err)
	}
	embedder, err := embed.New(log, cfg.Embedding, cfg.Qdrant.VectorDim)
	if err != nil {
		closeClients(mongoClient, neoClient)
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	runLock, err := services.NewRunLock(log, cfg.Redis, cfg.Qdrant.Collection)
	if err != nil {
		closeClients(mongoClient, neoClient)
		return nil, fmt.Errorf("init run lock: %w", err)
	}

	// Stores
	log.Info("Wiring stores...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	paperStore := papers.NewStore(mongoClient, log, cfg.Mongo.PapersCollection)
	trackingLedger, err := ledger.New(ctx, mongoClient, log, cfg.Mongo.LedgerCollection)
	if err != nil {
		runLock.Close()
		closeClients(mongoClient, neoClient)
		return nil, fmt.Errorf("init ledger: %w", err)
	}
	graphStore := graph.NewStore(neoClient, log)

	// Services
	log.Info("Wiring services...")
	graphSync := services.NewGraphSyncService(log, graphStore)
	vectorSync := services.NewVectorSyncService(log, embedder, qdrantClient)
	reconcile := services.NewReconcileService(log, trackingLedger, paperStore)
	enumPage := cfg.Sync.BatchSize * 10
	vectorEnum := services.NewVectorEnumerator(log, qdrantClient, enumPage)
	graphEnum := services.NewGraphEnumerator(graphStore, enumPage)
	runner := services.NewSyncRunner(
		log,
		cfg.Sync,
		paperStore,
		trackingLedger,
		graphSync,
		vectorSync,
		reconcile,
		vectorEnum,
		graphEnum,
		runLock,
	)

	// Handlers
	syncHandler := handlers.NewSyncHandler(log, runner, reconcile, vectorEnum, graphEnum)

	return &App{
		Runner:      runner,
		Reconcile:   reconcile,
		SyncHandler: syncHandler,
		VectorEnum:  vectorEnum,
		GraphEnum:   graphEnum,
		mongo:       mongoClient,
		neo:         neoClient,
		lock:        runLock,
	}, nil
}
