package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paperscope/backend/internal/platform/logger"
	"github.com/paperscope/backend/internal/services"
)

type SyncHandler struct {
	log       *logger.Logger
	runner    *services.SyncRunner
	reconcile *services.ReconcileService
	vectors   services.DerivedEnumerator
	graph     services.DerivedEnumerator
}

func NewSyncHandler(
	log *logger.Logger,
	runner *services.SyncRunner,
	reconcile *services.ReconcileService,
	vectors services.DerivedEnumerator,
	graph services.DerivedEnumerator,
) *SyncHandler {
	return &SyncHandler{
		log:       log.With("handler", "SyncHandler"),
		runner:    runner,
		reconcile: reconcile,
		vectors:   vectors,
		graph:     graph,
	}
}

type syncRequest struct {
	Reconcile     string   `json:"reconcile"`
	Categories    []string `json:"categories"`
	PublishedFrom string   `json:"published_from"`
	PublishedTo   string   `json:"published_to"`
	MaxPapers     int      `json:"max_papers"`
	Resync        bool     `json:"resync"`
}

func (req syncRequest) options(target services.Target) services.RunOptions {
	return services.RunOptions{
		Target:        target,
		Reconcile:     services.ReconcileMode(req.Reconcile),
		Categories:    req.Categories,
		PublishedFrom: req.PublishedFrom,
		PublishedTo:   req.PublishedTo,
		MaxPapers:     req.MaxPapers,
		Resync:        req.Resync,
	}
}

// POST /api/sync/graph
func (h *SyncHandler) SyncGraph(c *gin.Context) {
	h.run(c, services.TargetGraph)
}

// POST /api/sync/vectors
func (h *SyncHandler) SyncVectors(c *gin.Context) {
	h.run(c, services.TargetVectors)
}

// POST /api/sync
func (h *SyncHandler) SyncAll(c *gin.Context) {
	h.run(c, services.TargetBoth)
}

func (h *SyncHandler) run(c *gin.Context, target services.Target) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}

	stats, err := h.runner.Run(c.Request.Context(), req.options(target))
	if err != nil {
		if errors.Is(err, services.ErrLockHeld) {
			RespondError(c, http.StatusConflict, "run_in_progress", err)
			return
		}
		h.log.Error("Sync run failed", "target", string(target), "error", err)
		RespondError(c, http.StatusInternalServerError, "sync_failed", err)
		return
	}
	RespondOK(c, stats)
}

type reconcileResponse struct {
	Removed int64 `json:"removed"`
	Added   int64 `json:"added"`
}

// POST /api/reconcile?store=vectors|graph
func (h *SyncHandler) Reconcile(c *gin.Context) {
	enum := h.vectors
	if c.Query("store") == "graph" {
		enum = h.graph
	}
	removed, added, err := h.reconcile.Reconcile(c.Request.Context(), enum)
	if err != nil {
		h.log.Error("Reconciliation failed", "error", err)
		RespondError(c, http.StatusInternalServerError, "reconcile_failed", err)
		return
	}
	RespondOK(c, reconcileResponse{Removed: removed, Added: added})
}
