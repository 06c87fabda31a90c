package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paramed/reconciler/internal/domain"
	"github.com/paramed/reconciler/internal/logging"
	"github.com/paramed/reconciler/internal/usecase"
)

const (
	serviceName    = "catalog-reconciler"
	serviceVersion = "1.0.0"
)

// Reconciler runs one reconciliation pass
type Reconciler interface {
	Run(ctx context.Context, req usecase.RunRequest) (*domain.RunResult, error)
}

// RunReader returns the latest persisted run for a mode
type RunReader interface {
	LatestRun(ctx context.Context, mode domain.Mode) (*domain.RunResult, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	reconciler Reconciler
	records    domain.RecordRepository
	runs       RunReader
}

// NewHandler creates a new HTTP handler. Any dependency may be nil; the
// matching endpoint then answers 503.
func NewHandler(reconciler Reconciler, records domain.RecordRepository, runs RunReader) *Handler {
	return &Handler{
		reconciler: reconciler,
		records:    records,
		runs:       runs,
	}
}

// ReconcileRequest is the body of POST /api/v1/reconcile.
// When Records is empty the stored records of Sources (or all of them) are used.
type ReconcileRequest struct {
	Mode    domain.Mode     `json:"mode"`
	Sources []string        `json:"sources"`
	Records []domain.Record `json:"records"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// Reconcile runs the engine over the request records and returns the result
func (h *Handler) Reconcile(c *gin.Context) {
	if h.reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation engine not configured"})
		return
	}

	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	records := req.Records
	if len(records) == 0 {
		if h.records == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "records are required"})
			return
		}
		stored, err := h.records.LoadRecords(ctx, req.Sources...)
		if err != nil {
			h.respondError(c, err)
			return
		}
		records = stored
	}

	result, err := h.reconciler.Run(ctx, usecase.RunRequest{Mode: req.Mode, Records: records})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// LatestRun returns the most recent persisted run of ?mode= (bipartite by default)
func (h *Handler) LatestRun(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result store not configured"})
		return
	}

	mode := domain.Mode(c.DefaultQuery("mode", string(domain.ModeBipartite)))
	if mode != domain.ModeBipartite && mode != domain.ModeGraph {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be bipartite or graph"})
		return
	}

	run, err := h.runs.LatestRun(c.Request.Context(), mode)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded for mode " + string(mode)})
		return
	}

	c.JSON(http.StatusOK, run)
}

// respondError maps domain errors to HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidConfiguration), errors.Is(err, domain.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrEmbeddingUnavailable), errors.Is(err, domain.ErrIndexUnavailable):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error().Err(err).Int("status", status).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
