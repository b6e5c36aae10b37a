package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tagsentry/tagsentry/internal/domain"
	"github.com/tagsentry/tagsentry/internal/dto"
	"github.com/tagsentry/tagsentry/internal/service"
)

const defaultListLimit = 100

// Handler is the thin HTTP boundary in front of the ingest service.
// Malformed batches are rejected here, before any state mutates;
// transient storage exhaustion surfaces as 503 so edge nodes keep the
// batch queued and retry.
type Handler struct {
	ingest service.IngestServicer
	router *gin.Engine
	log    *zap.Logger
}

// NewHandler creates the handler and registers routes.
func NewHandler(ingest service.IngestServicer, log *zap.Logger) *Handler {
	h := &Handler{
		ingest: ingest,
		router: gin.Default(),
		log:    log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/api/tags", h.ingestBatch)
	h.router.GET("/api/events", h.listEvents)
}

// healthCheck handles GET /health
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.ingest.Ping(c.Request.Context()); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ingestBatch handles POST /api/tags
func (h *Handler) ingestBatch(c *gin.Context) {
	var req dto.IngestBatchRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid ingest batch",
			zap.String("source_ip", c.ClientIP()),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	resp, err := h.ingest.ProcessBatch(c.Request.Context(), &req, c.ClientIP())
	if err != nil {
		var sErr *domain.StorageError
		if errors.As(err, &sErr) {
			h.log.Error("Ingest batch deferred, store unavailable",
				zap.String("reader_id", req.ReaderID),
				zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "storage_unavailable",
				Message: "event store write failed, retry the batch",
			})
			return
		}
		h.log.Error("Failed to process ingest batch",
			zap.String("reader_id", req.ReaderID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Info("Batch processed",
		zap.String("reader_id", req.ReaderID),
		zap.Int("events", resp.Count))

	c.JSON(http.StatusOK, resp)
}

// listEvents handles GET /api/events
func (h *Handler) listEvents(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "validation_error",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}

	records, err := h.ingest.RecentEvents(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, records)
}
