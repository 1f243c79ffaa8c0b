package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/bulk-sync/internal/adapter"
	"github.com/cuongbtq/bulk-sync/internal/api/dto"
	"github.com/cuongbtq/bulk-sync/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxJobListSize = 100

// StartSync handles POST /api/v1/sync/:entity_type
// Validates the batch shape and launches a background sync job
func (h *SyncHandler) StartSync(c *gin.Context) {
	entityType := c.Param("entity_type")

	h.logger.Info("StartSync called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("entity_type", entityType),
	)

	var req dto.StartSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	records := make([]adapter.Record, len(req.Records))
	for i, rec := range req.Records {
		records[i] = adapter.Record(rec)
	}

	jobID, err := h.orchestrator.Start(entityType, records)
	if err != nil {
		h.logger.Error("Rejected sync request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.StartSyncResponse{
		JobID:  jobID,
		Status: string(ledger.StatusPending),
	})
}

// GetJob handles GET /api/v1/sync/jobs/:job_id
// Returns the current snapshot of a job, including per-record results
func (h *SyncHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.ledger.GetJob(jobID)
	if err != nil {
		if errors.Is(err, ledger.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// ListJobs handles GET /api/v1/sync/jobs
// Lists recent jobs, newest first
func (h *SyncHandler) ListJobs(c *gin.Context) {
	limit := maxJobListSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxJobListSize {
			limit = n
		}
	}
	jobs := h.ledger.ListJobs(limit)

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i, job := range jobs {
		resp.Jobs[i] = dto.FromJob(job)
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/v1/sync/jobs/:job_id/cancel
// Requests cooperative cancellation; already-terminal jobs are unaffected
func (h *SyncHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("job_id")

	h.logger.Info("CancelJob called", slog.String("job_id", jobID))

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	if err := h.ledger.CancelJob(jobID); err != nil {
		if errors.Is(err, ledger.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to cancel job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job",
		})
		return
	}

	job, err := h.ledger.GetJob(jobID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}
