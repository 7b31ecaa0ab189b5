package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
	"github.com/kha86lilo/quotescan/pkg/models"
)

type JobHandler struct {
	jobs   services.JobTrackerInterface
	logger *logrus.Logger
}

type JobStatusResponse struct {
	ID              uuid.UUID           `json:"id"`
	Status          models.JobStatus    `json:"status"`
	Progress        int                 `json:"progress"`
	TotalQuotes     int                 `json:"total_quotes"`
	ProcessedQuotes int                 `json:"processed_quotes"`
	MatchesCreated  int                 `json:"matches_created"`
	Errors          []models.BatchError `json:"errors,omitempty"`
	CancelRequested bool                `json:"cancel_requested"`
}

func NewJobHandler(logger *logrus.Logger, jobs services.JobTrackerInterface) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		logger: logger,
	}
}

func (h *JobHandler) Get(c *gin.Context) {
	jobID, ok := parseIDParam(c, "INVALID_JOB_ID", "Invalid job ID format")
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "Job not found",
				},
			})
			return
		}
		h.logger.WithError(err).WithField("job_id", jobID).Error("Failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "JOB_LOOKUP_FAILED",
				"message": "Failed to load job",
			},
		})
		return
	}

	c.JSON(http.StatusOK, jobStatusResponse(job))
}

// Cancel requests cancellation; the orchestrator honors the flag between
// quotes, so a processing job may still finish its current quote.
func (h *JobHandler) Cancel(c *gin.Context) {
	jobID, ok := parseIDParam(c, "INVALID_JOB_ID", "Invalid job ID format")
	if !ok {
		return
	}

	job, err := h.jobs.RequestCancel(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "Job not found",
				},
			})
			return
		}
		h.logger.WithError(err).WithField("job_id", jobID).Error("Failed to cancel job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "JOB_CANCEL_FAILED",
				"message": "Failed to cancel job",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, jobStatusResponse(job))
}

func jobStatusResponse(job *models.BatchJob) JobStatusResponse {
	return JobStatusResponse{
		ID:              job.ID,
		Status:          job.Status,
		Progress:        job.Progress(),
		TotalQuotes:     job.TotalQuotes,
		ProcessedQuotes: job.ProcessedQuotes,
		MatchesCreated:  job.MatchesCreated,
		Errors:          job.Errors,
		CancelRequested: job.CancelRequested,
	}
}
