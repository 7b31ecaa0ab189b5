package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
	"github.com/kha86lilo/quotescan/pkg/models"
)

type MatchHandler struct {
	orchestrator services.MatchOrchestratorInterface
	matches      services.MatchReaderInterface
	jobs         services.JobTrackerInterface
	validator    *validator.Validate
	logger       *logrus.Logger
}

type BatchJobResponse struct {
	JobID       uuid.UUID        `json:"job_id"`
	Status      models.JobStatus `json:"status"`
	TotalQuotes int              `json:"total_quotes"`
	Message     string           `json:"message"`
}

func NewMatchHandler(
	orchestrator services.MatchOrchestratorInterface,
	matches services.MatchReaderInterface,
	jobs services.JobTrackerInterface,
	logger *logrus.Logger,
) *MatchHandler {
	return &MatchHandler{
		orchestrator: orchestrator,
		matches:      matches,
		jobs:         jobs,
		validator:    validator.New(),
		logger:       logger,
	}
}

// BatchMatch runs matching for a set of quotes. Sync mode blocks for the
// result; async mode registers a BatchJob and answers 202 with its id.
func (h *MatchHandler) BatchMatch(c *gin.Context) {
	var request models.BatchMatchRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in batch match request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_JSON",
				"message": "Invalid JSON format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		h.logger.WithError(err).Warn("Batch match validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Batch match validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	opts := matchOptionsFrom(request.UseAI, request.MinScore, request.MaxMatches)

	if request.Async {
		job, err := h.jobs.CreateJob(c.Request.Context(), len(request.QuoteIDs))
		if err != nil {
			h.logger.WithError(err).Error("Failed to create batch job")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "JOB_CREATION_FAILED",
					"message": "Failed to create batch job",
				},
			})
			return
		}

		// The run outlives this request, so it gets a fresh context.
		go h.orchestrator.RunBatchJob(context.Background(), job.ID, request.QuoteIDs, opts)

		h.logger.WithFields(logrus.Fields{
			"job_id": job.ID,
			"quotes": len(request.QuoteIDs),
		}).Info("Batch matching job queued")

		c.JSON(http.StatusAccepted, BatchJobResponse{
			JobID:       job.ID,
			Status:      job.Status,
			TotalQuotes: job.TotalQuotes,
			Message:     "Batch matching queued",
		})
		return
	}

	result, err := h.orchestrator.ProcessEnhancedMatches(c.Request.Context(), request.QuoteIDs, opts)
	if err != nil {
		h.logger.WithError(err).Error("Batch matching failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "BATCH_MATCHING_FAILED",
				"message": "Batch matching failed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Rematch reruns matching for one quote. The body is optional; omitted
// options fall back to config defaults.
func (h *MatchHandler) Rematch(c *gin.Context) {
	quoteID, ok := parseIDParam(c, "INVALID_QUOTE_ID", "Invalid quote ID format")
	if !ok {
		return
	}

	request := &models.RematchRequest{}
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_JSON",
					"message": "Invalid JSON format",
					"details": err.Error(),
				},
			})
			return
		}
		if err := h.validator.Struct(request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "VALIDATION_FAILED",
					"message": "Rematch validation failed",
					"details": err.Error(),
				},
			})
			return
		}
	}

	detail, err := h.orchestrator.Rematch(c.Request.Context(), quoteID, request)
	if err != nil {
		if errors.Is(err, services.ErrQuoteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": gin.H{
					"code":    "QUOTE_NOT_FOUND",
					"message": "Quote not found",
				},
			})
			return
		}
		h.logger.WithError(err).WithField("quote_id", quoteID).Error("Rematch failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "REMATCH_FAILED",
				"message": "Rematch failed",
			},
		})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// GetMatches lists the live persisted matches for a quote.
func (h *MatchHandler) GetMatches(c *gin.Context) {
	quoteID, ok := parseIDParam(c, "INVALID_QUOTE_ID", "Invalid quote ID format")
	if !ok {
		return
	}

	opts := services.MatchQueryOptions{}
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			opts.Limit = limit
		}
	}
	if minScoreStr := c.Query("min_score"); minScoreStr != "" {
		if minScore, err := strconv.ParseFloat(minScoreStr, 64); err == nil && minScore >= 0 && minScore <= 1 {
			opts.MinScore = minScore
		}
	}

	matches, err := h.matches.GetMatchesForQuote(c.Request.Context(), quoteID, opts)
	if err != nil {
		h.logger.WithError(err).WithField("quote_id", quoteID).Error("Failed to load matches")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "MATCH_LOOKUP_FAILED",
				"message": "Failed to load matches",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quote_id": quoteID,
		"matches":  matches,
		"count":    len(matches),
	})
}

func matchOptionsFrom(useAI bool, minScore *float64, maxMatches *int) models.MatchOptions {
	opts := models.MatchOptions{UseAI: useAI}
	if minScore != nil {
		opts.MinScore = *minScore
	}
	if maxMatches != nil {
		opts.MaxMatches = *maxMatches
	}
	return opts
}

func parseIDParam(c *gin.Context, code, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    code,
				"message": message,
			},
		})
		return uuid.Nil, false
	}
	return id, true
}
