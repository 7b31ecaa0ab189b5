package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
	"github.com/kha86lilo/quotescan/pkg/models"
)

type FeedbackHandler struct {
	ledger    services.FeedbackLedgerInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewFeedbackHandler(logger *logrus.Logger, ledger services.FeedbackLedgerInterface) *FeedbackHandler {
	return &FeedbackHandler{
		ledger:    ledger,
		validator: validator.New(),
		logger:    logger,
	}
}

// Submit records a reviewer's rating for a match.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	matchID, ok := parseIDParam(c, "INVALID_MATCH_ID", "Invalid match ID format")
	if !ok {
		return
	}

	var request models.MatchFeedbackRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in feedback request")
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
		h.logger.WithError(err).Warn("Feedback validation failed")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Feedback validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	feedback, err := h.ledger.SubmitFeedback(c.Request.Context(), matchID, &request)
	if err != nil {
		h.logger.WithError(err).WithField("match_id", matchID).Error("Failed to record feedback")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "FEEDBACK_SUBMISSION_FAILED",
				"message": "Failed to record feedback",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, feedback)
}

// Statistics returns ledger-wide feedback totals, optionally filtered by
// reviewer and time window.
func (h *FeedbackHandler) Statistics(c *gin.Context) {
	filters := models.FeedbackFilters{}

	if reviewer := c.Query("reviewer"); reviewer != "" {
		filters.Reviewer = &reviewer
	}
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_TIME_FILTER",
					"message": "since must be RFC3339",
				},
			})
			return
		}
		filters.Since = &since
	}
	if untilStr := c.Query("until"); untilStr != "" {
		until, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_TIME_FILTER",
					"message": "until must be RFC3339",
				},
			})
			return
		}
		filters.Until = &until
	}

	stats, err := h.ledger.Statistics(c.Request.Context(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load feedback statistics")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "STATISTICS_FAILED",
				"message": "Failed to load feedback statistics",
			},
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RecordOutcome lands ground-truth pricing for a quote.
func (h *FeedbackHandler) RecordOutcome(c *gin.Context) {
	quoteID, ok := parseIDParam(c, "INVALID_QUOTE_ID", "Invalid quote ID format")
	if !ok {
		return
	}

	var request models.PricingOutcomeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in pricing outcome request")
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
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Pricing outcome validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	if request.ActualPriceQuoted == nil && request.ActualPriceAccepted == nil && request.JobWon == nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "EMPTY_OUTCOME",
				"message": "At least one outcome field is required",
			},
		})
		return
	}

	outcome, err := h.ledger.RecordPricingOutcome(c.Request.Context(), quoteID, &request)
	if err != nil {
		h.logger.WithError(err).WithField("quote_id", quoteID).Error("Failed to record pricing outcome")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "OUTCOME_RECORDING_FAILED",
				"message": "Failed to record pricing outcome",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, outcome)
}
