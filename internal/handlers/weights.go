package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
)

type WeightHandler struct {
	weights services.WeightStoreInterface
	logger  *logrus.Logger
}

func NewWeightHandler(logger *logrus.Logger, weights services.WeightStoreInterface) *WeightHandler {
	return &WeightHandler{
		weights: weights,
		logger:  logger,
	}
}

func (h *WeightHandler) GetActive(c *gin.Context) {
	active, err := h.weights.GetActiveWeights(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load active weights")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "WEIGHTS_LOOKUP_FAILED",
				"message": "Failed to load active weights",
			},
		})
		return
	}

	c.JSON(http.StatusOK, active)
}

func (h *WeightHandler) ListVersions(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	versions, err := h.weights.ListWeightVersions(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list weight versions")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "WEIGHT_VERSIONS_FAILED",
				"message": "Failed to list weight versions",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"versions": versions,
		"count":    len(versions),
	})
}
