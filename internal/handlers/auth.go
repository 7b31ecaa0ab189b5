package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
	"github.com/kha86lilo/quotescan/pkg/models"
)

type AuthHandler struct {
	auth      *services.AuthService
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewAuthHandler(logger *logrus.Logger, auth *services.AuthService) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		validator: validator.New(),
		logger:    logger,
	}
}

// IssueToken exchanges a configured service key for a signed JWT.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var request models.AuthRequest

	if err := c.ShouldBindJSON(&request); err != nil {
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
				"message": "Token request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	scope, err := h.auth.ValidateAPIKey(request.APIKey)
	if err != nil {
		h.logger.WithField("service_name", request.ServiceName).Warn("Token request with invalid service key")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{
				"code":    "INVALID_API_KEY",
				"message": "Invalid service key",
			},
		})
		return
	}

	token, expiresAt, err := h.auth.IssueToken(request.ServiceName, scope)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue service token")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "TOKEN_ISSUANCE_FAILED",
				"message": "Failed to issue token",
			},
		})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Scope:     scope,
	})
}
