package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
)

// Auth guards the ops API with service tokens. A bearer value without dots is
// treated as a raw service key; anything else must be a signed JWT.
func Auth(authService *services.AuthService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "MISSING_AUTHORIZATION",
					"message": "Authorization header is required",
				},
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_AUTHORIZATION_FORMAT",
					"message": "Authorization header must be in format 'Bearer <token>'",
				},
			})
			c.Abort()
			return
		}

		tokenString := tokenParts[1]

		if !strings.Contains(tokenString, ".") {
			scope, err := authService.ValidateAPIKey(tokenString)
			if err != nil {
				logger.WithError(err).Warn("Invalid service key")
				c.JSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{
						"code":    "INVALID_API_KEY",
						"message": "Invalid service key",
					},
				})
				c.Abort()
				return
			}

			serviceName := c.GetHeader("X-Service-Name")
			if serviceName == "" {
				serviceName = "api-key"
			}

			c.Set("service_name", serviceName)
			c.Set("scope", scope)
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(tokenString)
		if err != nil {
			logger.WithError(err).Warn("Invalid service token")
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "INVALID_TOKEN",
					"message": "Invalid or expired token",
				},
			})
			c.Abort()
			return
		}

		c.Set("service_name", claims.ServiceName)
		c.Set("scope", claims.Scope)
		c.Next()
	}
}

// RequireScope rejects callers whose granted scope does not cover the
// required one. A "write" grant covers "read"; the reverse does not hold.
func RequireScope(required string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceName, scope := GetServiceFromContext(c)
		if scopeCovers(scope, required) {
			c.Next()
			return
		}

		logger.WithFields(logrus.Fields{
			"service": serviceName,
			"scope":   scope,
		}).Warn("Scope does not permit operation")
		c.JSON(http.StatusForbidden, gin.H{
			"error": gin.H{
				"code":    "INSUFFICIENT_SCOPE",
				"message": fmt.Sprintf("Operation requires %s scope", required),
			},
		})
		c.Abort()
	}
}

func scopeCovers(granted, required string) bool {
	if granted == required {
		return true
	}
	return granted == "write" && required == "read"
}

func GetServiceFromContext(c *gin.Context) (string, string) {
	serviceName := c.GetString("service_name")
	scope := c.GetString("scope")
	return serviceName, scope
}
