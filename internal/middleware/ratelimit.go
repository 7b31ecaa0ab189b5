package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kha86lilo/quotescan/internal/services"
)

// RateLimit throttles by authenticated service name. It fails open when the
// check itself errors: losing Redis should degrade job tracking, not lock
// every caller out of the API.
func RateLimit(limiter *services.RateLimitService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		serviceName, _ := GetServiceFromContext(c)
		if serviceName == "" {
			logger.Error("Rate limit middleware called without service context")
			c.Next()
			return
		}

		info, allowed, err := limiter.Allow(c.Request.Context(), serviceName)
		if err != nil {
			logger.WithError(err).Warn("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"service": serviceName,
				"limit":   info.Limit,
			}).Warn("Rate limit exceeded")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
