package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/gin-gonic/gin"
)

// Compression gzips responses for clients that accept it. Match lists carry
// full quote payloads, so batch reads shrink considerably.
func Compression() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}
		// promhttp negotiates its own encoding on the metrics route.
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		gz := gzip.NewWriter(c.Writer)
		c.Header("Content-Encoding", "gzip")
		c.Header("Vary", "Accept-Encoding")
		c.Writer = &gzipWriter{ResponseWriter: c.Writer, gz: gz}

		c.Next()

		gz.Close()
	}
}

type gzipWriter struct {
	gin.ResponseWriter
	gz *gzip.Writer
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	return g.gz.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.gz.Write([]byte(s))
}
