package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// Logging logs every request to the local API with a request id the
// extension can correlate.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Generate (or reuse) a unique request ID.
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		} else if c.Request.URL.Path == "/api/badge" {
			// polled constantly by the extension
			level = slog.LevelDebug
		}

		slog.Log(c.Request.Context(), level, "HTTP request completed",
			"request_id", requestID,
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"uri", c.Request.RequestURI,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"user_agent", c.Request.UserAgent(),
			"errors", c.Errors.ByType(gin.ErrorTypePrivate).String(),
		)
	}
}
