package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"terriyaki/engine/config"
)

// OriginAllowed reports whether a browser origin is one of the configured
// extension origins.
func OriginAllowed(origin string, allowed []string) bool {
	normalized, err := config.NormalizeOrigin(origin)
	if err != nil {
		return false
	}
	return slices.Contains(allowed, normalized)
}

// Cors only answers browsers running the configured extension. Any request
// that carries a foreign Origin is refused before it reaches a handler;
// requests without one come from local tools and pass untouched.
func Cors(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if !OriginAllowed(origin, allowed) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		c.Header("Access-Control-Expose-Headers", RequestIDHeader)

		// If preflight request, respond with 204
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
