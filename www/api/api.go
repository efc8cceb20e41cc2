package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"terriyaki/engine"
	"terriyaki/engine/backend"
	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/detector"
)

var (
	conf      *config.ConfigSettings
	eng       *engine.BadgeEngine
	hub       *bridge.Hub
	detectors *detector.Manager
)

func SetConfig(c *config.ConfigSettings) {
	conf = c
}

func SetEngine(e *engine.BadgeEngine) {
	eng = e
}

func SetHub(h *bridge.Hub) {
	hub = h
}

func SetDetectors(m *detector.Manager) {
	detectors = m
}

// abortWithError maps backend failures onto the local API: a rejected token
// stays a 401, anything else from the backend is a bad gateway.
func abortWithError(c *gin.Context, err error) {
	c.Error(err)
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "auth token rejected by backend"})
	case errors.As(err, &statusErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": statusErr.Code})
	default:
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
