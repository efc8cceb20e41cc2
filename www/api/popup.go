package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/detector"
)

type submitRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// GetPopupStatus is what the popup shows when it opens: who is logged in,
// the badge, and the most recent detection.
func GetPopupStatus(c *gin.Context) {
	settings := eng.Sync.Get()
	resp := gin.H{
		"apiUrl":   settings.ApiUrl,
		"loggedIn": false,
		"badge":    eng.Display.Current(),
	}
	if last, ok, err := eng.LastSolution(); err != nil {
		slog.Error("failed to load last solution", "error", err)
	} else if ok {
		resp["lastSolution"] = gin.H{
			"code":      last.Code,
			"language":  last.Language,
			"timestamp": last.DetectedAt,
		}
	}

	if !settings.HasToken() {
		c.JSON(http.StatusOK, resp)
		return
	}
	if exp, ok := config.TokenExpiry(settings.AuthToken); ok {
		resp["tokenExpires"] = exp
		resp["tokenExpired"] = time.Now().After(exp)
	}

	user, err := eng.Client().VerifyToken(c.Request.Context())
	if err != nil {
		slog.Warn("token verification failed", "error", err)
		resp["error"] = err.Error()
		c.JSON(http.StatusOK, resp)
		return
	}
	resp["loggedIn"] = true
	resp["user"] = user.DisplayName()
	c.JSON(http.StatusOK, resp)
}

// SubmitSolution reports the posted code, or the last detected solution,
// as today's task, then asks the background to refresh the badge.
func SubmitSolution(c *gin.Context) {
	var req submitRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	if req.Code == "" {
		last, ok, err := eng.LastSolution()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no solution detected yet"})
			return
		}
		req.Code, req.Language = last.Code, last.Language
	}
	if req.Language == "" {
		req.Language = detector.DefaultLanguage
	}

	if !eng.Sync.Get().HasToken() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}

	task, err := eng.Client().FinishTask(c.Request.Context(), req.Code, req.Language)
	if err != nil {
		abortWithError(c, err)
		return
	}

	outcome := hub.Send(c.Request.Context(), bridge.Background, bridge.Message{Action: bridge.TaskCompleted})
	c.JSON(http.StatusOK, gin.H{
		"task":    task,
		"outcome": outcome.String(),
		"badge":   eng.Display.Current(),
	})
}
