package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"terriyaki/engine/bridge"
)

var popupActions = map[string]bool{
	bridge.TaskUpdated:   true,
	bridge.TaskCompleted: true,
	bridge.UpdateBadge:   true,
}

// PostMessage is the popup's fire-and-forget channel to the background.
func PostMessage(c *gin.Context) {
	var msg bridge.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !popupActions[msg.Action] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported action: " + msg.Action})
		return
	}

	outcome := hub.Send(c.Request.Context(), bridge.Background, msg)
	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome.String(),
		"badge":   eng.Display.Current(),
	})
}
