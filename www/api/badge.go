package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

func GetBadge(c *gin.Context) {
	refreshes, last, outcome := eng.Stats()
	c.JSON(http.StatusOK, gin.H{
		"badge":       eng.Display.Current(),
		"refreshes":   refreshes,
		"lastRefresh": last,
		"outcome":     outcome,
	})
}

// StreamBadge sends the current badge and then every change as server-sent
// events until the client goes away.
func StreamBadge(c *gin.Context) {
	updates, cancel := eng.Display.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case state := <-updates:
			c.SSEvent("badge", state)
			return true
		}
	})
}
