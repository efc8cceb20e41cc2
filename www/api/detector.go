package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"terriyaki/engine/bridge"
)

func GetDetectors(c *gin.Context) {
	tabs := detectors.Tabs()
	sort.Strings(tabs)
	c.JSON(http.StatusOK, gin.H{"tabs": tabs})
}

func GetDetectorStatus(c *gin.Context) {
	askDetector(c, bridge.GetStatus)
}

func CheckDetector(c *gin.Context) {
	askDetector(c, bridge.CheckSolution)
}

func askDetector(c *gin.Context, action string) {
	tab := c.Param("tab")
	reply, outcome := hub.Request(c.Request.Context(), bridge.Content(tab), bridge.Message{Action: action})
	if outcome == bridge.Unreachable {
		c.JSON(http.StatusNotFound, gin.H{"error": "no detector for tab " + tab})
		return
	}
	c.JSON(http.StatusOK, reply)
}
