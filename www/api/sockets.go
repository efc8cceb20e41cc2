package api

import (
	"github.com/gin-gonic/gin"

	"terriyaki/engine/bridge"
)

// PopupSocket attaches an open popup to the bridge.
func PopupSocket(c *gin.Context) {
	hub.Accept(c.Writer, c.Request, bridge.Peer{
		Name:      bridge.Popup,
		DefaultTo: bridge.Background,
		Listen:    true,
	})
}

// ContentSocket carries one tab's page events to its detector.
func ContentSocket(c *gin.Context) {
	tab := c.Param("tab")
	detectors.Attach(tab)
	defer detectors.Detach(tab)

	hub.Accept(c.Writer, c.Request, bridge.Peer{
		Name:      bridge.Content(tab),
		DefaultTo: bridge.Content(tab),
	})
}
