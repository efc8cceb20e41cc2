package www

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"terriyaki/engine"
	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/detector"
	"terriyaki/www/api"
	"terriyaki/www/middleware"
)

type Router struct {
	Config    *config.ConfigSettings
	Engine    *engine.BadgeEngine
	Hub       *bridge.Hub
	Detectors *detector.Manager
}

func (router *Router) Handler() http.Handler {
	api.SetConfig(router.Config)
	api.SetEngine(router.Engine)
	api.SetHub(router.Hub)
	api.SetDetectors(router.Detectors)

	origins := router.Config.MiscSettings.ExtensionOrigins
	router.Hub.OriginPatterns = originHosts(origins)

	r := gin.New()
	r.Use(middleware.Logging(), gin.Recovery(), middleware.Cors(origins), middleware.SecurityHeaders())

	/******************************************
	|                                         |
	|              BADGE ROUTES               |
	|                                         |
	******************************************/

	r.GET("/api/badge", api.GetBadge)
	r.GET("/api/badge/stream", api.StreamBadge)
	r.POST("/api/messages", api.PostMessage)

	/******************************************
	|                                         |
	|             BRIDGE SOCKETS              |
	|                                         |
	******************************************/

	r.GET("/ws/popup", api.PopupSocket)
	r.GET("/ws/content/:tab", api.ContentSocket)

	/******************************************
	|                                         |
	|            DETECTOR ROUTES              |
	|                                         |
	******************************************/

	r.GET("/api/detector", api.GetDetectors)
	r.GET("/api/detector/:tab/status", api.GetDetectorStatus)
	r.POST("/api/detector/:tab/check", api.CheckDetector)

	/******************************************
	|                                         |
	|         POPUP & SETTINGS ROUTES         |
	|                                         |
	******************************************/

	r.GET("/api/popup/status", api.GetPopupStatus)
	r.POST("/api/popup/submit", api.SubmitSolution)

	r.GET("/api/settings", api.GetSettings)
	r.PUT("/api/settings", api.PutSettings)
	r.POST("/api/credentials/import", api.ImportCredentials)

	return r
}

// originHosts turns "scheme://host" origins into websocket origin patterns.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}

// Start serves the local API until ctx is done.
func (router *Router) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", router.Config.RequiredSettings.BindAddress, router.Config.MiscSettings.Port)
	server := http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// streams and sockets end with the daemon
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down web server", "error", err)
		}
	}()

	slog.Info(fmt.Sprintf("Starting Web Server on http://%s", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
