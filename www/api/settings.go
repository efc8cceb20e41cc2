package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"terriyaki/engine/config"
	"terriyaki/www/middleware"
)

type settingsRequest struct {
	ApiUrl    *string `json:"apiUrl"`
	AuthToken *string `json:"authToken"`
}

type cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// importRequest carries the cookies the extension read for url.
type importRequest struct {
	URL     string   `json:"url" binding:"required"`
	Cookies []cookie `json:"cookies"`
}

func settingsView(s config.SyncConfig) gin.H {
	view := gin.H{
		"apiUrl":   s.ApiUrl,
		"hasToken": s.HasToken(),
	}
	if exp, ok := config.TokenExpiry(s.AuthToken); ok {
		view["tokenExpires"] = exp
	}
	return view
}

// GetSettings never returns the token itself.
func GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsView(eng.Sync.Get()))
}

// PutSettings updates the fields present in the body. The watcher picks the
// write up and refreshes the badge.
func PutSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := eng.Sync.Get()
	if req.ApiUrl != nil {
		u, err := url.Parse(strings.TrimSpace(*req.ApiUrl))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "apiUrl must be an http(s) url"})
			return
		}
		settings.ApiUrl = *req.ApiUrl
	}
	if req.AuthToken != nil {
		settings.AuthToken = *req.AuthToken
	}

	if err := eng.Sync.Save(settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settingsView(eng.Sync.Get()))
}

// ImportCredentials takes the cookies the extension read for the backend's
// origin and stores the "token" cookie as the auth token. Only the extension
// itself may call it.
func ImportCredentials(c *gin.Context) {
	if origin := c.GetHeader("Origin"); !middleware.OriginAllowed(origin, conf.MiscSettings.ExtensionOrigins) {
		c.JSON(http.StatusForbidden, gin.H{"error": "credentials can only be imported by the extension"})
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	allowed := conf.BackendSettings.CookieOrigin
	if allowed == "" {
		allowed = eng.Sync.Get().ApiUrl
	}
	if !sameOrigin(req.URL, allowed) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cookies must come from " + allowed})
		return
	}

	cookies := make([]*http.Cookie, 0, len(req.Cookies))
	for _, ck := range req.Cookies {
		cookies = append(cookies, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	written, err := eng.Sync.ImportCookieToken(cookies)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view := settingsView(eng.Sync.Get())
	view["imported"] = written
	c.JSON(http.StatusOK, view)
}

func sameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && strings.EqualFold(ua.Host, ub.Host)
}
