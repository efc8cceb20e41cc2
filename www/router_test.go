package www

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terriyaki/engine"
	"terriyaki/engine/alarms"
	"terriyaki/engine/badge"
	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/db"
	"terriyaki/engine/detector"
)

const extensionOrigin = "chrome-extension://terriyakitest"

const acceptedPage = `<html><body><div data-e2e-locator="submission-result">Accepted</div><p>Accepted Runtime: 2 ms</p></body></html>`

// backendStub plays the grind backend.
type backendStub struct {
	mu       sync.Mutex
	task     string
	finished []map[string]string
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/grinds/current", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		w.Write([]byte(`{"grind":{"taskToday":` + b.task + `}}`))
	})
	mux.HandleFunc("/api/v1/verify-token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"user":{"username":"ramen"}}`))
	})
	mux.HandleFunc("/api/v1/tasks/finish", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.finished = append(b.finished, body)
		b.task = `{"id":1,"completed":true}`
		b.mu.Unlock()
		w.Write([]byte(`{"task":{"id":1,"completed":true}}`))
	})
	return mux
}

type testEnv struct {
	router    *Router
	handler   http.Handler
	backend   *backendStub
	apiURL    string
	detectors *detector.Manager
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	require.NoError(t, db.Connect("sqlite:"+filepath.Join(t.TempDir(), "www.db")))
	t.Cleanup(func() { db.Close() })

	// two days out, so the badge always reads "!"
	due := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	stub := &backendStub{task: `{"id":1,"completed":false,"date":"` + due + `"}`}
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	syncStore := config.NewSyncStore(filepath.Join(t.TempDir(), "sync.toml"))
	require.NoError(t, syncStore.Save(config.SyncConfig{ApiUrl: srv.URL, AuthToken: token}))

	conf := &config.ConfigSettings{
		RequiredSettings: config.RequiredConfig{BindAddress: "127.0.0.1"},
		MiscSettings: config.MiscConfig{
			AlarmBackend:     "memory",
			SolutionHistory:  5,
			ExtensionOrigins: []string{extensionOrigin},
		},
		BackendSettings:  config.BackendConfig{RequestTimeout: 2},
	}

	hub := bridge.NewHub()
	se := engine.NewEngine(conf, syncStore, alarms.NewMemoryStore(), hub)
	t.Cleanup(hub.Listen(bridge.Background, se.HandleMessage))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	timings := detector.DefaultTimings()
	timings.Poll = 0
	detectors := detector.NewManager(ctx, hub, timings)

	router := &Router{Config: conf, Engine: se, Hub: hub, Detectors: detectors}
	return &testEnv{router: router, handler: router.Handler(), backend: stub, apiURL: srv.URL, detectors: detectors}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return env.doFrom(t, "", method, path, body)
}

// doFrom sends the request as a browser page on origin would.
func (env *testEnv) doFrom(t *testing.T, origin, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestGetBadge(t *testing.T) {
	env := newTestEnv(t, "good")
	env.router.Engine.Display.Set("3h", badge.ColorRed)

	w, out := env.do(t, http.MethodGet, "/api/badge", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "3h", out["badge"].(map[string]any)["text"])
	assert.Equal(t, badge.ColorRed, out["badge"].(map[string]any)["color"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestPostMessageRefreshesBadge(t *testing.T) {
	env := newTestEnv(t, "good")

	w, out := env.do(t, http.MethodPost, "/api/messages", bridge.Message{Action: bridge.TaskUpdated})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delivered", out["outcome"])
	assert.Equal(t, badge.TextUrgent, out["badge"].(map[string]any)["text"], "far away deadline shows !")

	w, _ = env.do(t, http.MethodPost, "/api/messages", bridge.Message{Action: "deleteEverything"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, "")

	w, out := env.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["hasToken"])
	assert.Equal(t, env.apiURL, out["apiUrl"])

	token := "good"
	w, out = env.do(t, http.MethodPut, "/api/settings", map[string]any{"authToken": token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["hasToken"])
	assert.NotContains(t, out, "authToken")
	assert.Equal(t, "good", env.router.Engine.Sync.Get().AuthToken)

	w, _ = env.do(t, http.MethodPut, "/api/settings", map[string]any{"apiUrl": "ftp://example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportCredentials(t *testing.T) {
	env := newTestEnv(t, "")
	cookies := []map[string]string{{"name": "token", "value": "good"}}
	path := "/api/credentials/import"

	// local tools cannot import, only the extension can
	w, _ := env.do(t, http.MethodPost, path, map[string]any{"url": env.apiURL, "cookies": cookies})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = env.doFrom(t, "https://evil.example", http.MethodPost, path, map[string]any{"url": env.apiURL, "cookies": cookies})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// cookies read for some other site are refused
	w, _ = env.doFrom(t, extensionOrigin, http.MethodPost, path, map[string]any{"url": "https://evil.example", "cookies": cookies})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.router.Engine.Sync.Get().HasToken())

	w, out := env.doFrom(t, extensionOrigin, http.MethodPost, path, map[string]any{"url": env.apiURL + "/login", "cookies": cookies})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["imported"])
	assert.Equal(t, "good", env.router.Engine.Sync.Get().AuthToken)

	w, _ = env.doFrom(t, extensionOrigin, http.MethodPost, path, map[string]any{"url": env.apiURL, "cookies": []map[string]string{{"name": "sid", "value": "x"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// a page on another site must not be able to redirect the token or read state
func TestForeignOriginIsRefused(t *testing.T) {
	env := newTestEnv(t, "good")
	const evil = "https://evil.example"

	var stolen atomic.Int32
	attacker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			stolen.Add(1)
		}
		w.Write([]byte(`{"grind":{}}`))
	}))
	defer attacker.Close()

	w, _ := env.doFrom(t, evil, http.MethodOptions, "/api/settings", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w, _ = env.doFrom(t, evil, http.MethodPut, "/api/settings", map[string]any{"apiUrl": attacker.URL})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, env.apiURL, env.router.Engine.Sync.Get().ApiUrl)

	env.router.Engine.RefreshBadge(context.Background())
	assert.Zero(t, stolen.Load())

	for _, path := range []string{"/api/popup/status", "/api/settings", "/api/badge/stream"} {
		w, _ = env.doFrom(t, evil, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/popup", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{evil}},
	})
	assert.Error(t, err)

	// the extension itself still gets through
	w, out := env.doFrom(t, extensionOrigin, http.MethodOptions, "/api/settings", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, extensionOrigin, w.Header().Get("Access-Control-Allow-Origin"))

	w, out = env.doFrom(t, extensionOrigin, http.MethodPut, "/api/settings", map[string]any{"apiUrl": env.apiURL + "/"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, env.apiURL, out["apiUrl"])

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/popup", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{extensionOrigin}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestPopupStatus(t *testing.T) {
	env := newTestEnv(t, "good")

	w, out := env.do(t, http.MethodGet, "/api/popup/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["loggedIn"])
	assert.Equal(t, "ramen", out["user"])

	require.NoError(t, env.router.Engine.Sync.Save(config.SyncConfig{ApiUrl: env.apiURL, AuthToken: "bad"}))
	_, out = env.do(t, http.MethodGet, "/api/popup/status", nil)
	assert.Equal(t, false, out["loggedIn"])
	assert.Contains(t, out["error"], "rejected")
}

func TestPopupSubmit(t *testing.T) {
	env := newTestEnv(t, "good")

	w, _ := env.do(t, http.MethodPost, "/api/popup/submit", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "nothing detected yet")

	_, err := db.CreateSolution(db.SolutionSchema{TabID: "1", Code: "impl Solution {}", Language: "rust", DetectedAt: time.Now()})
	require.NoError(t, err)

	w, out := env.do(t, http.MethodPost, "/api/popup/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "delivered", out["outcome"])
	assert.Equal(t, badge.TextDone, out["badge"].(map[string]any)["text"])

	// posted code without a language falls back to the detector default
	w, _ = env.do(t, http.MethodPost, "/api/popup/submit", map[string]any{"code": "function twoSum() {}"})
	require.Equal(t, http.StatusOK, w.Code)

	env.backend.mu.Lock()
	defer env.backend.mu.Unlock()
	require.Len(t, env.backend.finished, 2)
	assert.Equal(t, map[string]string{"code": "impl Solution {}", "language": "rust"}, env.backend.finished[0])
	assert.Equal(t, map[string]string{"code": "function twoSum() {}", "language": detector.DefaultLanguage}, env.backend.finished[1])
}

func TestDetectorRoutes(t *testing.T) {
	env := newTestEnv(t, "good")

	w, _ := env.do(t, http.MethodGet, "/api/detector/3/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.detectors.Attach("3")
	defer env.detectors.Detach("3")
	env.router.Hub.Send(context.Background(), bridge.Content("3"), bridge.Message{
		Action: bridge.PageSnapshot,
		URL:    "https://leetcode.com/problems/two-sum/",
		HTML:   acceptedPage,
		Editor: &bridge.Editor{Value: "func twoSum() {}", LanguageID: "go"},
	})

	w, out := env.do(t, http.MethodGet, "/api/detector/3/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["detected"])
	assert.Equal(t, "go", out["language"])

	w, out = env.do(t, http.MethodPost, "/api/detector/3/check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["detected"])

	_, out = env.do(t, http.MethodGet, "/api/detector", nil)
	assert.Equal(t, []any{"3"}, out["tabs"])

	// the detection reached the background and was stored
	last, ok, err := env.router.Engine.LastSolution()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "3", last.TabID)
}

func TestBadgeStream(t *testing.T) {
	env := newTestEnv(t, "good")
	env.router.Engine.Display.Set("5m", badge.ColorDarkRed)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/badge/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event:badge", lines[0])
	assert.Contains(t, lines[1], `"text":"5m"`)
}

func TestContentSocketFeedsDetector(t *testing.T) {
	env := newTestEnv(t, "good")
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/content/11", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.NoError(t, wsjson.Write(ctx, conn, bridge.Envelope{
		ID: "snap-1",
		Message: bridge.Message{
			Action: bridge.PageSnapshot,
			URL:    "https://leetcode.com/problems/two-sum/",
			HTML:   acceptedPage,
			Editor: &bridge.Editor{Value: "def twoSum(self): pass", LanguageID: "python"},
		},
	}))
	var ack bridge.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &ack))
	assert.Equal(t, "delivered", ack.Outcome)

	w, out := env.do(t, http.MethodGet, "/api/detector/11/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "python", out["language"])

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool {
		_, ok := env.detectors.Get("11")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
