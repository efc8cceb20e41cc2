package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terriyaki/engine"
	"terriyaki/engine/alarms"
	"terriyaki/engine/badge"
	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/db"
	"terriyaki/tests/testutil"
)

func newBackend(t *testing.T, hits *atomic.Int32) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"grind":{"taskToday":{"id":"t-1","completed":false,"date":"2025-03-14"}}}`))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newEngine(t *testing.T, apiURL string, store alarms.Store, now func() time.Time) *engine.BadgeEngine {
	t.Helper()
	syncStore := config.NewSyncStore(filepath.Join(t.TempDir(), "sync.toml"))
	require.NoError(t, syncStore.Save(config.SyncConfig{ApiUrl: apiURL, AuthToken: "tok"}))
	require.NoError(t, syncStore.Load())

	conf := &config.ConfigSettings{
		MiscSettings:    config.MiscConfig{AlarmBackend: "redis", SolutionHistory: 5},
		BackendSettings: config.BackendConfig{RequestTimeout: 2},
	}
	se := engine.NewEngine(conf, syncStore, store, bridge.NewHub())
	se.Now = now
	se.Scheduler.Now = now
	return se
}

// an urgency alarm armed in redis fires after the daemon restarts
func TestEngineRedisAlarmSurvivesRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	redisContainer := testutil.StartRedis(t)
	defer redisContainer.Close()

	ctx := context.Background()
	key := "terriyaki:it:alarms:" + time.Now().Format("150405.000000")
	defer redisContainer.Client.Del(ctx, key)

	var hits atomic.Int32
	apiURL := newBackend(t, &hits)

	// just under four hours before the end of the day
	start := time.Date(2025, time.March, 14, 20, 0, 0, 0, time.Local)

	store := alarms.NewRedisStore(redisContainer.Client)
	store.Key = key
	first := newEngine(t, apiURL, store, func() time.Time { return start })

	first.RefreshBadge(ctx)
	assert.Equal(t, "3h", first.Display.Current().Text)
	assert.Equal(t, badge.ColorRed, first.Display.Current().Color)

	a, armed, err := first.Scheduler.Get(ctx, alarms.UpdateBadge)
	require.NoError(t, err)
	require.True(t, armed)
	assert.Equal(t, 30*time.Minute, a.ScheduledAt.Sub(start))

	// a fresh process reading the same hash, 31 minutes later
	restarted := alarms.NewRedisStore(redisContainer.Client)
	restarted.Key = key
	later := start.Add(31 * time.Minute)
	second := newEngine(t, apiURL, restarted, func() time.Time { return later })

	n, err := second.Scheduler.FireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "3h", second.Display.Current().Text)

	a, armed, err = second.Scheduler.Get(ctx, alarms.UpdateBadge)
	require.NoError(t, err)
	require.True(t, armed)
	assert.True(t, a.ScheduledAt.After(later))
}

func TestEnginePostgresSolutionHistory(t *testing.T) {
	connectURL := testutil.StartPostgres(t)
	require.NoError(t, db.Connect(connectURL))
	defer db.Close()

	var hits atomic.Int32
	se := newEngine(t, newBackend(t, &hits), alarms.DBStore{}, time.Now)

	for _, code := range []string{"print('one1')", "print('two22')", "print('three')"} {
		require.NoError(t, se.StoreSolution(bridge.Message{
			Action:    bridge.SolutionDetected,
			Code:      code,
			Language:  "python",
			Timestamp: time.Now().UnixMilli(),
			Tab:       "7",
		}))
	}

	last, ok, err := se.LastSolution()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "print('three')", last.Code)
	assert.Equal(t, "7", last.TabID)

	count, err := db.CountSolutions()
	require.NoError(t, err)
	assert.LessOrEqual(t, count, int64(5))
}
