package config

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSyncStore(t *testing.T) *SyncStore {
	t.Helper()
	s := NewSyncStore(filepath.Join(t.TempDir(), "sync.toml"))
	require.NoError(t, s.Load())
	return s
}

func TestSyncDefaultsWithoutFile(t *testing.T) {
	s := newTestSyncStore(t)

	got := s.Get()
	assert.Equal(t, DefaultApiUrl, got.ApiUrl)
	assert.False(t, got.HasToken())
}

func TestSyncSaveAndReload(t *testing.T) {
	s := newTestSyncStore(t)
	require.NoError(t, s.Save(SyncConfig{ApiUrl: "https://api.terriyaki.dev/", AuthToken: " abc "}))

	got := s.Get()
	assert.Equal(t, "https://api.terriyaki.dev", got.ApiUrl)
	assert.Equal(t, "abc", got.AuthToken)

	other := NewSyncStore(s.Path)
	require.NoError(t, other.Load())
	assert.Equal(t, got, other.Get())
}

func TestImportCookieToken(t *testing.T) {
	s := newTestSyncStore(t)

	_, err := s.ImportCookieToken([]*http.Cookie{{Name: "session", Value: "x"}})
	assert.Error(t, err)

	written, err := s.ImportCookieToken([]*http.Cookie{{Name: "token", Value: "jwt-1"}})
	require.NoError(t, err)
	assert.True(t, written)
	assert.Equal(t, "jwt-1", s.Get().AuthToken)

	written, err = s.ImportCookieToken([]*http.Cookie{{Name: "token", Value: "jwt-1"}})
	require.NoError(t, err)
	assert.False(t, written)
}

// one settled write changing both keys gives exactly one callback
func TestWatchFiresOncePerSettledWrite(t *testing.T) {
	s := newTestSyncStore(t)
	require.NoError(t, s.Save(SyncConfig{AuthToken: "old"}))
	require.NoError(t, s.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	var last atomic.Value
	require.NoError(t, s.Watch(ctx, func(old, new SyncConfig) {
		calls.Add(1)
		last.Store(new)
	}))

	start := time.Now()
	require.NoError(t, s.Save(SyncConfig{ApiUrl: "https://api.terriyaki.dev", AuthToken: "new"}))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), s.Settle)

	time.Sleep(3 * s.Settle)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "new", last.Load().(SyncConfig).AuthToken)
}

func TestWatchCollapsesBurstAndIgnoresNoop(t *testing.T) {
	s := newTestSyncStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	require.NoError(t, s.Watch(ctx, func(old, new SyncConfig) { calls.Add(1) }))

	require.NoError(t, s.Save(SyncConfig{AuthToken: "a"}))
	require.NoError(t, s.Save(SyncConfig{AuthToken: "b"}))
	require.NoError(t, s.Save(SyncConfig{AuthToken: "c"}))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * s.Settle)
	assert.Equal(t, int32(1), calls.Load())

	// same values again
	require.NoError(t, s.Save(SyncConfig{AuthToken: "c"}))
	time.Sleep(3 * s.Settle)
	assert.Equal(t, int32(1), calls.Load())

	// unrelated files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(s.Path), "notes.txt"), []byte("hi"), 0o644))
	time.Sleep(3 * s.Settle)
	assert.Equal(t, int32(1), calls.Load())
}
