package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// setupWatcher creates and configures the file system watcher
func setupWatcher(path string) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %v", err)
	}

	// watch the directory so atomic replaces are seen
	configDir := filepath.Dir(path)
	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config directory: %v", err)
	}

	return watcher, nil
}

// Watch calls onChange once per settled write that changed the api url or
// the auth token. Bursts of events within Settle collapse into one reload.
func (s *SyncStore) Watch(ctx context.Context, onChange func(old, new SyncConfig)) error {
	watcher, err := setupWatcher(s.Path)
	if err != nil {
		return err
	}

	settle := s.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	name := filepath.Base(s.Path)

	go func() {
		defer watcher.Close()

		var reloadMu sync.Mutex
		var debounceTimer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(settle, func() {
					reloadMu.Lock()
					defer reloadMu.Unlock()
					if ctx.Err() != nil {
						return
					}
					s.reload(onChange)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Sync settings watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (s *SyncStore) reload(onChange func(old, new SyncConfig)) {
	settings, err := readSyncFile(s.Path)
	if err != nil {
		slog.Error("failed to reload sync settings", "path", s.Path, "error", err)
		return
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	s.observedMu.Lock()
	old := s.observed
	s.observed = settings
	s.observedMu.Unlock()

	if old == settings {
		slog.Debug("sync settings rewritten without changes")
		return
	}
	slog.Info("sync settings changed",
		"api_url_changed", old.ApiUrl != settings.ApiUrl,
		"token_changed", old.AuthToken != settings.AuthToken,
		"has_token", settings.HasToken())
	onChange(old, settings)
}
