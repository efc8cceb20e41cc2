package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultApiUrl = "http://localhost:8080"

	// name of the cookie the web app keeps its session token in
	TokenCookie = "token"

	defaultSettle = 200 * time.Millisecond
)

// SyncConfig is the synced namespace shared by the popup and the daemon.
type SyncConfig struct {
	ApiUrl    string `toml:"apiUrl"`
	AuthToken string `toml:"authToken,omitempty"`
}

func (s SyncConfig) HasToken() bool {
	return s.AuthToken != ""
}

func (s *SyncConfig) normalize() {
	s.ApiUrl = strings.TrimRight(strings.TrimSpace(s.ApiUrl), "/")
	if s.ApiUrl == "" {
		s.ApiUrl = DefaultApiUrl
	}
	s.AuthToken = strings.TrimSpace(s.AuthToken)
}

// SyncStore is file backed. Writers go through Save; the watcher reports a
// change only after it has read the committed file back.
type SyncStore struct {
	Path   string
	Settle time.Duration

	mu       sync.RWMutex
	settings SyncConfig

	// last values handed to the watch callback
	observedMu sync.Mutex
	observed   SyncConfig
}

func NewSyncStore(path string) *SyncStore {
	return &SyncStore{Path: path, Settle: defaultSettle}
}

// Load reads the file; a missing file means defaults and no token.
func (s *SyncStore) Load() error {
	settings, err := readSyncFile(s.Path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	s.observedMu.Lock()
	s.observed = settings
	s.observedMu.Unlock()
	return nil
}

func (s *SyncStore) Get() SyncConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings := s.settings
	settings.normalize()
	return settings
}

// Save replaces the file atomically so the watcher never reads half a write.
func (s *SyncStore) Save(settings SyncConfig) error {
	settings.normalize()

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create sync dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sync-*.toml")
	if err != nil {
		return fmt.Errorf("create temp sync file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(settings); err != nil {
		tmp.Close()
		return fmt.Errorf("encode sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace sync file: %w", err)
	}

	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// ImportCookieToken stores the value of the "token" cookie as the auth token.
// It reports whether anything was written.
func (s *SyncStore) ImportCookieToken(cookies []*http.Cookie) (bool, error) {
	var token string
	for _, c := range cookies {
		if c.Name == TokenCookie && strings.TrimSpace(c.Value) != "" {
			token = strings.TrimSpace(c.Value)
		}
	}
	if token == "" {
		return false, errors.New("no " + TokenCookie + " cookie found")
	}

	current := s.Get()
	if current.AuthToken == token {
		return false, nil
	}
	current.AuthToken = token
	if err := s.Save(current); err != nil {
		return false, err
	}
	return true, nil
}

func readSyncFile(path string) (SyncConfig, error) {
	var settings SyncConfig
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			settings.normalize()
			return settings, nil
		}
		return SyncConfig{}, fmt.Errorf("read sync file: %w", err)
	}
	if _, err := toml.Decode(string(content), &settings); err != nil {
		return SyncConfig{}, fmt.Errorf("decode sync file: %w", err)
	}
	settings.normalize()
	return settings, nil
}
