package detector

import (
	"context"
	"sync"

	"terriyaki/engine/bridge"
)

// Manager owns one Detector per connected tab and registers each as the
// listener of the tab's content context.
type Manager struct {
	Timings Timings

	hub *bridge.Hub
	ctx context.Context

	mu        sync.Mutex
	detectors map[string]*attached
}

type attached struct {
	detector    *Detector
	unsubscribe func()
	refs        int
}

func NewManager(ctx context.Context, hub *bridge.Hub, timings Timings) *Manager {
	return &Manager{
		Timings:   timings,
		hub:       hub,
		ctx:       ctx,
		detectors: make(map[string]*attached),
	}
}

// Attach returns the tab's detector, creating it on first use. Every Attach
// needs a matching Detach.
func (m *Manager) Attach(tab string) *Detector {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.detectors[tab]; ok {
		a.refs++
		return a.detector
	}
	d := New(m.ctx, tab, m.hub, m.Timings)
	m.detectors[tab] = &attached{
		detector:    d,
		unsubscribe: m.hub.Listen(bridge.Content(tab), d.Handle),
		refs:        1,
	}
	return d
}

func (m *Manager) Detach(tab string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.detectors[tab]
	if !ok {
		return
	}
	a.refs--
	if a.refs > 0 {
		return
	}
	a.unsubscribe()
	a.detector.Close()
	delete(m.detectors, tab)
}

func (m *Manager) Get(tab string) (*Detector, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.detectors[tab]
	if !ok {
		return nil, false
	}
	return a.detector, true
}

func (m *Manager) Tabs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tabs := make([]string, 0, len(m.detectors))
	for tab := range m.detectors {
		tabs = append(tabs, tab)
	}
	return tabs
}
