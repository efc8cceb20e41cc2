package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// extension contexts
const (
	Background    = "background"
	Popup         = "popup"
	contentPrefix = "content:"
)

func Content(tab string) string {
	return contentPrefix + tab
}

// TabOf returns the tab id of a content context name.
func TabOf(name string) (string, bool) {
	if !strings.HasPrefix(name, contentPrefix) {
		return "", false
	}
	tab := strings.TrimPrefix(name, contentPrefix)
	return tab, tab != ""
}

// message actions
const (
	SolutionDetected = "solutionDetected"
	TaskUpdated      = "taskUpdated"
	TaskCompleted    = "taskCompleted"
	UpdateBadge      = "updateBadge"
	BadgeChanged     = "badgeChanged"

	GetStatus     = "getStatus"
	CheckSolution = "checkSolution"

	// page events forwarded by the content transport
	PageSnapshot = "pageSnapshot"
	PageClick    = "pageClick"
	PageNavigate = "pageNavigate"
)

// Editor is what the page's code editor widget reports about its model.
type Editor struct {
	Value      string `json:"value"`
	LanguageID string `json:"languageId,omitempty"`
}

type Message struct {
	Action    string `json:"action"`
	Code      string `json:"code,omitempty"`
	Language  string `json:"language,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // unix millis
	Tab       string `json:"tab,omitempty"`

	// badge text, or the text of a clicked element
	Text  string `json:"text,omitempty"`
	Color string `json:"color,omitempty"`

	// page events
	URL     string  `json:"url,omitempty"`
	HTML    string  `json:"html,omitempty"`
	Locator string  `json:"locator,omitempty"`
	Editor  *Editor `json:"editor,omitempty"`
}

// Outcome of a send. Unreachable is the normal answer when nobody listens.
type Outcome int

const (
	Unreachable Outcome = iota
	Delivered
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "unreachable"
}

// ErrGone tells the hub a listener's context has closed.
var ErrGone = errors.New("listener gone")

// Listener handles a message for one context. A non-nil reply answers a
// Request; Send ignores it.
type Listener func(ctx context.Context, msg Message) (reply any, err error)

type listenerEntry struct {
	id uint64
	fn Listener
}

type Hub struct {
	// hosts of browser origins allowed to open sockets; see Accept
	OriginPatterns []string

	mu        sync.RWMutex
	nextID    uint64
	listeners map[string][]listenerEntry
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[string][]listenerEntry)}
}

// Listen registers fn for a context name until the returned func is called.
func (h *Hub) Listen(name string, fn Listener) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[name] = append(h.listeners[name], listenerEntry{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(name, id) })
	}
}

func (h *Hub) remove(name string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entries := h.listeners[name]
	for i, e := range entries {
		if e.id == id {
			entries = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(h.listeners, name)
	} else {
		h.listeners[name] = entries
	}
}

func (h *Hub) Listening(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[name]) > 0
}

func (h *Hub) snapshot(name string) []listenerEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]listenerEntry(nil), h.listeners[name]...)
}

// Send delivers msg to every listener of a context.
func (h *Hub) Send(ctx context.Context, to string, msg Message) Outcome {
	_, outcome := h.dispatch(ctx, to, msg, false)
	return outcome
}

// Request delivers msg and returns the first non-nil reply.
func (h *Hub) Request(ctx context.Context, to string, msg Message) (any, Outcome) {
	return h.dispatch(ctx, to, msg, true)
}

func (h *Hub) dispatch(ctx context.Context, to string, msg Message, wantReply bool) (any, Outcome) {
	outcome := Unreachable
	var reply any
	for _, e := range h.snapshot(to) {
		r, err := e.fn(ctx, msg)
		if errors.Is(err, ErrGone) {
			h.remove(to, e.id)
			continue
		}
		if err != nil {
			slog.Debug("listener failed", "context", to, "action", msg.Action, "error", err)
			continue
		}
		outcome = Delivered
		if wantReply && r != nil {
			return r, Delivered
		}
		reply = r
	}
	if outcome == Unreachable {
		slog.Debug("message unreachable", "context", to, "action", msg.Action)
	}
	return reply, outcome
}
