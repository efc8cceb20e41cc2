package badge

import (
	"sync"
	"time"
)

// State is what the extension draws on its toolbar icon. Empty text hides it.
type State struct {
	Text      string    `json:"text"`
	Color     string    `json:"color"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s State) Visible() bool {
	return s.Text != ""
}

// Display is the single badge resource. Subscribers get every change on a
// buffered channel; a subscriber that falls behind misses intermediate states.
type Display struct {
	mu          sync.RWMutex
	state       State
	subscribers map[chan State]struct{}
}

func NewDisplay() *Display {
	return &Display{subscribers: make(map[chan State]struct{})}
}

func (d *Display) Current() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Display) Set(text, color string) {
	d.publish(State{Text: text, Color: color, UpdatedAt: time.Now()})
}

func (d *Display) Clear() {
	d.publish(State{UpdatedAt: time.Now()})
}

func (d *Display) publish(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
	for ch := range d.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Subscribe returns a channel primed with the current state and a cancel func.
func (d *Display) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 4)

	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	ch <- d.state
	d.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, ch)
			close(ch)
			d.mu.Unlock()
		})
	}
}
