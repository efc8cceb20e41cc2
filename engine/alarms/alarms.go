package alarms

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// alarm names shared with the extension
const (
	UpdateBadge   = "updateBadge"
	CheckTask     = "checkTask"
	FrequentCheck = "frequentCheck"
)

const (
	CheckTaskPeriod     = 60 * time.Minute
	FrequentCheckPeriod = 5 * time.Minute

	defaultTick = time.Second
)

type Alarm struct {
	Name        string        `json:"name"`
	ScheduledAt time.Time     `json:"scheduledAt"`
	Period      time.Duration `json:"period,omitempty"` // zero for one-shot alarms
}

func (a Alarm) Periodic() bool {
	return a.Period > 0
}

type Handler func(ctx context.Context, name string)

// Scheduler keeps named alarms in a Store and fires them once their
// ScheduledAt has passed. At most one alarm exists per name.
type Scheduler struct {
	Store Store
	Tick  time.Duration
	Now   func() time.Time

	handler Handler
	mu      sync.Mutex
}

func NewScheduler(store Store, handler Handler) *Scheduler {
	return &Scheduler{
		Store:   store,
		Tick:    defaultTick,
		handler: handler,
	}
}

// now strips the monotonic reading so that comparisons against stored
// times use the wall clock, which keeps advancing while the host sleeps.
func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().Round(0)
	}
	return time.Now().Round(0)
}

// Create clears any alarm with the same name, then arms a new one firing
// after delay. A positive period makes it repeat.
func (s *Scheduler) Create(ctx context.Context, name string, delay time.Duration, period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.Store.Delete(ctx, name); err != nil {
		return fmt.Errorf("clear alarm %s: %w", name, err)
	}

	alarm := Alarm{
		Name:        name,
		ScheduledAt: s.now().Add(delay),
		Period:      period,
	}
	if err := s.Store.Save(ctx, alarm); err != nil {
		return fmt.Errorf("create alarm %s: %w", name, err)
	}
	slog.Debug("alarm armed", "name", name, "scheduled_at", alarm.ScheduledAt, "period", period)
	return nil
}

// Clear disarms an alarm and reports whether one was armed.
func (s *Scheduler) Clear(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared, err := s.Store.Delete(ctx, name)
	if err != nil {
		return false, fmt.Errorf("clear alarm %s: %w", name, err)
	}
	if cleared {
		slog.Debug("alarm cleared", "name", name)
	}
	return cleared, nil
}

func (s *Scheduler) Get(ctx context.Context, name string) (Alarm, bool, error) {
	all, err := s.Store.List(ctx)
	if err != nil {
		return Alarm{}, false, err
	}
	for _, a := range all {
		if a.Name == name {
			return a, true, nil
		}
	}
	return Alarm{}, false, nil
}

// FireDue runs the handler for every alarm whose time has come. One-shot
// alarms are removed first, periodic ones move to now+period so missed
// periods collapse into a single firing.
func (s *Scheduler) FireDue(ctx context.Context) (int, error) {
	s.mu.Lock()
	all, err := s.Store.List(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("list alarms: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ScheduledAt.Before(all[j].ScheduledAt)
	})

	now := s.now()
	var due []string
	for _, a := range all {
		if now.Before(a.ScheduledAt) {
			continue
		}
		if a.Periodic() {
			a.ScheduledAt = now.Add(a.Period)
			err = s.Store.Save(ctx, a)
		} else {
			_, err = s.Store.Delete(ctx, a.Name)
		}
		if err != nil {
			slog.Error("failed to advance alarm", "name", a.Name, "error", err)
			continue
		}
		due = append(due, a.Name)
	}
	s.mu.Unlock()

	// handlers may arm or clear alarms themselves
	for _, name := range due {
		slog.Debug("alarm fired", "name", name)
		s.handler(ctx, name)
	}
	return len(due), nil
}

// Run polls for due alarms until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	tick := s.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.FireDue(ctx); err != nil {
				slog.Error("alarm scheduler tick failed", "error", err)
			}
		}
	}
}
