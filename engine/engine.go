package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"terriyaki/engine/alarms"
	"terriyaki/engine/backend"
	"terriyaki/engine/badge"
	"terriyaki/engine/bridge"
	"terriyaki/engine/config"
	"terriyaki/engine/db"
)

// BadgeEngine is the background context: it owns the badge, the alarms and
// the last detected solution.
type BadgeEngine struct {
	Config    *config.ConfigSettings
	Sync      *config.SyncStore
	Display   *badge.Display
	Scheduler *alarms.Scheduler
	Hub       *bridge.Hub
	Now       func() time.Time

	// serializes refreshes; the badge is only written under it
	refreshMu sync.Mutex

	statsMu     sync.RWMutex
	refreshes   int
	lastRefresh time.Time
	lastOutcome string
}

func NewEngine(conf *config.ConfigSettings, syncStore *config.SyncStore, store alarms.Store, hub *bridge.Hub) *BadgeEngine {
	se := &BadgeEngine{
		Config:  conf,
		Sync:    syncStore,
		Display: badge.NewDisplay(),
		Hub:     hub,
	}
	se.Scheduler = alarms.NewScheduler(store, se.HandleAlarm)
	return se
}

func (se *BadgeEngine) now() time.Time {
	if se.Now != nil {
		return se.Now()
	}
	return time.Now()
}

func (se *BadgeEngine) requestTimeout() time.Duration {
	if se.Config == nil || se.Config.BackendSettings.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(se.Config.BackendSettings.RequestTimeout) * time.Second
}

// Client builds a backend client from the current sync settings.
func (se *BadgeEngine) Client() *backend.Client {
	settings := se.Sync.Get()
	return backend.New(settings.ApiUrl, settings.AuthToken, se.requestTimeout())
}

// Start arms the heartbeats, catches up on anything missed while the daemon
// was down, then runs the scheduler and the credential watcher until ctx is
// done.
func (se *BadgeEngine) Start(ctx context.Context) error {
	unlisten := se.Hub.Listen(bridge.Background, se.HandleMessage)
	defer unlisten()

	if err := se.Scheduler.Create(ctx, alarms.CheckTask, alarms.CheckTaskPeriod, alarms.CheckTaskPeriod); err != nil {
		return fmt.Errorf("failed to arm heartbeat: %w", err)
	}
	if err := se.Scheduler.Create(ctx, alarms.FrequentCheck, alarms.FrequentCheckPeriod, alarms.FrequentCheckPeriod); err != nil {
		return fmt.Errorf("failed to arm heartbeat: %w", err)
	}

	if err := se.Sync.Watch(ctx, func(old, new config.SyncConfig) {
		se.RefreshBadge(ctx)
	}); err != nil {
		return fmt.Errorf("failed to watch sync settings: %w", err)
	}

	go se.forwardBadge(ctx)

	se.RefreshBadge(ctx)

	slog.Info("badge engine started", "alarm_backend", se.Config.MiscSettings.AlarmBackend)
	se.Scheduler.Run(ctx)
	slog.Info("badge engine stopped")
	return nil
}

// forwardBadge pushes every badge change to the popup context.
func (se *BadgeEngine) forwardBadge(ctx context.Context) {
	updates, cancel := se.Display.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-updates:
			se.Hub.Send(ctx, bridge.Popup, bridge.Message{
				Action:    bridge.BadgeChanged,
				Text:      state.Text,
				Color:     state.Color,
				Timestamp: state.UpdatedAt.UnixMilli(),
			})
		}
	}
}

func (se *BadgeEngine) HandleAlarm(ctx context.Context, name string) {
	switch name {
	case alarms.UpdateBadge, alarms.CheckTask, alarms.FrequentCheck:
		se.RefreshBadge(ctx)
	default:
		slog.Warn("unknown alarm fired", "name", name)
	}
}

// HandleMessage is the bridge listener for the background context.
func (se *BadgeEngine) HandleMessage(ctx context.Context, msg bridge.Message) (any, error) {
	switch msg.Action {
	case bridge.TaskUpdated, bridge.TaskCompleted, bridge.UpdateBadge:
		se.RefreshBadge(ctx)
		return se.Display.Current(), nil
	case bridge.SolutionDetected:
		if err := se.StoreSolution(msg); err != nil {
			slog.Error("failed to store solution", "error", err)
			return nil, err
		}
		return nil, nil
	default:
		slog.Debug("background ignoring message", "action", msg.Action)
		return nil, nil
	}
}

// StoreSolution keeps the detection for the popup and trims old ones.
func (se *BadgeEngine) StoreSolution(msg bridge.Message) error {
	detectedAt := se.now()
	if msg.Timestamp > 0 {
		detectedAt = time.UnixMilli(msg.Timestamp)
	}
	if _, err := db.CreateSolution(db.SolutionSchema{
		TabID:      msg.Tab,
		Code:       msg.Code,
		Language:   msg.Language,
		DetectedAt: detectedAt,
	}); err != nil {
		return err
	}

	keep := 20
	if se.Config != nil && se.Config.MiscSettings.SolutionHistory > 0 {
		keep = se.Config.MiscSettings.SolutionHistory
	}
	return db.PruneSolutions(keep)
}

func (se *BadgeEngine) LastSolution() (db.SolutionSchema, bool, error) {
	return db.GetLastSolution()
}

// RefreshBadge re-reads today's task and redraws the badge. It never fails:
// every error ends with a cleared badge and a log line.
func (se *BadgeEngine) RefreshBadge(ctx context.Context) {
	se.refreshMu.Lock()
	defer se.refreshMu.Unlock()

	outcome := se.refresh(ctx)

	se.statsMu.Lock()
	se.refreshes++
	se.lastRefresh = se.now()
	se.lastOutcome = outcome
	se.statsMu.Unlock()
}

// Stats returns the refresh counter, time and outcome of the last refresh.
func (se *BadgeEngine) Stats() (int, time.Time, string) {
	se.statsMu.RLock()
	defer se.statsMu.RUnlock()
	return se.refreshes, se.lastRefresh, se.lastOutcome
}

func (se *BadgeEngine) refresh(ctx context.Context) string {
	settings := se.Sync.Get()
	if !settings.HasToken() {
		se.Display.Clear()
		se.disarm(ctx)
		return "no token"
	}

	client := backend.New(settings.ApiUrl, settings.AuthToken, se.requestTimeout())
	task, err := client.CurrentTask(ctx)
	if errors.Is(err, backend.ErrUnauthorized) {
		// leave the alarms alone; a new token may fix this before they fire
		slog.Warn("auth token rejected, clearing badge")
		se.Display.Clear()
		return "unauthorized"
	}
	if err != nil {
		slog.Error("failed to fetch current task", "error", err)
		se.Display.Clear()
		return "error"
	}

	if !task.Exists() {
		se.Display.Clear()
		se.disarm(ctx)
		return "no task"
	}

	if task.Completed {
		se.Display.Set(badge.TextDone, badge.ColorDone)
		se.disarm(ctx)
		return "completed"
	}

	date, err := badge.ParseTaskDate(task.Date)
	if err != nil {
		slog.Error("task has unreadable date", "date", task.Date, "error", err)
		se.Display.Clear()
		return "error"
	}

	tr := badge.ComputeTimeRemaining(date, se.now())
	se.Display.Set(badge.FormatText(&tr), badge.Color(&tr))

	delay := alarms.NextDelay(tr)
	if err := se.Scheduler.Create(ctx, alarms.UpdateBadge, delay, 0); err != nil {
		slog.Error("failed to schedule badge update", "error", err)
	}
	slog.Debug("badge refreshed", "total_minutes", tr.TotalMinutes, "expired", tr.Expired, "next", delay)
	return "countdown"
}

func (se *BadgeEngine) disarm(ctx context.Context) {
	if _, err := se.Scheduler.Clear(ctx, alarms.UpdateBadge); err != nil {
		slog.Error("failed to clear badge alarm", "error", err)
	}
}
