package alarms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"terriyaki/engine/db"
)

type Store interface {
	Save(ctx context.Context, alarm Alarm) error
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]Alarm, error)
}

// DBStore keeps alarms in the alarm_schemas table.
type DBStore struct{}

func (DBStore) Save(_ context.Context, alarm Alarm) error {
	return db.SaveAlarm(db.AlarmSchema{
		Name:        alarm.Name,
		ScheduledAt: alarm.ScheduledAt,
		Period:      int64(alarm.Period),
	})
}

func (DBStore) Delete(_ context.Context, name string) (bool, error) {
	return db.DeleteAlarm(name)
}

func (DBStore) List(_ context.Context) ([]Alarm, error) {
	rows, err := db.GetAlarms()
	if err != nil {
		return nil, err
	}
	alarms := make([]Alarm, 0, len(rows))
	for _, row := range rows {
		alarms = append(alarms, Alarm{
			Name:        row.Name,
			ScheduledAt: row.ScheduledAt,
			Period:      time.Duration(row.Period),
		})
	}
	return alarms, nil
}

// RedisStore keeps alarms as JSON values in a single hash.
type RedisStore struct {
	Client *redis.Client
	Key    string
}

const defaultRedisKey = "terriyaki:alarms"

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{Client: client, Key: defaultRedisKey}
}

func (r *RedisStore) Save(ctx context.Context, alarm Alarm) error {
	payload, err := json.Marshal(alarm)
	if err != nil {
		return err
	}
	return r.Client.HSet(ctx, r.Key, alarm.Name, payload).Err()
}

func (r *RedisStore) Delete(ctx context.Context, name string) (bool, error) {
	n, err := r.Client.HDel(ctx, r.Key, name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) List(ctx context.Context) ([]Alarm, error) {
	values, err := r.Client.HGetAll(ctx, r.Key).Result()
	if err != nil {
		return nil, err
	}
	alarms := make([]Alarm, 0, len(values))
	for name, raw := range values {
		var a Alarm
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode alarm %s: %w", name, err)
		}
		alarms = append(alarms, a)
	}
	return alarms, nil
}

// MemoryStore does not survive a restart; for development runs.
type MemoryStore struct {
	mu     sync.Mutex
	alarms map[string]Alarm
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alarms: make(map[string]Alarm)}
}

func (m *MemoryStore) Save(_ context.Context, alarm Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms[alarm.Name] = alarm
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.alarms[name]
	delete(m.alarms, name)
	return ok, nil
}

func (m *MemoryStore) List(_ context.Context) ([]Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alarms := make([]Alarm, 0, len(m.alarms))
	for _, a := range m.alarms {
		alarms = append(alarms, a)
	}
	return alarms, nil
}
