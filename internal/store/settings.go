package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	appLog "trashcal/internal/log"
	"trashcal/internal/migrate"
	"trashcal/internal/model"
)

// Settings is the typed view over a Backend.
type Settings struct {
	b Backend
}

func NewSettings(b Backend) *Settings {
	return &Settings{b: b}
}

func (s *Settings) Backend() Backend { return s.b }

// RawSchedule returns the stored schedule bytes as written.
func (s *Settings) RawSchedule(ctx context.Context) ([]byte, bool, error) {
	raw, err := s.b.Get(ctx, KeySchedule)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// Schedule returns the stored schedule, normalized to V2 in memory. With
// nothing stored it returns the default schedule.
func (s *Settings) Schedule(ctx context.Context) (model.Schedule, error) {
	raw, found, err := s.RawSchedule(ctx)
	if err != nil {
		return model.Schedule{}, err
	}
	if !found {
		raw = migrate.DefaultV1
	}
	sched, res, err := migrate.Normalize(raw)
	if errors.Is(err, migrate.ErrUnrecognizedSchedule) {
		appLog.Error("store: stored schedule is unreadable, using empty schedule", err)
		return model.NewSchedule(), nil
	}
	if err != nil {
		return model.Schedule{}, err
	}
	if found && res.Changed() {
		appLog.Debug("store: schedule normalized on read", "from_v1", res.FromV1, "legacy_nth", res.LegacyNth)
	}
	return sched, nil
}

func (s *Settings) SaveSchedule(ctx context.Context, sched model.Schedule) error {
	if sched.Version == 0 {
		sched.Version = model.ScheduleVersion
	}
	return s.putJSON(ctx, KeySchedule, sched)
}

// BackupSchedule keeps raw bytes that could not be migrated losslessly.
// They are stored as a JSON string so any byte sequence survives.
func (s *Settings) BackupSchedule(ctx context.Context, raw []byte) error {
	return s.putJSON(ctx, KeyScheduleBackup, string(raw))
}

// ScheduleBackup returns the last backup, or ErrNotFound.
func (s *Settings) ScheduleBackup(ctx context.Context) ([]byte, error) {
	var v string
	if err := s.getJSON(ctx, KeyScheduleBackup, &v); err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// NotificationSettings returns the stored settings or the defaults.
func (s *Settings) NotificationSettings(ctx context.Context) (model.NotificationSettings, error) {
	ns := model.DefaultNotificationSettings()
	err := s.getJSON(ctx, KeyNotification, &ns)
	if errors.Is(err, ErrNotFound) {
		return model.DefaultNotificationSettings(), nil
	}
	return ns, err
}

func (s *Settings) SaveNotificationSettings(ctx context.Context, ns model.NotificationSettings) error {
	return s.putJSON(ctx, KeyNotification, ns)
}

// MigratedVersion returns "" when migration never ran.
func (s *Settings) MigratedVersion(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyMigratedVersion)
}

func (s *Settings) SetMigratedVersion(ctx context.Context, v string) error {
	return s.putJSON(ctx, KeyMigratedVersion, v)
}

// APIKey returns "" when no key is stored.
func (s *Settings) APIKey(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyAPIKey)
}

// SetAPIKey stores key; an empty key removes it.
func (s *Settings) SetAPIKey(ctx context.Context, key string) error {
	if key == "" {
		return s.b.Delete(ctx, KeyAPIKey)
	}
	return s.putJSON(ctx, KeyAPIKey, key)
}

func (s *Settings) getString(ctx context.Context, key string) (string, error) {
	var v string
	err := s.getJSON(ctx, key, &v)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (s *Settings) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.b.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *Settings) putJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.b.Put(ctx, key, raw)
}

var _ migrate.Store = (*Settings)(nil)
