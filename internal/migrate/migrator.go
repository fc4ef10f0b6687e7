package migrate

import (
	"context"
	"errors"
	"fmt"

	appLog "trashcal/internal/log"
	"trashcal/internal/model"
)

// Store is the persistence the Migrator needs. found is false when no
// schedule has been saved yet.
type Store interface {
	RawSchedule(ctx context.Context) (raw []byte, found bool, err error)
	SaveSchedule(ctx context.Context, s model.Schedule) error
	BackupSchedule(ctx context.Context, raw []byte) error
	MigratedVersion(ctx context.Context) (string, error)
	SetMigratedVersion(ctx context.Context, v string) error
}

// Report is the outcome of one MigrateIfNeeded call.
type Report struct {
	Skipped  bool
	Wrote    bool
	BackedUp bool
	Result   Result
}

type Migrator struct {
	store Store
}

func NewMigrator(s Store) *Migrator {
	return &Migrator{store: s}
}

// MigrateIfNeeded normalizes the stored schedule once per appVersion.
// The schedule is written only when normalization changed it; the version
// marker is written on every run that was not skipped.
func (m *Migrator) MigrateIfNeeded(ctx context.Context, appVersion string) (Report, error) {
	var rep Report

	marker, err := m.store.MigratedVersion(ctx)
	if err != nil {
		return rep, fmt.Errorf("read migrated version: %w", err)
	}
	if IsUpToDate(marker, appVersion) {
		rep.Skipped = true
		return rep, nil
	}

	raw, found, err := m.store.RawSchedule(ctx)
	if err != nil {
		return rep, fmt.Errorf("read schedule: %w", err)
	}
	if !found {
		raw = DefaultV1
	}

	s, res, err := Normalize(raw)
	rep.Result = res
	switch {
	case errors.Is(err, ErrUnrecognizedSchedule):
		appLog.Error("migrate: discarding unrecognized schedule", err, "bytes", len(raw))
		if err := m.backup(ctx, raw, &rep); err != nil {
			return rep, err
		}
		s = model.NewSchedule()
		rep.Wrote = true
	case err != nil:
		return rep, err
	default:
		if found && res.Lossy() {
			if err := m.backup(ctx, raw, &rep); err != nil {
				return rep, err
			}
		}
		rep.Wrote = res.Changed()
	}

	if rep.Wrote {
		if err := m.store.SaveSchedule(ctx, s); err != nil {
			return rep, fmt.Errorf("save schedule: %w", err)
		}
		appLog.Info("migrate: schedule normalized",
			"from_v1", res.FromV1, "legacy_nth", res.LegacyNth,
			"discarded", res.Discarded, "entries", len(s.Entries))
	}

	if err := m.store.SetMigratedVersion(ctx, appVersion); err != nil {
		return rep, fmt.Errorf("write migrated version: %w", err)
	}
	return rep, nil
}

func (m *Migrator) backup(ctx context.Context, raw []byte, rep *Report) error {
	if err := m.store.BackupSchedule(ctx, raw); err != nil {
		return fmt.Errorf("backup schedule: %w", err)
	}
	rep.BackedUp = true
	return nil
}
