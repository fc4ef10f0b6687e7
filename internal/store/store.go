// Package store persists settings in a single key/value namespace.
//
// Backends only move opaque JSON values; Settings layers the typed
// accessors (schedule, notification settings, migration marker, API key)
// on top of whichever backend the config selects.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Keys of the settings namespace.
const (
	KeySchedule        = "schedule"
	KeyScheduleBackup  = "schedule.backup"
	KeyNotification    = "notification"
	KeyMigratedVersion = "migratedVersion"
	KeyAPIKey          = "apiKey"
)

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("key not found")

// Backend is a last-write-wins key/value store of JSON values.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Path is the file backing the store, used by the change watcher.
	Path() string
	Close() error
}

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
)

// Open returns the backend of kind rooted in dir.
func Open(kind, dir string) (Backend, error) {
	switch kind {
	case "", KindFile:
		b, err := OpenFile(filepath.Join(dir, "settings.json"))
		if err != nil {
			return nil, err
		}
		return b, nil
	case KindSQLite:
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		b, err := OpenSQLite(filepath.Join(dir, "settings.db"))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
