package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// FileBackend keeps the whole namespace in one JSON object on disk and
// rewrites it atomically on every Put.
type FileBackend struct {
	path string

	mu   sync.Mutex
	data map[string]json.RawMessage
}

// OpenFile loads path, or starts empty if it does not exist yet.
func OpenFile(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	b := &FileBackend{path: path, data: map[string]json.RawMessage{}}
	if err := b.load(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *FileBackend) load() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	data := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse store %s: %w", b.path, err)
	}
	b.data = data
	return nil
}

// Reload re-reads the file, picking up edits made by another process.
func (b *FileBackend) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load()
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *FileBackend) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("put %s: value is not valid JSON", key)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = append(json.RawMessage(nil), value...)
	return b.flush()
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.flush()
}

func (b *FileBackend) flush() error {
	out, err := json.MarshalIndent(b.data, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	if err := atomic.WriteFile(b.path, bytes.NewReader(out)); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	// atomic.WriteFile leaves new files with the default mode.
	return os.Chmod(b.path, 0o600)
}

func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Close() error { return nil }
