// Package watch reports changes to a single file.
//
// The parent directory is watched rather than the file, because atomic
// saves replace the file and a watch on the old inode would go silent.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "trashcal/internal/log"
)

const DefaultDebounce = 250 * time.Millisecond

// FileWatcher calls OnChange once per burst of writes to a file.
type FileWatcher struct {
	path     string
	debounce time.Duration
	onChange func()
	watcher  *fsnotify.Watcher
}

// New starts watching path's directory. Events are delivered once Run is
// called; Run closes the underlying watcher when it returns.
func New(path string, debounce time.Duration, onChange func()) (*FileWatcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	return &FileWatcher{path: abs, debounce: debounce, onChange: onChange, watcher: w}, nil
}

// Run processes events until ctx is done.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer fw.watcher.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if !fw.relevant(ev) {
				continue
			}
			appLog.Debug("watch: file event", "path", ev.Name, "op", ev.Op.String())
			pending = time.After(fw.debounce)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			appLog.Error("watch: watcher error", err, "path", fw.path)

		case <-pending:
			pending = nil
			appLog.Info("watch: file changed", "path", fw.path)
			fw.onChange()
		}
	}
}

func (fw *FileWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != fw.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove)
}
