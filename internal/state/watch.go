package state

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports changes to a state file made by other processes.
//
// The parent directory is watched rather than the file itself: FileStore
// replaces the file by rename, which would drop a watch on the old inode.
type Watcher struct {
	w    *fsnotify.Watcher
	base string
}

// NewWatcher starts watching path. Call Run to receive changes.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{w: w, base: filepath.Base(path)}, nil
}

// Run calls onChange for every write, create or rename touching the
// watched file (including SQLite -wal/-shm companions). It returns when
// ctx is done and closes the watcher.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			onChange()
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("state watcher failed: %w", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if name != w.base && !strings.HasPrefix(name, w.base+"-") {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
