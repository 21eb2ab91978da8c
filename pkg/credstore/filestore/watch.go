package filestore

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events a single atomic rename
// produces into one callback.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls onChange whenever the credential file is written, replaced or
// removed, including by another process. It watches the parent directory
// because atomic renames replace the inode. Watch returns once the watcher is
// running; it stops when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	changed := make(chan struct{}, 1)
	go s.handleEvents(ctx, watcher, changed)
	go scheduleReload(ctx, changed, debounce, onChange)
	return nil
}

func (s *Store) handleEvents(ctx context.Context, watcher *fsnotify.Watcher, changed chan<- struct{}) {
	defer func() { _ = watcher.Close() }()

	name := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				select {
				case changed <- struct{}{}:
				default: // a reload is already pending
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "credential watcher error", "path", s.path, "error", err)
		}
	}
}

func scheduleReload(ctx context.Context, changed <-chan struct{}, debounce time.Duration, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-changed:
			if timer != nil {
				timer.Reset(debounce)
			} else {
				timer = time.NewTimer(debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			onChange()
		}
	}
}
