// Package filewatch notifies callers when small data files (word lists, the
// links file) change on disk. It watches the parent directories so that files
// which do not exist yet, or which editors replace by rename, are still seen.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits after the last event for a path
// before invoking the callback.
const DefaultDebounce = 250 * time.Millisecond

// Watch blocks until ctx is cancelled, calling onChange(path) once per burst
// of write, create, rename or remove events for any of paths. The callback runs
// on a timer goroutine and must be safe for concurrent use.
func Watch(ctx context.Context, paths []string, onChange func(path string)) error {
	return WatchDebounced(ctx, paths, DefaultDebounce, onChange)
}

// WatchDebounced is [Watch] with an explicit debounce delay.
func WatchDebounced(ctx context.Context, paths []string, debounce time.Duration, onChange func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatch: new watcher: %w", err)
	}
	defer w.Close()

	targets := make(map[string]string, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("filewatch: resolve %q: %w", p, err)
		}
		targets[abs] = p
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			slog.Warn("filewatch: cannot watch directory", "dir", dir, "err", err)
		}
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	fire := func(abs string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[abs]; ok {
			t.Stop()
		}
		orig := targets[abs]
		timers[abs] = time.AfterFunc(debounce, func() { onChange(orig) })
	}

	const interesting = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, tracked := targets[abs]; !tracked {
				continue
			}
			if ev.Op&interesting != 0 {
				fire(abs)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Debug("filewatch: watcher error", "err", err)
		}
	}
}
