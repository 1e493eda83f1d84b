// Package watch re-runs the wrapped build when watched paths change.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// BuildFunc runs one build pass. The watcher serializes invocations.
type BuildFunc func(ctx context.Context) error

// Watcher monitors filesystem paths and triggers debounced rebuilds.
type Watcher struct {
	paths    []string
	ignore   map[string]bool
	watcher  *fsnotify.Watcher
	trigger  chan struct{}
	debounce time.Duration
}

// New creates a watcher over the given paths. Directories are watched
// recursively; hidden directories are skipped. Files named in ignore (the
// history database and its SQLite side files, typically) never trigger.
func New(paths []string, debounce time.Duration, ignore ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	ignored := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		base := filepath.Base(name)
		ignored[base] = true
		ignored[base+"-journal"] = true
		ignored[base+"-wal"] = true
		ignored[base+"-shm"] = true
	}

	w := &Watcher{
		paths:    paths,
		ignore:   ignored,
		watcher:  fsw,
		trigger:  make(chan struct{}, 1),
		debounce: debounce,
	}
	if err := w.addPaths(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addPaths() error {
	for _, p := range w.paths {
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if name := d.Name(); strings.HasPrefix(name, ".") && path != p {
				return filepath.SkipDir
			}
			return w.watcher.Add(path)
		})
		if err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
	}
	return nil
}

// Run executes build once, then re-runs it on debounced file changes until
// the context is cancelled. Build errors stop the loop and are returned;
// a non-zero child exit is not an error at this level.
func (w *Watcher) Run(ctx context.Context, build BuildFunc) error {
	defer w.watcher.Close()

	if err := build(ctx); err != nil {
		return err
	}

	go w.eventLoop(ctx)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case <-w.trigger:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			slog.Info("Change detected, re-running build")
			if err := build(ctx); err != nil {
				return err
			}
		}
	}
}

// eventLoop collapses raw fsnotify events into trigger signals.
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignore[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("File event", "path", event.Name, "op", event.Op.String())
			select {
			case w.trigger <- struct{}{}:
			default:
				// Rebuild already pending.
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Watcher error", "error", err)
		}
	}
}
