// Package watch runs a filesystem watch loop that triggers a sync for
// a game shortly after its save directory changes. Bursts of writes
// (games rewrite many files per save) collapse into one sync through a
// per-game debounce timer.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"cloudsave/internal/cloudsave"
)

// Target names one watched game and its save directory.
type Target struct {
	GameID   string
	SavePath string
}

// Syncer reconciles one game; *cloudsave.SyncService satisfies it.
type Syncer interface {
	SyncGame(ctx context.Context, gameID string, localPath string) (*cloudsave.SyncOutcome, error)
}

// Watcher debounces filesystem events per game and triggers syncs.
type Watcher struct {
	syncer   Syncer
	logger   cloudsave.Logger
	debounce time.Duration

	mu         sync.Mutex
	debouncers map[string]*Debouncer
}

// NewWatcher creates a Watcher. debounce is the quiet period after the
// last write before a sync fires.
func NewWatcher(syncer Syncer, logger cloudsave.Logger, debounce time.Duration) *Watcher {
	if logger == nil {
		logger = cloudsave.NopLogger{}
	}
	if debounce <= 0 {
		debounce = 5 * time.Second
	}
	return &Watcher{
		syncer:     syncer,
		logger:     logger,
		debounce:   debounce,
		debouncers: make(map[string]*Debouncer),
	}
}

// Run watches the targets' save directories until ctx is canceled.
// Directories are watched recursively; directories created while
// watching are added on the fly.
func (w *Watcher) Run(ctx context.Context, targets []Target) error {
	if len(targets) == 0 {
		return fmt.Errorf("no targets to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	// Map each watched path back to its game.
	roots := make(map[string]Target, len(targets))
	for _, t := range targets {
		if err := addRecursive(fsw, t.SavePath); err != nil {
			return fmt.Errorf("watching %s: %w", t.SavePath, err)
		}
		roots[filepath.Clean(t.SavePath)] = t
		w.logger.Info("watching save directory", "game", t.GameID, "path", t.SavePath)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					fsw.Add(event.Name)
				}
			}
			target, ok := w.targetFor(roots, event.Name)
			if !ok {
				continue
			}
			w.logger.Debug("save change detected", "game", target.GameID, "file", event.Name)
			w.schedule(ctx, target)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// schedule arms (or re-arms) the game's debounce timer.
func (w *Watcher) schedule(ctx context.Context, target Target) {
	w.mu.Lock()
	d, ok := w.debouncers[target.GameID]
	if !ok {
		d = NewDebouncer(w.debounce)
		w.debouncers[target.GameID] = d
	}
	w.mu.Unlock()

	d.Do(func() {
		if ctx.Err() != nil {
			return
		}
		outcome, err := w.syncer.SyncGame(ctx, target.GameID, target.SavePath)
		if err != nil {
			w.logger.Error("watch-triggered sync failed", "game", target.GameID, "error", err)
			return
		}
		w.logger.Info("watch-triggered sync finished", "game", target.GameID, "action", outcome.Action.String())
	})
}

// targetFor resolves which watched root an event path falls under.
func (w *Watcher) targetFor(roots map[string]Target, eventPath string) (Target, bool) {
	path := filepath.Clean(eventPath)
	for path != "" {
		if t, ok := roots[path]; ok {
			return t, true
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}
	return Target{}, false
}

// addRecursive registers root and every directory below it.
func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// Debouncer coalesces a burst of calls into one invocation after a
// quiet period.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn after the delay, canceling any previously scheduled
// invocation.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, fn)
}
