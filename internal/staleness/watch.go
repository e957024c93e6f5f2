package staleness

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/rlm/internal/manifest"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-runs a staleness check whenever files under a path change.
type Watcher struct {
	detector *Detector
	path     string
	debounce time.Duration
	exclude  []string
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(detector *Detector, path string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	exclude := manifest.DefaultExcludeDirs
	if detector.builder != nil && detector.builder.ExcludeDirs != nil {
		exclude = detector.builder.ExcludeDirs
	}
	return &Watcher{detector: detector, path: path, debounce: debounce, exclude: exclude}
}

// Watch reports the current staleness once, then again after every settled
// burst of file changes, until ctx is cancelled. It returns nil on
// cancellation.
func (w *Watcher) Watch(ctx context.Context, report func(*Report)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.path); err != nil {
		return err
	}

	w.check(ctx, report)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.excluded(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, event.Name); err != nil {
						w.detector.logger.Warn("watch new directory", "dir", event.Name, "error", err)
					}
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.detector.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			w.check(ctx, report)
		}
	}
}

func (w *Watcher) check(ctx context.Context, report func(*Report)) {
	r, err := w.detector.Check(ctx, w.path)
	if err != nil {
		w.detector.logger.Warn("staleness check failed", "path", w.path, "error", err)
		return
	}
	report(r)
}

// addTree watches root and every non-excluded directory below it. fsnotify
// does not recurse on its own.
func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return fw.Add(filepath.Dir(root))
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && slices.Contains(w.exclude, d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) excluded(name string) bool {
	rel, err := filepath.Rel(w.path, name)
	if err != nil {
		return false
	}
	for dir := filepath.Dir(rel); dir != "." && dir != "/" && dir != ""; dir = filepath.Dir(dir) {
		if slices.Contains(w.exclude, filepath.Base(dir)) {
			return true
		}
	}
	return slices.Contains(w.exclude, filepath.Base(rel))
}
