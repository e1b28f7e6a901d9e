package adapter

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	m "runnel.dev/pkg/runnel/internal/model"
)

// DefaultDebounce is how long the watcher waits for more events before
// reporting a batch.
const DefaultDebounce = 150 * time.Millisecond

// WatchAdapter reports batches of changed source files under a set of roots.
type WatchAdapter interface {
	// Watch starts watching roots recursively. The returned channel receives
	// sorted, de-duplicated paths and is closed once ctx is done.
	Watch(ctx context.Context, roots []string) (<-chan []m.Path, error)
}

// LocalWatchAdapter implements WatchAdapter on top of fsnotify.
type LocalWatchAdapter struct {
	debounce time.Duration
}

// NewLocalWatchAdapter returns a watcher that batches events arriving within debounce.
func NewLocalWatchAdapter(debounce time.Duration) *LocalWatchAdapter {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &LocalWatchAdapter{debounce: debounce}
}

// WatchRoots maps discovery patterns to the directories that must be watched.
// "dir/..." and plain directories watch dir; a file pattern watches its directory.
func WatchRoots(patterns []string) []string {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}

	var roots []string

	for _, pattern := range patterns {
		dir, recursive := strings.CutSuffix(pattern, "...")
		if recursive {
			dir = strings.TrimSuffix(dir, "/")
			if dir == "" {
				dir = "."
			}
		} else if info, err := os.Stat(pattern); err == nil && !info.IsDir() {
			dir = filepath.Dir(pattern)
		}

		dir = filepath.Clean(dir)
		if !slices.Contains(roots, dir) {
			roots = append(roots, dir)
		}
	}

	return roots
}

// Watch implements WatchAdapter.
func (a *LocalWatchAdapter) Watch(ctx context.Context, roots []string) (<-chan []m.Path, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	for _, root := range roots {
		if err := addRecursive(watcher, root); err != nil {
			_ = watcher.Close()

			slog.Error("Failed to watch directory", "root", root, "error", err)

			return nil, fmt.Errorf("watch %s: %w", root, err)
		}
	}

	out := make(chan []m.Path)

	go a.loop(ctx, watcher, out)

	return out, nil
}

func (a *LocalWatchAdapter) loop(ctx context.Context, watcher *fsnotify.Watcher, out chan<- []m.Path) {
	defer close(out)
	defer func() { _ = watcher.Close() }()

	pending := make(map[m.Path]struct{})

	timer := time.NewTimer(a.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						slog.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}

					continue
				}
			}

			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			if !relevant(event.Name) {
				continue
			}

			pending[m.Path(event.Name)] = struct{}{}

			timer.Reset(a.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			slog.Warn("Watcher error", "error", err)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}

			batch := make([]m.Path, 0, len(pending))
			for path := range pending {
				batch = append(batch, path)
			}

			slices.Sort(batch)
			clear(pending)

			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !entry.IsDir() {
			return nil
		}

		if _, skip := skippedDirs[entry.Name()]; skip && path != root {
			return filepath.SkipDir
		}

		return watcher.Add(path)
	})
}

// relevant keeps rust sources and manifests.
func relevant(path string) bool {
	return filepath.Ext(path) == ".rs" || filepath.Base(path) == manifestName
}
