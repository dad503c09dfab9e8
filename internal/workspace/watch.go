package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/webspoilt/code-janitor/internal/source"
)

// DefaultDebounce is how long the watcher waits for more writes before
// reporting a batch
const DefaultDebounce = 200 * time.Millisecond

// WatchOptions controls Watch
type WatchOptions struct {
	Recursive bool
	Debounce  time.Duration // Default: DefaultDebounce
	Logger    *slog.Logger
}

// Watch reports supported source files under root that are written or
// created, batched and sorted, until ctx is done. A file root reports only
// that file. onChange runs on the watcher goroutine; a slow handler delays
// the next batch but never drops events.
func Watch(ctx context.Context, root string, opts WatchOptions, onChange func(paths []string)) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often save by rename, which drops a watch on the file itself,
	// so files are watched through their directory
	match := func(path string) bool { return source.Detect(path).Supported() }
	if !info.IsDir() {
		match = func(path string) bool { return path == abs }
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	} else {
		dirs, err := watchDirs(abs, opts.Recursive)
		if err != nil {
			return err
		}
		for _, dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}
		}
	}

	pending := make(map[string]bool)
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			if event.Has(fsnotify.Create) && opts.Recursive && info.IsDir() {
				if fi, err := os.Stat(path); err == nil && fi.IsDir() && !skipDir(fi.Name()) {
					if err := watcher.Add(path); err != nil {
						logger.Warn("failed to watch new directory", "dir", path, "error", err)
					}
					continue
				}
			}
			if !match(path) {
				continue
			}
			pending[path] = true
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			sort.Strings(batch)
			clear(pending)
			onChange(batch)
		}
	}
}

// watchDirs lists root and, when recursive, every directory Discover would
// descend into
func watchDirs(root string, recursive bool) ([]string, error) {
	if !recursive {
		return []string{root}, nil
	}
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return dirs, nil
}

func skipDir(name string) bool {
	for _, skip := range DefaultSkipDirs {
		if name == skip {
			return true
		}
	}
	return false
}
