// Package workspace handles the files the janitor operates on: finding
// source units under a path, replacing them atomically, and making sure
// only one writer touches a unit (or a backup directory) at a time.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/webspoilt/code-janitor/internal/source"
)

// DefaultSkipDirs are directory names never descended into
var DefaultSkipDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor",
	"__pycache__", ".venv", "venv", ".tox", ".mypy_cache", ".ruff_cache",
	"dist", "build",
	".janitor", ".janitor_backups",
}

// DiscoverOptions controls unit discovery
type DiscoverOptions struct {
	Recursive bool
	SkipDirs  []string // Default: DefaultSkipDirs
}

// Discover returns the absolute paths of supported source files under
// root, sorted. A file root is returned as-is if its language is
// supported. A directory root lists its direct children unless Recursive.
func Discover(root string, opts DiscoverOptions) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	if !info.IsDir() {
		if !source.Detect(abs).Supported() {
			return nil, fmt.Errorf("unsupported file type: %s", root)
		}
		return []string{abs}, nil
	}

	skip := opts.SkipDirs
	if skip == nil {
		skip = DefaultSkipDirs
	}
	skipSet := make(map[string]bool, len(skip))
	for _, name := range skip {
		skipSet[name] = true
	}

	var paths []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == abs {
				return nil
			}
			if !opts.Recursive || skipSet[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if source.Detect(path).Supported() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	sort.Strings(paths)
	return paths, nil
}
