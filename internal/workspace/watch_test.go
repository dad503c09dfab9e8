package workspace

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// watchInBackground collects every batch reported by Watch
func watchInBackground(t *testing.T, root string, opts WatchOptions) (func() []string, context.CancelFunc, <-chan error) {
	t.Helper()
	var mu sync.Mutex
	var seen []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, opts, func(paths []string) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, paths...)
		})
	}()
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), seen...)
	}, cancel, done
}

func TestWatchReportsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	py := filepath.Join(root, "a.py")
	writeFile(t, py, "x = 1\n")

	seen, cancel, done := watchInBackground(t, root, WatchOptions{Debounce: 20 * time.Millisecond})
	defer cancel()

	// The watcher registers asynchronously; keep writing until it reports
	require.Eventually(t, func() bool {
		writeFile(t, filepath.Join(root, "notes.txt"), "ignored\n")
		writeFile(t, py, "x = 2\n")
		return len(seen()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	for _, p := range seen() {
		assert.Equal(t, py, p)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchSingleFileIgnoresSiblings(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "a.py")
	sibling := filepath.Join(root, "b.py")
	writeFile(t, target, "x = 1\n")
	writeFile(t, sibling, "y = 1\n")

	seen, cancel, _ := watchInBackground(t, target, WatchOptions{Debounce: 20 * time.Millisecond})
	defer cancel()

	require.Eventually(t, func() bool {
		writeFile(t, sibling, "y = 2\n")
		writeFile(t, target, "x = 2\n")
		return len(seen()) > 0
	}, 5*time.Second, 50*time.Millisecond)

	assert.NotContains(t, seen(), sibling)
}

func TestWatchMissingRoot(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), WatchOptions{}, func([]string) {})
	assert.Error(t, err)
}
