package workspace

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "x = 1\n")
	writeFile(t, filepath.Join(root, "b.go"), "package b\n")
	writeFile(t, filepath.Join(root, "README.md"), "# hi\n")
	writeFile(t, filepath.Join(root, "pkg", "c.js"), "let c = 1;\n")
	writeFile(t, filepath.Join(root, "node_modules", "dep", "d.js"), "let d = 1;\n")
	writeFile(t, filepath.Join(root, ".janitor_backups", "e.py"), "e = 1\n")

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{"top level only", false, []string{"a.py", "b.go"}},
		{"recursive skips vendored dirs", true, []string{"a.py", "b.go", "pkg/c.js"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths, err := Discover(root, DiscoverOptions{Recursive: tt.recursive})
			require.NoError(t, err)

			var rel []string
			for _, p := range paths {
				assert.True(t, filepath.IsAbs(p))
				r, err := filepath.Rel(root, p)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestDiscoverSingleFile(t *testing.T) {
	root := t.TempDir()
	py := filepath.Join(root, "one.py")
	md := filepath.Join(root, "notes.md")
	writeFile(t, py, "x = 1\n")
	writeFile(t, md, "text\n")

	paths, err := Discover(py, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{py}, paths)

	_, err = Discover(md, DiscoverOptions{})
	assert.Error(t, err)

	_, err = Discover(filepath.Join(root, "missing.py"), DiscoverOptions{})
	assert.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.py")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0600))

	require.NoError(t, WriteFileAtomic(path, []byte("new\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteFileAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing-dir", "unit.py")

	err := WriteFileAtomic(path, []byte("data"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUnitLocksSerialize(t *testing.T) {
	locks := NewUnitLocks()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(ctx, "/src/a.py")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.False(t, locks.Held("/src/a.py"), "lock table entry is dropped when idle")
}

func TestUnitLocksIndependentUnitsAndCancel(t *testing.T) {
	locks := NewUnitLocks()

	unlockA, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)

	unlockB, err := locks.Lock(context.Background(), "b")
	require.NoError(t, err, "different units do not block each other")
	unlockB()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlockA()
	unlockA() // second call is a no-op
	assert.False(t, locks.Held("a"))
}

func TestExclusiveLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".janitor_backups")

	lockPath, err := AcquireExclusiveLock(dir, "janitor clean", "test")
	require.NoError(t, err)
	assert.FileExists(t, lockPath)

	lock, err := ReadExclusiveLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "janitor clean", lock.Holder)

	// This process is alive, so a second acquire is rejected
	_, err = AcquireExclusiveLock(dir, "janitor clean", "test")
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, ReleaseExclusiveLock(lockPath))
	assert.NoFileExists(t, lockPath)
	require.NoError(t, ReleaseExclusiveLock(lockPath), "release is idempotent")
}

func TestExclusiveLockTakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	hostname, err := os.Hostname()
	require.NoError(t, err)

	stale := ExclusiveLock{
		Holder:    "janitor clean",
		PID:       2147483646, // beyond any pid_max
		Hostname:  hostname,
		StartedAt: time.Now().Add(-time.Hour),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), data, 0644))

	lockPath, err := AcquireExclusiveLock(dir, "janitor clean", "test")
	require.NoError(t, err)
	defer func() { _ = ReleaseExclusiveLock(lockPath) }()

	lock, err := ReadExclusiveLock(lockPath)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), lock.PID)
}

func TestExclusiveLockReplacesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LockFileName), []byte("{not json"), 0644))

	lockPath, err := AcquireExclusiveLock(dir, "janitor clean", "test")
	require.NoError(t, err)
	assert.NoError(t, ReleaseExclusiveLock(lockPath))
}
