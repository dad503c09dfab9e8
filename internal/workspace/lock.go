package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the exclusive lock file created inside the backup directory
const LockFileName = ".janitor.lock"

// ErrLocked is returned when another live janitor process holds the lock
var ErrLocked = errors.New("backup directory is locked by another janitor process")

// ExclusiveLock is the lock file format. A clean run writes it into the
// backup directory so two processes never snapshot and restore the same
// files concurrently.
type ExclusiveLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// AcquireExclusiveLock creates the lock file in dir (creating dir if
// needed). A lock left by a dead process on this host is taken over.
// Returns the lock file path for ReleaseExclusiveLock.
func AcquireExclusiveLock(dir, holder, version string) (lockPath string, err error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create lock directory: %w", err)
	}
	lockPath = filepath.Join(dir, LockFileName)

	existing, err := ReadExclusiveLock(lockPath)
	if err == nil && isProcessAlive(existing.PID, existing.Hostname) {
		return "", fmt.Errorf("%w (%s PID %d on %s, started %s)", ErrLocked,
			existing.Holder, existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
	}
	if !os.IsNotExist(err) {
		// Stale or unreadable lock
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := ExclusiveLock{
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL closes the window between the stale check and the write
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", ErrLocked
		}
		return "", fmt.Errorf("failed to create exclusive lock: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(lockPath)
		return "", fmt.Errorf("failed to write exclusive lock: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(lockPath)
		return "", fmt.Errorf("failed to write exclusive lock: %w", err)
	}

	return lockPath, nil
}

// ReadExclusiveLock parses an existing lock file
func ReadExclusiveLock(lockPath string) (*ExclusiveLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var lock ExclusiveLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("corrupt lock file %s: %w", lockPath, err)
	}
	return &lock, nil
}

// ReleaseExclusiveLock removes the lock file. Call it with defer.
func ReleaseExclusiveLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove exclusive lock: %w", err)
	}
	return nil
}

// isProcessAlive checks whether pid exists on hostname. Remote hosts and
// processes we are not allowed to signal count as alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		return true
	}
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
