package analyzers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ToolConfig locates the optional external analyzers
type ToolConfig struct {
	RuffPath   string        `yaml:"ruff_path" json:"ruff_path"`
	BanditPath string        `yaml:"bandit_path" json:"bandit_path"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultToolConfig returns tool settings that resolve binaries from PATH
func DefaultToolConfig() ToolConfig {
	return ToolConfig{
		RuffPath:   "ruff",
		BanditPath: "bandit",
		Timeout:    30 * time.Second,
	}
}

// ErrToolNotFound is returned when an external analyzer binary is missing
var ErrToolNotFound = errors.New("tool not found")

// commandRunner executes an external tool; tests replace it
type commandRunner func(ctx context.Context, stdin []byte, name string, args ...string) (stdout []byte, exitCode int, err error)

// runCommand feeds stdin to the tool and returns stdout. A non-zero exit
// code is not an error by itself: linters exit 1 when they find something.
func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, int, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, -1, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, -1, fmt.Errorf("failed to run %s: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), 0, nil
}

// withTimeout applies the tool timeout, if any
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
