// Package script executes setup, cleanup, and verify scripts for
// conversation groups. The core only interprets the exit code; stdout and
// stderr are captured for diagnostics.
package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single script execution.
const DefaultTimeout = 5 * time.Minute

// Runner resolves and executes scripts with bash.
type Runner struct {
	// BaseDir anchors relative script paths, normally the directory of the
	// evaluation data file.
	BaseDir string
	Timeout time.Duration
	Env     []string // extra environment entries, KEY=VALUE
	Logger  *zap.SugaredLogger
}

// Outcome reports one script execution.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Run executes the script at path and returns its outcome. A non-zero exit
// code is reported in the outcome, not as an error; errors mean the script
// could not be executed at all (missing file, timeout, spawn failure).
func (r *Runner) Run(ctx context.Context, path string, args ...string) (*Outcome, error) {
	if r == nil {
		return nil, errors.New("script: nil runner")
	}
	if ctx == nil {
		return nil, errors.New("script: nil context")
	}

	resolved, err := r.resolve(path)
	if err != nil {
		return nil, err
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", append([]string{resolved}, args...)...)
	cmd.Env = append(os.Environ(), r.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	out := &Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		// A killed process still surfaces as *exec.ExitError, so the
		// context has to be consulted first to tell a timeout apart
		// from a genuine non-zero exit.
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, fmt.Errorf("script: %q timed out after %s", path, timeout)
			}
			return nil, fmt.Errorf("script: run %q: %w", path, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			if r.Logger != nil {
				r.Logger.Debugw("script exited non-zero", "script", resolved, "exit_code", out.ExitCode, "stderr", out.Stderr)
			}
			return out, nil
		}
		return nil, fmt.Errorf("script: run %q: %w", path, runErr)
	}
	return out, nil
}

// resolve turns a script reference into an absolute path. Absolute paths are
// used as-is, "~/" is home-relative, and anything else is relative to
// BaseDir (or the working directory when BaseDir is empty).
func (r *Runner) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("script: empty script path")
	}

	switch {
	case filepath.IsAbs(path):
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("script: resolve %q: %w", path, err)
		}
		path = filepath.Join(home, path[2:])
	default:
		path = filepath.Join(r.BaseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("script: %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("script: %q is a directory", path)
	}
	return path, nil
}
