// Package execx provides structured helpers for invoking the external
// tools relkit orchestrates (git, npm, gpg, gh).
//
// Every wrapper package builds on Run/RunContext so that timeouts,
// stderr capture, and output parsing behave the same regardless of
// which binary is being driven.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single external command invocation.
// Registry-facing npm commands override this with a longer budget.
const DefaultTimeout = 30 * time.Second

// ErrToolNotFound is returned when a required binary is not in PATH.
var ErrToolNotFound = errors.New("required tool not found in PATH")

// RunContext executes an external command with timeout and context support.
//
// Example:
//
//	out, err := execx.RunContext(ctx, 30*time.Second, repoRoot, "git", "status", "--porcelain")
func RunContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Include stderr in the error so callers can surface tool
		// diagnostics without re-running the command.
		if stderr.Len() > 0 {
			return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s",
				name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return stdout.Bytes(), nil
}

// Run is a simplified RunContext with the default timeout.
func Run(workDir string, name string, args ...string) ([]byte, error) {
	return RunContext(context.Background(), DefaultTimeout, workDir, name, args...)
}

// RunLines executes a command and returns its output as non-empty lines.
func RunLines(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]string, error) {
	output, err := RunContext(ctx, timeout, workDir, name, args...)
	if err != nil {
		return nil, err
	}
	return ParseLines(output), nil
}

// LookPath reports whether the named binary is available, wrapping the
// miss in ErrToolNotFound so callers can classify it.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

// ParseLines splits command output into trimmed, non-empty lines.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}
	return result
}

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// FirstWord returns the first whitespace-separated word from output.
func FirstWord(output []byte) string {
	fields := strings.Fields(TrimOutput(output))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsExitError returns true if err is an exit error with non-zero status.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// ExitCode returns the exit code from an error, or -1 if not an exit error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
