// Package driver invokes the external scanner binaries as child processes
// and reports where each one left its SARIF output.
package driver

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result is the outcome of one scanner invocation. ArtifactPath is empty
// when the tool produced no output file (failure, or a legitimate empty
// result).
type Result struct {
	OK           bool
	Message      string
	ArtifactPath string
}

// run executes a child process in dir with a hard-kill timeout, capturing
// stdout and stderr together. A missing binary maps to "command not found",
// a kill by deadline or parent cancellation maps to "timeout".
func run(ctx context.Context, dir string, timeout time.Duration, env []string, name string, args ...string) (bool, string) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if cctx.Err() != nil {
			return false, "timeout"
		}
		if errors.Is(err, exec.ErrNotFound) {
			return false, "command not found"
		}
		return false, string(out)
	}
	return true, string(out)
}

func messageOr(out, fallback string) string {
	if out == "" {
		return fallback
	}
	return out
}
