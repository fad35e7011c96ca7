package driver

import (
	"context"
	"path/filepath"
	"time"
)

const semgrepMessageLimit = 8000

// RunSemgrep performs pattern-based static analysis on workDir with the
// p/default ruleset, writing semgrep.sarif into it. A non-zero exit that
// still produced a non-empty output file counts as a partial success.
func RunSemgrep(ctx context.Context, workDir string, timeout time.Duration) Result {
	outPath := filepath.Join(workDir, "semgrep.sarif")
	ok, out := run(ctx, workDir, timeout, nil,
		"semgrep", "scan", "--sarif", "--sarif-output", outPath, "--config", "p/default", ".")
	if ok && fileExists(outPath) {
		return Result{OK: true, Message: messageOr(out, "ok"), ArtifactPath: outPath}
	}
	if fileNonEmpty(outPath) {
		msg := messageOr(out, "ok")
		if len(msg) > semgrepMessageLimit {
			msg = msg[:semgrepMessageLimit]
		}
		return Result{OK: true, Message: msg, ArtifactPath: outPath}
	}
	return Result{OK: false, Message: messageOr(out, "no output file")}
}
