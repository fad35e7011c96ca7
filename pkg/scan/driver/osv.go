package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Phrases osv-scanner emits when a tree simply has nothing to scan. A
// non-zero exit accompanied by one of these is an empty result, not a
// failure.
var osvNoDepsPhrases = []string{
	"no lockfile",
	"no package",
	"no supported",
	"no dependency",
	"no manifest",
	"no files to scan",
}

// RunOSV performs software-composition analysis on workDir, writing
// osv.sarif into it.
func RunOSV(ctx context.Context, workDir string, timeout time.Duration) Result {
	outPath := filepath.Join(workDir, "osv.sarif")
	ok, out := run(ctx, workDir, timeout, nil,
		"osv-scanner", "scan", "--format", "sarif", "--output", outPath, ".")
	if ok && fileExists(outPath) {
		return Result{OK: true, Message: messageOr(out, "ok"), ArtifactPath: outPath}
	}
	lower := strings.ToLower(out)
	for _, phrase := range osvNoDepsPhrases {
		if strings.Contains(lower, phrase) {
			return Result{OK: true, Message: "No supported dependency files in this repo."}
		}
	}
	return Result{OK: false, Message: messageOr(out, "no output file")}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func fileNonEmpty(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
