package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// resolveCodeQLBinary probes the known layouts under CODEQL_HOME, falling
// back to whatever "codeql" resolves to on PATH.
func resolveCodeQLBinary() string {
	home := viper.GetString("CODEQL_HOME")
	if home == "" {
		return "codeql"
	}
	base := strings.TrimRight(home, "/")
	candidates := []string{
		filepath.Join(base, "codeql", "bin", "codeql"),
		filepath.Join(base, "codeql", "codeql"),
		filepath.Join(base, "codeql.exe"),
	}
	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate
		}
	}
	return filepath.Join(base, "codeql", "codeql")
}

// codeqlEnv is the parent environment minus CODEQL_HOME; the CLI discovers
// its bundle from its own executable path, and an inherited CODEQL_HOME
// makes it resolve the bundle incorrectly.
func codeqlEnv() []string {
	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "CODEQL_HOME=") {
			continue
		}
		filtered = append(filtered, kv)
	}
	return filtered
}

// RunCodeQL performs semantic data-flow analysis in two phases: database
// create, then analyze. The intermediate database lives under workDir and a
// stale one from an earlier attempt is removed first.
func RunCodeQL(ctx context.Context, workDir string, timeout time.Duration) Result {
	binary := resolveCodeQLBinary()
	env := codeqlEnv()
	dbPath := filepath.Join(workDir, "codeql_db")
	outPath := filepath.Join(workDir, "codeql.sarif")

	if info, err := os.Stat(dbPath); err == nil && info.IsDir() {
		if err := os.RemoveAll(dbPath); err != nil {
			log.Warn().Err(err).Str("path", dbPath).Msg("Failed to remove stale CodeQL database")
		}
	}

	okCreate, outCreate := run(ctx, workDir, timeout, env,
		binary, "database", "create", dbPath, "--language=python", "--source-root", workDir)
	if !okCreate {
		return Result{OK: false, Message: messageOr(outCreate, "codeql database create failed")}
	}

	okAnalyze, outAnalyze := run(ctx, workDir, timeout, env,
		binary, "database", "analyze", dbPath, "--format=sarif-latest", "--output="+outPath)
	if okAnalyze && fileExists(outPath) {
		return Result{OK: true, Message: messageOr(outAnalyze, "ok"), ArtifactPath: outPath}
	}
	return Result{OK: false, Message: messageOr(outAnalyze, "no output file")}
}
