package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const maxProjectKeyLen = 64

// RunSonar publishes the work tree to an external SonarQube server. Without
// SONAR_HOST_URL and SONAR_TOKEN the stage is a skipped success. The scanner
// produces no SARIF artifact.
func RunSonar(ctx context.Context, workDir string, projectKey string, timeout time.Duration) Result {
	hostURL := viper.GetString("SONAR_HOST_URL")
	token := viper.GetString("SONAR_TOKEN")
	if hostURL == "" || token == "" {
		return Result{OK: true, Message: "Skipped: SONAR_HOST_URL or SONAR_TOKEN not set."}
	}

	if len(projectKey) > maxProjectKeyLen {
		projectKey = projectKey[:maxProjectKeyLen]
	}
	props := fmt.Sprintf("sonar.projectKey=%s\nsonar.sources=.\n", projectKey)
	propsPath := filepath.Join(workDir, "sonar-project.properties")
	if err := os.WriteFile(propsPath, []byte(props), 0o644); err != nil {
		return Result{OK: false, Message: fmt.Sprintf("failed to write sonar-project.properties: %v", err)}
	}

	env := append(os.Environ(),
		"SONAR_HOST_URL="+hostURL,
		"SONAR_TOKEN="+token,
	)
	ok, out := run(ctx, workDir, timeout, env,
		"sonar-scanner", "-Dsonar.projectBaseDir="+workDir)
	return Result{OK: ok, Message: out}
}
