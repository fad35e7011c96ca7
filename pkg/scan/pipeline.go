// Package scan executes the staged scan pipeline for one claimed run:
// fetch, the parallel sca/sast pair, semantic analysis, quality-gate
// publish, normalization, and finalization.
package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asfalis/asfalis/db"
	"github.com/asfalis/asfalis/pkg/platform"
	"github.com/asfalis/asfalis/pkg/scan/driver"
	"github.com/asfalis/asfalis/pkg/sarif"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// ErrJobTimeout is raised at budget checkpoints once the global wall-clock
// budget for a run is exhausted.
var ErrJobTimeout = errors.New("Job timeout")

// DriverFunc is the shared shape of the osv, semgrep and codeql drivers.
type DriverFunc func(ctx context.Context, workDir string, timeout time.Duration) driver.Result

// SonarFunc is the quality-publisher driver shape.
type SonarFunc func(ctx context.Context, workDir, projectKey string, timeout time.Duration) driver.Result

// Pipeline drives the fixed-stage state machine for scan runs.
type Pipeline struct {
	conn    *db.DatabaseConnection
	tokens  platform.TokenBroker
	fetcher *platform.ArchiveFetcher

	osv     DriverFunc
	semgrep DriverFunc
	codeql  DriverFunc
	sonar   SonarFunc

	jobTimeout     time.Duration
	osvTimeout     time.Duration
	semgrepTimeout time.Duration
	codeqlTimeout  time.Duration
	sonarTimeout   time.Duration
}

// NewPipeline builds a pipeline with the real scanner drivers and timeouts
// from configuration.
func NewPipeline(conn *db.DatabaseConnection, tokens platform.TokenBroker, fetcher *platform.ArchiveFetcher) *Pipeline {
	return &Pipeline{
		conn:           conn,
		tokens:         tokens,
		fetcher:        fetcher,
		osv:            driver.RunOSV,
		semgrep:        driver.RunSemgrep,
		codeql:         driver.RunCodeQL,
		sonar:          driver.RunSonar,
		jobTimeout:     time.Duration(viper.GetInt("SCAN_JOB_TIMEOUT")) * time.Second,
		osvTimeout:     time.Duration(viper.GetInt("scan.timeout.osv")) * time.Second,
		semgrepTimeout: time.Duration(viper.GetInt("scan.timeout.semgrep")) * time.Second,
		codeqlTimeout:  time.Duration(viper.GetInt("scan.timeout.codeql")) * time.Second,
		sonarTimeout:   time.Duration(viper.GetInt("scan.timeout.sonar")) * time.Second,
	}
}

// Run executes the pipeline for an already-claimed run. On any error the run
// is transitioned to failed with the error message; individual scanner
// failures are recorded on their stage and do not fail the run.
func (p *Pipeline) Run(ctx context.Context, runID uuid.UUID) error {
	deadline := time.Now().Add(p.jobTimeout)
	rctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	err := p.execute(rctx, runID, deadline)
	if err != nil {
		if markErr := p.conn.MarkScanRunFailed(runID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Str("run_id", runID.String()).Msg("Failed to mark run as failed")
		}
		return err
	}
	return nil
}

type toolOutcome struct {
	name   string
	result driver.Result
}

func (p *Pipeline) execute(ctx context.Context, runID uuid.UUID, deadline time.Time) error {
	run, err := p.conn.GetScanRunByID(runID)
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}
	repo, err := p.conn.GetRepoByID(run.RepoID)
	if err != nil {
		return errors.New("repo not found")
	}

	scratch, err := os.MkdirTemp(workBase(), "asfalis_scan_")
	if err != nil {
		return fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("path", scratch).Msg("Failed to remove scratch directory")
		}
	}()

	logger := log.With().Str("run_id", runID.String()).Str("repo", repo.FullName).Logger()
	logger.Info().Msg("Pipeline started")

	// fetch_repo
	workDir, err := p.fetchRepo(ctx, run, repo, scratch, deadline)
	if err != nil {
		return err
	}

	// sca_osv and sast_semgrep run concurrently; the Wait below is the join
	// barrier before the semantic stage.
	osvStage := p.beginStage(runID, db.StageScaOSV)
	semgrepStage := p.beginStage(runID, db.StageSastSemgrep)

	var osvRes, semgrepRes driver.Result
	var g errgroup.Group
	g.Go(func() error {
		osvRes = p.osv(ctx, workDir, p.osvTimeout)
		p.endStage(osvStage, stageError(osvRes))
		return nil
	})
	g.Go(func() error {
		semgrepRes = p.semgrep(ctx, workDir, p.semgrepTimeout)
		p.endStage(semgrepStage, stageError(semgrepRes))
		return nil
	})
	_ = g.Wait()

	if err := checkBudget(deadline); err != nil {
		return err
	}

	// semantic_codeql
	codeqlStage := p.beginStage(runID, db.StageSemanticCodeQL)
	codeqlRes := p.codeql(ctx, workDir, p.codeqlTimeout)
	p.endStage(codeqlStage, stageError(codeqlRes))

	if err := checkBudget(deadline); err != nil {
		return err
	}

	// sonarqube_publish
	sonarStage := p.beginStage(runID, db.StageSonarQube)
	sonarRes := p.sonar(ctx, workDir, "asfalis-"+runID.String(), p.sonarTimeout)
	p.endStage(sonarStage, stageError(sonarRes))

	if err := checkBudget(deadline); err != nil {
		return err
	}

	// normalize
	outcomes := []toolOutcome{
		{"osv", osvRes},
		{"semgrep", semgrepRes},
		{"codeql", codeqlRes},
		{"sonar", sonarRes},
	}
	findingCount, err := p.normalize(runID, scratch, osvRes, semgrepRes, codeqlRes)
	if err != nil {
		return err
	}

	if err := checkBudget(deadline); err != nil {
		return err
	}

	// finalize
	finalizeStage := p.beginStage(runID, db.StageFinalize)
	summary := buildSummary(outcomes, findingCount)
	if err := p.conn.MarkScanRunCompleted(runID, db.StageFinalize, summary); err != nil {
		p.endStage(finalizeStage, err.Error())
		return fmt.Errorf("finalizing run: %w", err)
	}
	p.endStage(finalizeStage, "")

	logger.Info().Int("findings", findingCount).Str("summary", summary).Msg("Pipeline completed")
	return nil
}

// fetchRepo obtains an installation token, downloads the size-bounded
// archive, and extracts it into the scratch directory. Budget checkpoints
// run between the slow steps.
func (p *Pipeline) fetchRepo(ctx context.Context, run *db.ScanRun, repo *db.Repo, scratch string, deadline time.Time) (string, error) {
	stage := p.beginStage(run.ID, db.StageFetchRepo)

	workDir, err := func() (string, error) {
		token, err := p.tokens.IssueToken(ctx, run.InstallationID)
		if err != nil {
			return "", fmt.Errorf("issuing installation token: %w", err)
		}
		if err := checkBudget(deadline); err != nil {
			return "", err
		}

		ref := run.Branch
		if ref == "" {
			ref = repo.DefaultBranch
		}
		if ref == "" {
			ref = "main"
		}
		archive, err := p.fetcher.Download(ctx, repo.Owner, repo.Name, ref, token)
		if err != nil {
			return "", err
		}
		if err := checkBudget(deadline); err != nil {
			return "", err
		}

		if err := platform.ExtractArchive(archive, scratch); err != nil {
			return "", err
		}
		if err := checkBudget(deadline); err != nil {
			return "", err
		}
		return platform.WorkDir(scratch), nil
	}()

	if err != nil {
		p.endStage(stage, err.Error())
		return "", err
	}
	p.endStage(stage, "")
	return workDir, nil
}

// normalize parses the available SARIF artifacts into findings and stores
// findings, per-tool artifacts and the merged log in a single commit.
func (p *Pipeline) normalize(runID uuid.UUID, scratch string, osvRes, semgrepRes, codeqlRes driver.Result) (int, error) {
	stage := p.beginStage(runID, db.StageNormalize)

	var findings []*db.Finding
	type artifactInput struct {
		name string
		path string
		tool db.FindingTool
	}
	inputs := []artifactInput{
		{db.ArtifactOSV, osvRes.ArtifactPath, db.FindingToolOSV},
		{db.ArtifactSemgrep, semgrepRes.ArtifactPath, db.FindingToolSemgrep},
		{db.ArtifactCodeQL, codeqlRes.ArtifactPath, db.FindingToolCodeQL},
	}

	var artifacts []*db.ScanArtifact
	var sarifPaths []string
	for _, input := range inputs {
		if input.path == "" {
			continue
		}
		for _, finding := range sarif.ParseFindings(input.path, input.tool) {
			finding.ScanRunID = runID
			findings = append(findings, finding)
		}
		content, err := os.ReadFile(input.path)
		if err != nil {
			log.Warn().Err(err).Str("path", input.path).Msg("Scanner artifact vanished before storage")
			continue
		}
		artifacts = append(artifacts, &db.ScanArtifact{
			ScanRunID:   runID,
			Name:        input.name,
			ContentType: db.SARIFContentType,
			Content:     string(content),
		})
		sarifPaths = append(sarifPaths, input.path)
	}

	mergedPath := filepath.Join(scratch, db.ArtifactMerged)
	if sarif.Merge(sarifPaths, mergedPath) {
		content, err := os.ReadFile(mergedPath)
		if err == nil {
			artifacts = append(artifacts, &db.ScanArtifact{
				ScanRunID:   runID,
				Name:        db.ArtifactMerged,
				ContentType: db.SARIFContentType,
				Content:     string(content),
			})
		}
	}

	err := p.conn.Transaction(func(tx *db.DatabaseConnection) error {
		if err := tx.CreateFindings(findings); err != nil {
			return err
		}
		for _, artifact := range artifacts {
			if _, err := tx.CreateScanArtifact(artifact); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.endStage(stage, err.Error())
		return 0, fmt.Errorf("storing findings: %w", err)
	}
	p.endStage(stage, "")
	return len(findings), nil
}

func (p *Pipeline) beginStage(runID uuid.UUID, name string) *db.ScanStage {
	stage := &db.ScanStage{
		ScanRunID: runID,
		Stage:     name,
		StartedAt: time.Now().UTC(),
	}
	if _, err := p.conn.CreateScanStage(stage); err == nil {
		if err := p.conn.SetScanRunCurrentStage(runID, name); err != nil {
			log.Error().Err(err).Str("stage", name).Msg("Failed to set current stage")
		}
	}
	return stage
}

func (p *Pipeline) endStage(stage *db.ScanStage, errorMessage string) {
	if err := p.conn.CloseScanStage(stage.ID, errorMessage); err != nil {
		log.Error().Err(err).Str("stage", stage.Stage).Msg("Failed to close stage")
	}
}

func stageError(res driver.Result) string {
	if res.OK {
		return ""
	}
	return res.Message
}

func checkBudget(deadline time.Time) error {
	if time.Now().After(deadline) {
		return ErrJobTimeout
	}
	return nil
}

func workBase() string {
	if base := viper.GetString("SCAN_WORK_DIR"); base != "" {
		return base
	}
	return os.TempDir()
}

// buildSummary names each tool's outcome: "ok" for a produced artifact (or a
// successful publish for sonar), "skip" otherwise.
func buildSummary(outcomes []toolOutcome, findingCount int) string {
	parts := make([]string, 0, len(outcomes)+1)
	for _, o := range outcomes {
		status := "skip"
		switch o.name {
		case "sonar":
			if o.result.OK && !strings.HasPrefix(o.result.Message, "Skipped") {
				status = "ok"
			}
		default:
			if o.result.ArtifactPath != "" {
				status = "ok"
			}
		}
		parts = append(parts, fmt.Sprintf("%s: %s", o.name, status))
	}
	return fmt.Sprintf("%s; findings: %d", strings.Join(parts, ", "), findingCount)
}
