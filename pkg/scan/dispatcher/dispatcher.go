// Package dispatcher runs the long-lived claim loop: it claims the oldest
// queued scan run under skip-locked semantics and hands it to the pipeline.
package dispatcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/asfalis/asfalis/db"
	"github.com/asfalis/asfalis/pkg/scan"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds dispatcher parameters.
type Config struct {
	// PollInterval is the sleep between empty polls.
	PollInterval time.Duration
	// OrphanThreshold is how old a running run must be before the startup
	// sweep declares it orphaned. Zero disables the sweep.
	OrphanThreshold time.Duration
	// WorkerID identifies this dispatcher in logs.
	WorkerID string
}

// DefaultConfig returns dispatcher parameters from configuration.
func DefaultConfig() Config {
	hostname, _ := os.Hostname()
	return Config{
		PollInterval:    time.Duration(viper.GetInt("WORKER_POLL_INTERVAL")) * time.Second,
		OrphanThreshold: time.Duration(viper.GetInt("worker.orphan_threshold")) * time.Second,
		WorkerID:        fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
	}
}

// Dispatcher claims queued runs one at a time and executes the pipeline for
// each. Multiple dispatchers may run against the same database; claiming
// correctness relies entirely on row-level locking in the claim query.
type Dispatcher struct {
	conn     *db.DatabaseConnection
	pipeline *scan.Pipeline
	cfg      Config
	logger   zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a dispatcher.
func New(conn *db.DatabaseConnection, pipeline *scan.Pipeline, cfg Config) *Dispatcher {
	return &Dispatcher{
		conn:     conn,
		pipeline: pipeline,
		cfg:      cfg,
		logger:   log.With().Str("component", "dispatcher").Str("worker_id", cfg.WorkerID).Logger(),
	}
}

// Start launches the claim loop. It returns immediately; use Stop for a
// graceful shutdown.
func (d *Dispatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	if d.cfg.OrphanThreshold > 0 {
		if count, err := d.conn.FailOrphanedRuns(d.cfg.OrphanThreshold); err != nil {
			d.logger.Error().Err(err).Msg("Orphaned run sweep failed")
		} else if count > 0 {
			d.logger.Warn().Int64("count", count).Msg("Marked orphaned runs as failed")
		}
	}

	d.wg.Add(1)
	go d.loop(ctx)
	d.logger.Info().Dur("poll_interval", d.cfg.PollInterval).Msg("Dispatcher started")
}

// Stop cancels the loop and waits for the in-flight run, if any, to finish
// its current pipeline invocation.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.logger.Info().Msg("Dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		run, err := d.conn.ClaimScanRun()
		if err != nil {
			d.logger.Error().Err(err).Msg("Claim failed, retrying after poll interval")
			d.sleep(ctx)
			continue
		}
		if run == nil {
			d.sleep(ctx)
			continue
		}

		d.logger.Info().Str("run_id", run.ID.String()).Int64("repo_id", run.RepoID).Msg("Run claimed")
		d.process(ctx, run.ID)
		// Claim again immediately; only empty polls sleep.
	}
}

// process executes one pipeline run and never lets an error escape the
// loop. On panic or error a best-effort terminal transition is made; the
// pipeline normally performs it itself.
func (d *Dispatcher) process(ctx context.Context, runID uuid.UUID) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("run_id", runID.String()).Msg("Pipeline panicked")
			if err := d.conn.MarkScanRunFailed(runID, fmt.Sprintf("panic: %v", r)); err != nil {
				d.logger.Error().Err(err).Str("run_id", runID.String()).Msg("Failed to mark panicked run as failed")
			}
		}
	}()

	if err := d.pipeline.Run(ctx, runID); err != nil {
		d.logger.Warn().Err(err).Str("run_id", runID.String()).Msg("Run failed")
		return
	}
	d.logger.Info().Str("run_id", runID.String()).Msg("Run completed")
}

func (d *Dispatcher) sleep(ctx context.Context) {
	timer := time.NewTimer(d.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
