package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/asfalis/asfalis/db"
	"github.com/asfalis/asfalis/pkg/platform"
	"github.com/asfalis/asfalis/pkg/scan"
	"github.com/asfalis/asfalis/pkg/scan/dispatcher"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var workerID string

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a scan worker",
	Long: `Start a worker process that claims queued scan runs from the database
and executes the scan pipeline for each.

Multiple worker processes can run simultaneously against the same database,
competing for runs via the queue. On startup the worker also sweeps runs
left in the running state by a previous crash and marks them as failed.`,
	Run: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringVar(&workerID, "id", "", "Custom worker ID (auto-generated if not set)")
}

func runWorker(cmd *cobra.Command, args []string) {
	logger := log.With().Str("component", "worker-cli").Logger()

	db.InitDb()
	logger.Info().Msg("Database connected")

	tokens, err := platform.NewAppTokenBroker()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token broker")
	}
	fetcher := platform.NewArchiveFetcher(viper.GetInt64("MAX_ARCHIVE_BYTES"))
	pipeline := scan.NewPipeline(db.Connection(), tokens, fetcher)

	cfg := dispatcher.DefaultConfig()
	if workerID != "" {
		cfg.WorkerID = workerID
	}

	d := dispatcher.New(db.Connection(), pipeline, cfg)
	d.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info().Str("worker_id", cfg.WorkerID).Msg("Worker started, press Ctrl+C to stop")

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	d.Stop()
	logger.Info().Msg("Worker stopped")
}
