package cmd

import (
	"time"

	"github.com/asfalis/asfalis/db"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var orphanAge string

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Mark orphaned scan runs as failed",
	Long: `Finds scan runs stuck in the running state for longer than the threshold
and marks them as failed. Workers perform the same sweep at startup; this
command runs it on demand.

Examples:
  # Use the configured threshold (default 1 hour)
  asfalis cleanup

  # Fail runs that have been running for more than 10 minutes
  asfalis cleanup --age 10m`,
	Run: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVar(&orphanAge, "age", "", "Fail runs running for longer than this duration (overrides config)")
}

func runCleanup(cmd *cobra.Command, args []string) {
	logger := log.With().Str("component", "cleanup-cli").Logger()

	threshold := time.Duration(viper.GetInt("worker.orphan_threshold")) * time.Second
	if orphanAge != "" {
		parsed, err := time.ParseDuration(orphanAge)
		if err != nil {
			logger.Fatal().Err(err).Str("age", orphanAge).Msg("Invalid age")
		}
		threshold = parsed
	}

	db.InitDb()

	count, err := db.Connection().FailOrphanedRuns(threshold)
	if err != nil {
		logger.Fatal().Err(err).Msg("Orphaned run sweep failed")
	}
	if count == 0 {
		logger.Info().Msg("No orphaned runs found")
		return
	}
	logger.Info().Int64("count", count).Dur("threshold", threshold).Msg("Marked orphaned runs as failed")
}
