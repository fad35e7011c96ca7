package cmd

import (
	"github.com/asfalis/asfalis/api"

	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the API server",
	Long: `Starts the HTTP API used to enqueue scans, read results and ingest
platform webhooks. Scan execution itself is handled by worker processes.`,
	Run: func(cmd *cobra.Command, args []string) {
		api.StartAPI()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
