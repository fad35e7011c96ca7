package config

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// LoadConfig reads the optional config file and installs defaults. All
// settings can be overridden through the environment.
func LoadConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/asfalis/")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debug().Msg("Config file not found, using defaults")
		} else {
			log.Panic().Err(err).Msg("Fatal error reading config file")
		}
	}
	SetDefaultConfig()
}

func SetDefaultConfig() {
	// Worker
	viper.SetDefault("WORKER_POLL_INTERVAL", 5)
	viper.SetDefault("SCAN_JOB_TIMEOUT", 600)
	viper.SetDefault("worker.orphan_threshold", 3600)

	// Archive fetching
	viper.SetDefault("MAX_ARCHIVE_BYTES", 50*1024*1024)
	viper.SetDefault("SCAN_WORK_DIR", "")

	// Per-stage scanner timeouts, seconds
	viper.SetDefault("scan.timeout.osv", 120)
	viper.SetDefault("scan.timeout.semgrep", 300)
	viper.SetDefault("scan.timeout.codeql", 600)
	viper.SetDefault("scan.timeout.sonar", 300)

	// API
	viper.SetDefault("api.listen.host", "")
	viper.SetDefault("api.listen.port", 8013)
	viper.SetDefault("api.cors.origins", []string{"http://localhost:3000"})
}
