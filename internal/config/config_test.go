package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestSetDefaultConfig(t *testing.T) {
	SetDefaultConfig()

	assert.Equal(t, 5, viper.GetInt("WORKER_POLL_INTERVAL"))
	assert.Equal(t, 600, viper.GetInt("SCAN_JOB_TIMEOUT"))
	assert.Equal(t, 3600, viper.GetInt("worker.orphan_threshold"))
	assert.Equal(t, int64(50*1024*1024), viper.GetInt64("MAX_ARCHIVE_BYTES"))
	assert.Equal(t, 120, viper.GetInt("scan.timeout.osv"))
	assert.Equal(t, 300, viper.GetInt("scan.timeout.semgrep"))
	assert.Equal(t, 600, viper.GetInt("scan.timeout.codeql"))
	assert.Equal(t, 300, viper.GetInt("scan.timeout.sonar"))
	assert.Equal(t, 8013, viper.GetInt("api.listen.port"))
}
