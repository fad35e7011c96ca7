package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "asfalis_db_test")
	if err != nil {
		panic(err)
	}
	viper.Set("DATABASE_TYPE", "sqlite")
	viper.Set("DATABASE_PATH", filepath.Join(dir, "test.db"))

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}
