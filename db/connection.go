package db

import (
	stdlog "log"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseConnection wraps the gorm handle and exposes the catalog operations.
type DatabaseConnection struct {
	db *gorm.DB
}

var (
	connection     *DatabaseConnection
	connectionOnce sync.Once
)

// Connection returns the shared database connection, initializing it on
// first use.
func Connection() *DatabaseConnection {
	connectionOnce.Do(func() {
		connection = initDb()
	})
	return connection
}

// InitDb eagerly opens the shared connection and runs the schema bootstrap.
func InitDb() *DatabaseConnection {
	return Connection()
}

// initDb opens the catalog database. DATABASE_TYPE selects the dialect:
// "postgres" requires DATABASE_URL, anything else falls back to a local
// sqlite file.
func initDb() *DatabaseConnection {
	viper.AutomaticEnv()

	dbType := viper.GetString("DATABASE_TYPE")
	if dbType == "" {
		dbType = "sqlite"
	}

	var dialector gorm.Dialector
	if dbType == "postgres" {
		dsn := viper.GetString("DATABASE_URL")
		if dsn == "" {
			log.Error().Msg("DATABASE_URL environment variable not set")
			os.Exit(1)
		}
		dialector = postgres.Open(dsn)
	} else {
		path := viper.GetString("DATABASE_PATH")
		if path == "" {
			path = "asfalis.db"
		}
		dialector = sqlite.Open(path)
	}

	newLogger := logger.New(
		stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  false,
		},
	)
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		os.Exit(1)
	}

	// AutoMigrate is idempotent and adds columns introduced by newer
	// versions (scan_runs.current_stage) without touching existing data.
	if err := gormDB.AutoMigrate(
		&Installation{},
		&Repo{},
		&ScanRun{},
		&ScanStage{},
		&Finding{},
		&ScanArtifact{},
	); err != nil {
		log.Error().Err(err).Msg("Failed to migrate database")
		os.Exit(1)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Error().Err(err).Msg("Failed to get underlying database connection")
		os.Exit(1)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(40)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &DatabaseConnection{db: gormDB}
}

// DB exposes the raw gorm handle.
func (d *DatabaseConnection) DB() *gorm.DB {
	return d.db
}

// Transaction runs fn inside a scoped transaction: commit when fn returns
// nil, rollback when it returns an error or panics.
func (d *DatabaseConnection) Transaction(fn func(tx *DatabaseConnection) error) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		return fn(&DatabaseConnection{db: tx})
	})
}

func (d *DatabaseConnection) isPostgres() bool {
	return d.db.Dialector.Name() == "postgres"
}
