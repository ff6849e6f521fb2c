package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BroadApps-official/App-056/internal/logger"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

type Options struct {
	// Path of the SQLite file. Ignored when URL is set.
	Path string
	// URL is a Postgres connection string, served through lib/pq.
	URL string
}

// Open connects to the local store and brings its schema up to date.
func Open(ctx context.Context, opts Options, log *logger.Logger) (*gorm.DB, error) {
	dbLog := log.With("service", "Database")

	gormCfg := &gorm.Config{
		Logger: gormLogger.New(
			zap.NewStdLog(log.SugaredLogger.Desugar()),
			gormLogger.Config{
				SlowThreshold:             500 * time.Millisecond,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	var (
		db  *gorm.DB
		err error
	)
	if opts.URL != "" {
		db, err = gorm.Open(postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        opts.URL,
		}), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		dbLog.Info("Connected to Postgres")
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("database path is required")
		}
		if dir := filepath.Dir(opts.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn := opts.Path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		dbLog.Info("Opened SQLite database", "path", opts.Path)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	if opts.URL == "" {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := NewMigrator(sqlDB, log).Run(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
