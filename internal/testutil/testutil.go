// Package testutil builds the real dependencies package tests run against.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BroadApps-official/App-056/internal/database"
	"github.com/BroadApps-official/App-056/internal/logger"
	"gorm.io/gorm"
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.NewNop()
}

// DB opens a migrated SQLite database in a fresh temp dir. It is closed when
// the test ends.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "test.db")
	db, err := database.Open(context.Background(), database.Options{Path: path}, Logger(tb))
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	tb.Cleanup(func() { _ = database.Close(db) })
	return db
}
