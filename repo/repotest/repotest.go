// Package repotest opens migrated in-memory SQLite databases for tests.
package repotest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"newsletter/repo"
)

// NewBaseRepo returns a BaseRepo over a private in-memory database with
// every model migrated. The database is closed when the test ends.
func NewBaseRepo(t testing.TB) repo.BaseRepo {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serializes writers
	sqlDB.SetMaxOpenConns(1)

	baseRepo := repo.NewBaseRepoWithDB(db)
	require.NoError(t, baseRepo.AutoMigrate(context.Background(), repo.Models()...))

	t.Cleanup(func() {
		_ = baseRepo.Close(context.Background())
	})

	return baseRepo
}
