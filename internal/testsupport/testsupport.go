// Package testsupport builds an in-memory SQLite-backed Store for
// package tests, grounded on the teacher's internal/config/database.go
// multi-driver support (it already carries gorm.io/driver/sqlite and
// mattn/go-sqlite3 alongside Postgres). Tests exercise the real
// transaction boundary in internal/store without a live Postgres.
package testsupport

import (
	"testing"

	"github.com/abdoElHodaky/cremer-line-core/internal/models"
	"github.com/abdoElHodaky/cremer-line-core/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewStore opens a fresh shared-cache in-memory SQLite database named
// after the calling test, migrates every entity the core owns, and
// wraps it in a Store. Each test gets its own isolated database.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared&_fk=1"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// :memory: SQLite is per-connection; pin the pool to one connection
	// so every caller inside the test sees the same database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Order{},
		&models.ExtraData{},
		&models.Pause{},
		&models.Metricas{},
		&models.Acumula{},
		&models.BottleCounter{},
		&models.OrderDeleteAudit{},
	))

	return store.New(db, zap.NewNop())
}
