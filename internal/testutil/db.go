package testutil

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const PostgresEnv = "MARKETPLACE_TEST_DATABASE_URL"

// NewDB returns a migrated in-memory sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, repo.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewPostgresDB connects to the database named by MARKETPLACE_TEST_DATABASE_URL
// and skips the test when it is not set. Tables are truncated on cleanup.
func NewPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(PostgresEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresEnv)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, repo.Migrate(db))

	truncate := func() {
		db.Exec("TRUNCATE TABLE product_tags, tags, prices, products, purchase_requests, marketplace_members, marketplace_owners, marketplaces, users CASCADE")
	}
	truncate()
	t.Cleanup(truncate)
	return db
}
