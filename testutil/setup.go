package testutil

import (
	"testing"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/cache"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/config"
	dbadapter "github.com/kasuganosora/rpgmakermvmmo/charserver/db"
	"github.com/kasuganosora/rpgmakermvmmo/charserver/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: ":memory:",
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates a LocalCache (no Redis required).
func SetupTestCache(t *testing.T) cache.Cache {
	t.Helper()
	c, err := cache.NewCache(cache.CacheConfig{}) // empty RedisAddr → LocalCache
	require.NoError(t, err, "SetupTestCache: NewCache")
	return c
}

// SetupTestPubSub creates an in-process PubSub (no Redis required).
func SetupTestPubSub(t *testing.T) cache.PubSub {
	t.Helper()
	ps, err := cache.NewPubSub(cache.CacheConfig{})
	require.NoError(t, err, "SetupTestPubSub: NewPubSub")
	return ps
}
