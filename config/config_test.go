package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  debug: true\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, ":6121", cfg.Inter.ListenAddr)
	assert.Equal(t, 256, cfg.Inter.SendBuf)
	assert.True(t, cfg.Inter.BoundItemsEnabled)
	assert.False(t, cfg.Inter.AtomicBoundTransfer)
	assert.Equal(t, 30*time.Second, cfg.Inter.GuildLockTTL)
	assert.Equal(t, time.Minute, cfg.Scheduler.StatsInterval)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  mode: mysql
  mysql_dsn: "ragnarok:ragnarok@tcp(127.0.0.1:3306)/ragnarok"
inter:
  listen_addr: "127.0.0.1:7000"
  allowed_ips: ["10.0.0.2", "10.0.0.3"]
  bound_items_enabled: false
  atomic_bound_transfer: true
security:
  admin_ips: ["127.0.0.1"]
`))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Mode)
	assert.Equal(t, "127.0.0.1:7000", cfg.Inter.ListenAddr)
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, cfg.Inter.AllowedIPs)
	assert.False(t, cfg.Inter.BoundItemsEnabled)
	assert.True(t, cfg.Inter.AtomicBoundTransfer)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.Security.AdminIPs)
	assert.Equal(t, time.Hour, cfg.Database.MySQLMaxLife)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":6121", cfg.Inter.ListenAddr)
	assert.Equal(t, 40, cfg.Security.RateLimitBurst)
}
