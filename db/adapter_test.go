package db

import (
	"testing"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{Mode: ModeSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, gdb.Exec("SELECT 1").Error)
}

func TestOpen_UnknownMode(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Mode: "embedded_xml"})
	assert.ErrorContains(t, err, "unknown mode")
}
