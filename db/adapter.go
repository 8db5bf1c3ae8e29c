package db

import (
	"fmt"

	"github.com/kasuganosora/rpgmakermvmmo/charserver/config"
	dbmysql "github.com/kasuganosora/rpgmakermvmmo/charserver/db/mysql"
	dbsqlite "github.com/kasuganosora/rpgmakermvmmo/charserver/db/sqlite"
	"gorm.io/gorm"
)

const (
	ModeSQLite = "sqlite"
	ModeMySQL  = "mysql"
)

// Open returns the *gorm.DB shared by every storage request for the
// lifetime of the process.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Mode {
	case ModeSQLite:
		return dbsqlite.Open(cfg.SQLitePath)
	case ModeMySQL:
		return dbmysql.Open(cfg.MySQLDSN, cfg.MySQLMaxOpen, cfg.MySQLMaxIdle, cfg.MySQLMaxLife)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
}
