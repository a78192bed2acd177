package app

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/talkincode/medsbot/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func getDatabase(cfg *config.AppConfig) (*gorm.DB, error) {
	dbcfg := cfg.Database
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if dbcfg.Debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch dbcfg.Type {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=%s",
			dbcfg.Host, dbcfg.Port, dbcfg.User, dbcfg.Passwd, dbcfg.Name, cfg.System.Location)
		dialector = postgres.Open(dsn)
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", cfg.DatabaseFile())
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s database", dbcfg.Type)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "database handle")
	}
	if dbcfg.Type == "postgres" {
		sqlDB.SetMaxOpenConns(dbcfg.MaxConn)
		sqlDB.SetMaxIdleConns(dbcfg.IdleConn)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// one writer at a time, sqlite would answer SQLITE_BUSY otherwise
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// checkMedicines brings the medicine table in line with the configured list.
func (a *Application) checkMedicines(ctx context.Context) error {
	if len(a.appConfig.Medicines) == 0 {
		zap.L().Warn("no medicines configured")
		return nil
	}
	if err := a.ledger.SyncMedicines(ctx, a.appConfig.Medicines); err != nil {
		return errors.Wrap(err, "sync medicines")
	}
	return nil
}
