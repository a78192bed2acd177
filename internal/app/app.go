package app

import (
	"context"
	"os"
	"runtime/debug"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/talkincode/medsbot/config"
	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/internal/reminder"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

type Application struct {
	appConfig  *config.AppConfig
	location   *time.Location
	gormDB     *gorm.DB
	ledger     *ledger.Ledger
	bus        EventBus.Bus
	sched      *reminder.Scheduler
	dispatcher *reminder.Dispatcher
	history    *reminder.History

	mu        sync.RWMutex
	messenger Messenger
}

// Ensure Application implements all interfaces
var (
	_ DBProvider        = (*Application)(nil)
	_ ConfigProvider    = (*Application)(nil)
	_ LedgerProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ MessengerProvider = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) DB() *gorm.DB {
	return a.gormDB
}

func (a *Application) Ledger() *ledger.Ledger {
	return a.ledger
}

func (a *Application) Scheduler() *reminder.Scheduler {
	return a.sched
}

// Location is the configured household time zone.
func (a *Application) Location() *time.Location {
	return a.location
}

// Init sets up logging, the database, the medicine list and the reminder
// job. It does not start anything.
func (a *Application) Init() error {
	cfg := a.appConfig
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
		loc = time.Local
	} else {
		time.Local = loc
	}
	a.location = loc

	if err := cfg.InitDirs(); err != nil {
		return err
	}
	a.initLogger(cfg.Logger)

	a.gormDB, err = getDatabase(cfg)
	if err != nil {
		return err
	}
	zap.S().Infof("Database connection successful, type: %s", cfg.Database.Type)

	if err := a.MigrateDB(false); err != nil {
		return errors.Wrap(err, "database migration failed")
	}

	a.ledger = ledger.New(a.gormDB,
		ledger.WithDefaultNotifyBeforeDays(cfg.Reminder.DefaultNotifyBeforeDays))
	if err := a.checkMedicines(context.Background()); err != nil {
		return err
	}
	return a.initJob()
}

func (a *Application) initLogger(cfg config.LogConfig) {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	var err error
	if cfg.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			panic(err)
		}
	}
	zap.ReplaceGlobals(logger)
}

func (a *Application) MigrateDB(track bool) (err error) {
	defer func() {
		if err1 := recover(); err1 != nil {
			if os.Getenv("GO_DEBUG_TRACE") != "" {
				debug.PrintStack()
			}
			err2, ok := err1.(error)
			if ok {
				err = err2
				zap.S().Error(err2.Error())
			}
		}
	}()
	db := a.gormDB
	if track {
		db = db.Debug()
	}
	return db.Migrator().AutoMigrate(domain.Tables...)
}

// Messenger returns the attached chat transport, or nil.
func (a *Application) Messenger() Messenger {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.messenger
}

// AttachMessenger routes reminders through m instead of the log.
func (a *Application) AttachMessenger(m Messenger) {
	a.mu.Lock()
	a.messenger = m
	a.mu.Unlock()
	if m != nil {
		a.dispatcher.SetNotifier(m)
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Release()
	}
	if a.gormDB != nil {
		if sqlDB, err := a.gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = zap.L().Sync()
}
