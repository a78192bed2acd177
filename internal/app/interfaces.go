package app

import (
	"context"

	"github.com/talkincode/medsbot/config"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/internal/reminder"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// LedgerProvider provides the inventory ledger
type LedgerProvider interface {
	Ledger() *ledger.Ledger
}

// SchedulerProvider provides the reminder scheduler
type SchedulerProvider interface {
	Scheduler() *reminder.Scheduler
}

// Messenger is a connected chat transport.
type Messenger interface {
	reminder.Notifier
	GetQRCode() string
	Connected() bool
	JID() string
}

// MessengerProvider provides the chat transport, nil when chat is disabled
type MessengerProvider interface {
	Messenger() Messenger
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	LedgerProvider
	SchedulerProvider
	MessengerProvider

	MigrateDB(track bool) error
	// RunRemindersNow runs one reminder cycle immediately
	RunRemindersNow(ctx context.Context) (reminder.CycleResult, error)
	// RecentReminders lists the latest published reminders, newest first
	RecentReminders() []reminder.Reminder
	// DeliveryStats returns how many reminder messages were sent and failed
	DeliveryStats() (sent, failed int64)
}
