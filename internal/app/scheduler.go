package app

import (
	"context"

	"github.com/talkincode/medsbot/internal/reminder"
	"go.uber.org/zap"
)

// RunRemindersNow triggers a reminder cycle immediately. It waits for a
// scheduled cycle that is already running.
func (a *Application) RunRemindersNow(ctx context.Context) (reminder.CycleResult, error) {
	zap.L().Info("reminder cycle triggered manually")
	return a.sched.RunNow(ctx)
}

// RecentReminders lists the latest published reminders, newest first.
func (a *Application) RecentReminders() []reminder.Reminder {
	if a.history == nil {
		return nil
	}
	return a.history.Recent()
}

// DeliveryStats returns how many reminder messages were sent and failed.
func (a *Application) DeliveryStats() (sent, failed int64) {
	if a.dispatcher == nil {
		return 0, 0
	}
	return a.dispatcher.Stats()
}
