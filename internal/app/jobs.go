package app

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/talkincode/medsbot/internal/reminder"
	"go.uber.org/zap"
)

const reminderHistorySize = 50

func (a *Application) initJob() error {
	rc := a.appConfig.Reminder
	a.bus = EventBus.New()

	a.history = reminder.NewHistory(reminderHistorySize)
	if err := a.history.Subscribe(a.bus); err != nil {
		return errors.Wrap(err, "subscribe reminder history")
	}

	var err error
	a.dispatcher, err = reminder.NewDispatcher(a.ledger, reminder.LogNotifier{},
		rc.Workers, time.Duration(rc.SendTimeoutSeconds)*time.Second)
	if err != nil {
		return errors.Wrap(err, "create reminder dispatcher")
	}
	if err := a.dispatcher.Subscribe(a.bus); err != nil {
		return errors.Wrap(err, "subscribe reminder dispatcher")
	}

	a.sched, err = reminder.NewScheduler(a.ledger, a.bus, reminder.Config{
		Spec:                 rc.Cron,
		Location:             a.location,
		PrescriptionLeadDays: rc.PrescriptionLeadDays,
		StockAlertDays:       rc.StockAlertDays,
	})
	if err != nil {
		return err
	}
	return nil
}

// StartBackgroundJobs starts the daily reminder timer.
func (a *Application) StartBackgroundJobs(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	zap.L().Info("background jobs started",
		zap.String("reminder_cron", a.appConfig.Reminder.Cron))
	return nil
}
