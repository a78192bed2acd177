// Package reminder runs the daily stock and prescription checks and fans the
// resulting notifications out to every registered user.
package reminder

import (
	"fmt"
	"time"

	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/internal/ledger"
	"github.com/talkincode/medsbot/pkg/common"
)

// TopicReminder is the event bus topic reminders are published on.
const TopicReminder = "reminder:fire"

const (
	DefaultPrescriptionLeadDays = 30
	DefaultStockAlertDays       = 5
)

type Kind string

const (
	KindPrescription   Kind = "prescription"
	KindStockThreshold Kind = "stock_threshold"
	KindStockAlert     Kind = "stock_alert"
	KindStockOut       Kind = "stock_out"
)

// Reminder is one notification produced by a check.
type Reminder struct {
	Kind         Kind      `json:"kind"`
	MedicineID   int64     `json:"medicine_id,string"`
	MedicineName string    `json:"medicine_name"`
	DaysLeft     int       `json:"days_left"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// PrescriptionDue reports whether the expiry is exactly leadDays away.
// A day missed by the scheduler is not caught up.
func PrescriptionDue(today, expiry time.Time, leadDays int) bool {
	return common.DaysBetween(today, expiry) == leadDays
}

// StockReminderKind picks the stock reminder for a medicine, if any. The
// custom threshold wins over the fixed alert day when they coincide.
func StockReminderKind(m domain.Medicine, alertDays int) (Kind, bool) {
	if m.DailyDose <= 0 {
		return "", false
	}
	days := ledger.DaysRemaining(m)
	switch {
	case days == m.NotifyBeforeDays:
		return KindStockThreshold, true
	case days == alertDays && m.NotifyBeforeDays != alertDays:
		return KindStockAlert, true
	case days == 0:
		return KindStockOut, true
	}
	return "", false
}

func newPrescriptionReminder(m domain.Medicine, expiry time.Time, leadDays int) Reminder {
	return Reminder{
		Kind:         KindPrescription,
		MedicineID:   m.ID,
		MedicineName: m.DisplayName(),
		DaysLeft:     leadDays,
		Text: fmt.Sprintf("📝 The prescription for *%s* expires in %d days (%s).\nPlease contact the doctor for a new one.",
			m.DisplayName(), leadDays, expiry.Format(common.DisplayDateLayout)),
	}
}

func newStockReminder(m domain.Medicine, kind Kind) Reminder {
	days := ledger.DaysRemaining(m)
	var text string
	switch kind {
	case KindStockThreshold:
		text = fmt.Sprintf("💊 *%s* runs out in %d days.\nPlease buy new packs.", m.DisplayName(), days)
	case KindStockAlert:
		text = fmt.Sprintf("💊 Only %d days of *%s* left.\nReminder to buy new packs.", days, m.DisplayName())
	default:
		text = fmt.Sprintf("⚠️ *%s* has run out!\nBuy new packs as soon as possible.", m.DisplayName())
	}
	return Reminder{
		Kind:         kind,
		MedicineID:   m.ID,
		MedicineName: m.DisplayName(),
		DaysLeft:     days,
		Text:         text,
	}
}
