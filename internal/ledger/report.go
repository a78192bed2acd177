package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/pkg/common"
)

// DefaultHorizonDays is the lookahead of the expiring report.
const DefaultHorizonDays = 30

type ItemKind string

const (
	KindStock        ItemKind = "stock"
	KindPrescription ItemKind = "prescription"
)

// ExpiringItem is one line of the expiring report: either the projected day a
// medicine runs out, or the day its prescription expires.
type ExpiringItem struct {
	MedicineID int64     `json:"medicine_id,string"`
	Name       string    `json:"name"`
	Kind       ItemKind  `json:"kind"`
	Date       time.Time `json:"date"`
	DaysLeft   int       `json:"days_left"`
}

// StatusLine is a medicine with its derived supply and prescription state.
type StatusLine struct {
	Medicine domain.Medicine `json:"medicine"`
	DaysLeft int             `json:"days_left"`
	Expiry   *time.Time      `json:"prescription_expiry,omitempty"`
}

// ExpiringWithinHorizon lists medicines that run out, and prescriptions that
// expire, within horizonDays of today, ordered by date.
func (l *Ledger) ExpiringWithinHorizon(ctx context.Context, horizonDays int) ([]ExpiringItem, error) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	meds, err := l.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}
	expiries, err := l.PrescriptionExpiries(ctx)
	if err != nil {
		return nil, err
	}

	today := l.Today()
	items := make([]ExpiringItem, 0, len(meds))
	for _, m := range meds {
		if m.DailyDose > 0 {
			days := DaysRemaining(m)
			if days <= horizonDays {
				items = append(items, ExpiringItem{
					MedicineID: m.ID,
					Name:       m.DisplayName(),
					Kind:       KindStock,
					Date:       common.AddDays(today, days),
					DaysLeft:   days,
				})
			}
		}
		if exp, ok := expiries[m.ID]; ok {
			days := common.DaysBetween(today, exp)
			if days <= horizonDays {
				items = append(items, ExpiringItem{
					MedicineID: m.ID,
					Name:       m.DisplayName(),
					Kind:       KindPrescription,
					Date:       exp,
					DaysLeft:   days,
				})
			}
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Date.Before(items[j].Date)
	})
	return items, nil
}

// StatusSummary returns every medicine, fewest days of supply first.
func (l *Ledger) StatusSummary(ctx context.Context) ([]StatusLine, error) {
	meds, err := l.ListMedicines(ctx)
	if err != nil {
		return nil, err
	}
	expiries, err := l.PrescriptionExpiries(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]StatusLine, 0, len(meds))
	for _, m := range meds {
		line := StatusLine{Medicine: m, DaysLeft: DaysRemaining(m)}
		if exp, ok := expiries[m.ID]; ok {
			exp := exp
			line.Expiry = &exp
		}
		lines = append(lines, line)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].DaysLeft < lines[j].DaysLeft
	})
	return lines, nil
}
