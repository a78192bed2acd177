// Package ledger owns medicine stock, purchases and prescriptions.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultNotifyBeforeDays = 14

const (
	// MaxQuantity bounds a single adjustment in either direction.
	MaxQuantity = 1_000_000
	// MaxStock is the largest stock a medicine may hold.
	MaxStock = math.MaxInt32
)

// Ledger is the inventory store. All stock mutations run in a transaction.
type Ledger struct {
	db                      *gorm.DB
	now                     func() time.Time
	defaultNotifyBeforeDays int
}

type Option func(*Ledger)

// WithClock replaces time.Now, used to pin "today" in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithDefaultNotifyBeforeDays sets the threshold given to newly synced medicines.
func WithDefaultNotifyBeforeDays(days int) Option {
	return func(l *Ledger) {
		if days > 0 {
			l.defaultNotifyBeforeDays = days
		}
	}
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:                      db,
		now:                     time.Now,
		defaultNotifyBeforeDays: defaultNotifyBeforeDays,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Today returns midnight of the current local day.
func (l *Ledger) Today() time.Time {
	return common.DateOf(l.now())
}

// DaysRemaining is floor(stock/dose), or 0 when either is not positive.
func DaysRemaining(m domain.Medicine) int {
	if m.DailyDose <= 0 || m.CurrentStock <= 0 {
		return 0
	}
	stock := decimal.NewFromInt(int64(m.CurrentStock))
	return int(stock.Div(decimal.NewFromFloat(m.DailyDose)).Floor().IntPart())
}

// DecrementedStock is the stock left after one day: stock minus dose,
// truncated and clamped at zero.
func DecrementedStock(stock int, dose float64) int {
	if dose <= 0 {
		return stock
	}
	left := decimal.NewFromInt(int64(stock)).Sub(decimal.NewFromFloat(dose)).Truncate(0)
	if left.IsNegative() {
		return 0
	}
	return int(left.IntPart())
}

func (l *Ledger) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	var meds []domain.Medicine
	if err := l.db.WithContext(ctx).Order("name").Find(&meds).Error; err != nil {
		return nil, storageError("list medicines", err)
	}
	return meds, nil
}

func (l *Ledger) GetMedicine(ctx context.Context, id int64) (domain.Medicine, error) {
	return getMedicine(l.db.WithContext(ctx), id)
}

func getMedicine(tx *gorm.DB, id int64) (domain.Medicine, error) {
	var m domain.Medicine
	err := tx.Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, &NotFoundError{Entity: "medicine", ID: id}
	}
	if err != nil {
		return m, storageError("get medicine", err)
	}
	return m, nil
}

// lockForUpdate adds SELECT ... FOR UPDATE where the dialect supports it.
// sqlite serializes writers on its own.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// ApplyAdjustment adds delta to the medicine's stock, clamping at zero, and
// records the signed delta as a purchase. It returns the new stock.
func (l *Ledger) ApplyAdjustment(ctx context.Context, medicineID int64, delta int) (int, error) {
	if err := checkQuantity(delta); err != nil {
		return 0, err
	}
	var newStock int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := getMedicine(lockForUpdate(tx), medicineID)
		if err != nil {
			return err
		}
		if delta > 0 && m.CurrentStock > MaxStock-delta {
			return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("stock would exceed %d units", MaxStock)}
		}
		newStock = m.CurrentStock + delta
		if newStock < 0 {
			newStock = 0
		}
		err = tx.Model(&domain.Medicine{}).
			Where("id = ?", medicineID).
			Update("current_stock", newStock).Error
		if err != nil {
			return storageError("apply adjustment", errors.Wrap(err, "update stock"))
		}
		p := domain.Purchase{
			ID:          common.UUIDint64(),
			MedicineID:  medicineID,
			Quantity:    delta,
			PurchasedAt: l.now(),
		}
		if err := tx.Create(&p).Error; err != nil {
			return storageError("apply adjustment", errors.Wrap(err, "append purchase"))
		}
		return nil
	})
	if err != nil {
		logStorage(err, zap.Int64("medicine_id", medicineID), zap.Int("delta", delta))
		return 0, err
	}
	zap.L().Info("stock adjusted",
		zap.Int64("medicine_id", medicineID),
		zap.Int("delta", delta),
		zap.Int("stock", newStock))
	return newStock, nil
}

// DecrementDaily subtracts one day of consumption from every medicine with a
// positive dose. It is not idempotent: the caller runs it once per day.
// It returns the number of rows changed.
func (l *Ledger) DecrementDaily(ctx context.Context) (int, error) {
	var updated int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = decrementTx(tx)
		return err
	})
	if err != nil {
		logStorage(err)
		return 0, err
	}
	zap.L().Info("daily decrement done", zap.Int("updated", updated))
	return updated, nil
}

// DecrementForDay runs the daily decrement unless it already ran for day.
// The day is recorded in the same transaction as the stock updates. ran is
// false when the decrement was skipped.
func (l *Ledger) DecrementForDay(ctx context.Context, day time.Time) (updated int, ran bool, err error) {
	key := common.FormatDate(day)
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.DecrementRun{}).Where("day = ?", key).Count(&count).Error; err != nil {
			return storageError("decrement for day", errors.Wrap(err, "load run"))
		}
		if count > 0 {
			return nil
		}
		n, err := decrementTx(tx)
		if err != nil {
			return err
		}
		run := domain.DecrementRun{
			ID:      common.UUIDint64(),
			Day:     key,
			Updated: n,
			RanAt:   l.now(),
		}
		if err := tx.Create(&run).Error; err != nil {
			return storageError("decrement for day", errors.Wrap(err, "record run"))
		}
		updated, ran = n, true
		return nil
	})
	if err != nil {
		logStorage(err, zap.String("day", key))
		return 0, false, err
	}
	if !ran {
		zap.L().Info("daily decrement already done, skipped", zap.String("day", key))
		return 0, false, nil
	}
	zap.L().Info("daily decrement done", zap.String("day", key), zap.Int("updated", updated))
	return updated, true, nil
}

func decrementTx(tx *gorm.DB) (int, error) {
	var meds []domain.Medicine
	if err := lockForUpdate(tx).Where("daily_dose > 0").Order("id").Find(&meds).Error; err != nil {
		return 0, storageError("decrement daily", errors.Wrap(err, "load medicines"))
	}
	updated := 0
	for _, m := range meds {
		left := DecrementedStock(m.CurrentStock, m.DailyDose)
		if left == m.CurrentStock {
			continue
		}
		err := tx.Model(&domain.Medicine{}).
			Where("id = ?", m.ID).
			Update("current_stock", left).Error
		if err != nil {
			return 0, storageError("decrement daily", errors.Wrapf(err, "update medicine %d", m.ID))
		}
		updated++
	}
	return updated, nil
}

func checkQuantity(delta int) error {
	switch {
	case delta == 0:
		return &ValidationError{Field: "quantity", Reason: "must not be zero"}
	case delta > MaxQuantity || delta < -MaxQuantity:
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be between -%d and %d", MaxQuantity, MaxQuantity)}
	}
	return nil
}

func logStorage(err error, fields ...zap.Field) {
	if errors.Is(err, ErrStorage) {
		zap.L().Error("ledger storage error", append(fields, zap.Error(err))...)
	}
}
