package ledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetPrescriptionExpiry creates or replaces the prescription expiry of a medicine.
func (l *Ledger) SetPrescriptionExpiry(ctx context.Context, medicineID int64, date time.Time) error {
	if date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := getMedicine(tx, medicineID); err != nil {
			return err
		}
		p := domain.Prescription{
			MedicineID: medicineID,
			ExpiryDate: common.FormatDate(date),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "medicine_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"expiry_date", "updated_at"}),
		}).Create(&p).Error
		if err != nil {
			return storageError("set prescription", errors.Wrap(err, "upsert"))
		}
		return nil
	})
	if err != nil {
		logStorage(err, zap.Int64("medicine_id", medicineID))
		return err
	}
	zap.L().Info("prescription expiry set",
		zap.Int64("medicine_id", medicineID),
		zap.String("expiry", common.FormatDate(date)))
	return nil
}

// GetPrescriptionExpiry returns the expiry date and whether one is set.
func (l *Ledger) GetPrescriptionExpiry(ctx context.Context, medicineID int64) (time.Time, bool, error) {
	if _, err := l.GetMedicine(ctx, medicineID); err != nil {
		return time.Time{}, false, err
	}
	var p domain.Prescription
	err := l.db.WithContext(ctx).Where("medicine_id = ?", medicineID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storageError("get prescription", err)
	}
	d, err := common.ParseDate(p.ExpiryDate, l.now().Location())
	if err != nil {
		return time.Time{}, false, storageError("get prescription", errors.Wrapf(err, "stored date %q", p.ExpiryDate))
	}
	return d, true, nil
}

// PrescriptionExpiries maps medicine id to expiry date for every set prescription.
// Rows with an unreadable date are logged and skipped.
func (l *Ledger) PrescriptionExpiries(ctx context.Context) (map[int64]time.Time, error) {
	var rows []domain.Prescription
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, storageError("list prescriptions", err)
	}
	loc := l.now().Location()
	out := make(map[int64]time.Time, len(rows))
	for _, p := range rows {
		d, err := common.ParseDate(p.ExpiryDate, loc)
		if err != nil {
			zap.L().Warn("skip prescription with bad date",
				zap.Int64("medicine_id", p.MedicineID),
				zap.String("expiry", p.ExpiryDate))
			continue
		}
		out[p.MedicineID] = d
	}
	return out, nil
}
