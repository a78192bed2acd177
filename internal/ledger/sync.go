package ledger

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/talkincode/medsbot/config"
	"github.com/talkincode/medsbot/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncMedicines brings the medicine table in line with the configured list.
// Existing rows get the configured dose and alternate name; missing names are
// inserted with zero stock. Stock and notify thresholds are never touched, and
// medicines absent from the list are kept.
func (l *Ledger) SyncMedicines(ctx context.Context, list []config.MedicineConfig) error {
	var inserted, updated int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.Medicine
		if err := tx.Find(&existing).Error; err != nil {
			return storageError("sync medicines", errors.Wrap(err, "load"))
		}
		byName := make(map[string]domain.Medicine, len(existing))
		for _, m := range existing {
			byName[m.Name] = m
		}

		for _, item := range list {
			name := strings.TrimSpace(item.Name)
			if name == "" {
				continue
			}
			alt := optionalString(item.AltName)
			m, ok := byName[name]
			if !ok {
				m = domain.Medicine{
					Name:             name,
					AltName:          alt,
					DailyDose:        item.DailyDose,
					NotifyBeforeDays: l.defaultNotifyBeforeDays,
				}
				if err := tx.Create(&m).Error; err != nil {
					return storageError("sync medicines", errors.Wrapf(err, "insert %s", name))
				}
				byName[name] = m
				inserted++
				continue
			}
			if m.DailyDose == item.DailyDose && sameString(m.AltName, alt) {
				continue
			}
			err := tx.Model(&domain.Medicine{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
				"daily_dose": item.DailyDose,
				"alt_name":   alt,
			}).Error
			if err != nil {
				return storageError("sync medicines", errors.Wrapf(err, "update %s", name))
			}
			updated++
		}
		return nil
	})
	if err != nil {
		logStorage(err)
		return err
	}
	zap.L().Info("medicines synchronized",
		zap.Int("configured", len(list)),
		zap.Int("inserted", inserted),
		zap.Int("updated", updated))
	return nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
