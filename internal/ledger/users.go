package ledger

import (
	"context"
	"strings"

	"github.com/talkincode/medsbot/internal/domain"
	"github.com/talkincode/medsbot/pkg/common"
	"go.uber.org/zap"
)

// GetOrCreateUser registers a chat identity on first contact.
func (l *Ledger) GetOrCreateUser(ctx context.Context, chatID, firstName string) (domain.User, error) {
	var u domain.User
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return u, &ValidationError{Field: "chat_id", Reason: "is required"}
	}
	res := l.db.WithContext(ctx).
		Where(domain.User{ChatID: chatID}).
		Attrs(domain.User{ID: common.UUIDint64(), FirstName: firstName}).
		FirstOrCreate(&u)
	if res.Error != nil {
		err := storageError("get or create user", res.Error)
		logStorage(err, zap.String("chat_id", chatID))
		return u, err
	}
	if res.RowsAffected > 0 {
		zap.L().Info("user registered", zap.String("chat_id", chatID), zap.String("name", firstName))
	}
	return u, nil
}

func (l *Ledger) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := l.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, storageError("list users", err)
	}
	return users, nil
}

// RecipientIDs returns the chat ids of every registered user.
func (l *Ledger) RecipientIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := l.db.WithContext(ctx).Model(&domain.User{}).Order("created_at").Pluck("chat_id", &ids).Error; err != nil {
		return nil, storageError("list recipients", err)
	}
	return ids, nil
}

// ListPurchases returns the newest adjustments first. A zero medicineID lists
// all medicines, a non-positive limit lists everything.
func (l *Ledger) ListPurchases(ctx context.Context, medicineID int64, limit int) ([]domain.Purchase, error) {
	query := l.db.WithContext(ctx).Order("purchased_at desc, id desc")
	if medicineID != 0 {
		if _, err := l.GetMedicine(ctx, medicineID); err != nil {
			return nil, err
		}
		query = query.Where("medicine_id = ?", medicineID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []domain.Purchase
	if err := query.Find(&rows).Error; err != nil {
		return nil, storageError("list purchases", err)
	}
	return rows, nil
}
