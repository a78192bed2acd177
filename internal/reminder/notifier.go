package reminder

import (
	"context"

	"go.uber.org/zap"
)

// Notifier delivers a text message to one chat recipient.
type Notifier interface {
	SendText(ctx context.Context, recipient, text string) error
}

// LogNotifier writes messages to the log instead of a chat. It is used when
// no chat transport is configured.
type LogNotifier struct{}

func (LogNotifier) SendText(_ context.Context, recipient, text string) error {
	zap.L().Info("reminder (no chat transport)",
		zap.String("recipient", recipient),
		zap.String("text", text))
	return nil
}
