package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived tells a recipient that funds arrived.
	KindTransferReceived = "transfer_received"
	// KindFundsAdded confirms a top-up to the account owner.
	KindFundsAdded = "funds_added"
)

// Message describes a notification payload.
type Message struct {
	Kind      string
	AccountID string
	Body      string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("account_id", message.AccountID),
		slog.String("body", message.Body),
	)
	return nil
}
