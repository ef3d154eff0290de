package services

import (
	"context"
	"log/slog"

	"github.com/servilink/escrow-engine/internal/application"
)

// Notification event types emitted toward the external dispatcher.
const (
	NotifyPaymentReceived = "payment.received"
	NotifyPaymentFailed   = "payment.failed"
	NotifyRefundIssued    = "refund.issued"
	NotifyEscrowReleased  = "escrow.released"
	NotifyEscrowDisputed  = "escrow.disputed"
)

// notify dispatches a notification and logs delivery failures. State
// transitions never block on, or fail because of, notification delivery.
func notify(ctx context.Context, n application.Notifier, logger *slog.Logger, userID, eventType string, payload map[string]any) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, userID, eventType, payload); err != nil {
		logger.Error("notification dispatch failed",
			"user_id", userID,
			"event_type", eventType,
			"error", err,
		)
	}
}
