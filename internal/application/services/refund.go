package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
)

// RefundService executes partial and full refunds. The refundable amount is
// reserved under the payment's row lock before the gateway call, so two
// concurrent refunds can never jointly overshoot the gross amount; the
// reservation is rolled back if the gateway refuses.
type RefundService struct {
	store    application.Store
	gateway  application.GatewayClient
	bookings application.BookingStore
	notifier application.Notifier
	logger   *slog.Logger
}

func NewRefundService(
	store application.Store,
	gateway application.GatewayClient,
	bookings application.BookingStore,
	notifier application.Notifier,
	logger *slog.Logger,
) *RefundService {
	return &RefundService{
		store:    store,
		gateway:  gateway,
		bookings: bookings,
		notifier: notifier,
		logger:   logger,
	}
}

func (s *RefundService) Refund(ctx context.Context, cmd RefundCommand) (*RefundResult, error) {
	var (
		payment *domain.Payment
		amount  int64
	)

	// Phase 1: validate and reserve under the row lock. The lock is released
	// before the gateway call.
	err := s.store.WithTx(ctx, func(tx application.Store) error {
		p, err := tx.Payments().FindByIDForUpdate(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}

		if !p.AccessibleBy(cmd.RequesterID, cmd.RequesterRole) {
			return domain.NewForbiddenError("refund this payment")
		}

		if p.Status != domain.PaymentCompleted {
			return domain.NewInvalidStateError("payment", string(p.Status), string(domain.PaymentCompleted))
		}

		// A payout that has started moving toward the provider cannot be
		// clawed back; refunding past this point would pay both sides.
		escrow, err := tx.Escrows().FindByPaymentIDForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if escrow.ReleaseInProgress() {
			return domain.NewConflictError("escrow release is in progress, payment can no longer be refunded")
		}

		amount = cmd.AmountCents
		if amount == 0 {
			amount = p.RemainingRefundable()
		}

		if err := p.ReserveRefund(amount); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The key encodes the cumulative refund total after this reservation: a
	// retry of the same failed refund reuses the key, while a later distinct
	// refund gets a fresh one.
	idempotencyKey := fmt.Sprintf("refund-%s-%d", payment.ID, payment.RefundCents)

	refundReq := application.RefundRequest{
		IntentID:    payment.GatewayIntentID,
		AmountCents: amount,
		Reason:      cmd.Reason,
	}

	refundResp, err := s.gateway.Refund(ctx, refundReq, idempotencyKey)
	if err != nil {
		if rbErr := s.rollbackReservation(ctx, cmd.PaymentID, amount); rbErr != nil {
			s.logger.Error("failed to roll back refund reservation",
				"payment_id", cmd.PaymentID, "amount_cents", amount, "error", rbErr)
		}
		return nil, err
	}

	// Phase 2: finalize payment and escrow in one transaction.
	var escrowRefunded bool
	err = s.store.WithTx(ctx, func(tx application.Store) error {
		p, err := tx.Payments().FindByIDForUpdate(ctx, cmd.PaymentID)
		if err != nil {
			return err
		}

		p.FinalizeRefund(cmd.Reason, time.Now().UTC())
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}

		escrow, err := tx.Escrows().FindByPaymentIDForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if escrow.Status == domain.EscrowHeld {
			if err := escrow.MarkRefunded(); err != nil {
				return err
			}
			if err := tx.Escrows().Update(ctx, escrow); err != nil {
				return err
			}
			escrowRefunded = true
		}

		payment = p
		return nil
	})
	if err != nil {
		// The gateway refund went through; local finalization must not be
		// lost silently. Surface for retry by the caller or operator.
		s.logger.Error("refund executed at gateway but local finalization failed",
			"payment_id", cmd.PaymentID, "refund_id", refundResp.RefundID, "error", err)
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("refund processed",
		"payment_id", payment.ID,
		"booking_id", payment.BookingID,
		"amount_cents", amount,
		"total_refunded_cents", payment.RefundCents,
		"status", payment.Status,
		"escrow_refunded", escrowRefunded,
	)

	if err := s.bookings.UpdateBookingStatus(ctx, payment.BookingID, domain.BookingCancelled); err != nil {
		s.logger.Error("failed to mark booking cancelled", "booking_id", payment.BookingID, "error", err)
	}

	refundPayload := map[string]any{
		"booking_id":   payment.BookingID,
		"amount_cents": amount,
		"currency":     payment.Currency,
		"reason":       cmd.Reason,
	}
	notify(ctx, s.notifier, s.logger, payment.ClientID, NotifyRefundIssued, refundPayload)
	notify(ctx, s.notifier, s.logger, payment.ProviderID, NotifyRefundIssued, refundPayload)

	return &RefundResult{
		Payment:       payment,
		RefundedCents: amount,
		GatewayRefund: refundResp.RefundID,
	}, nil
}

func (s *RefundService) rollbackReservation(ctx context.Context, paymentID uuid.UUID, amount int64) error {
	return s.store.WithTx(ctx, func(tx application.Store) error {
		p, err := tx.Payments().FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		p.ReleaseRefundReservation(amount)
		return tx.Payments().Update(ctx, p)
	})
}
