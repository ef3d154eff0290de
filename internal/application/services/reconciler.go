package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
)

// ReconcilerService consumes asynchronous gateway events and advances local
// payment/escrow state to match the gateway's authoritative record. Every
// handler is idempotent: duplicate event ids and already-applied transitions
// are successes with no repeated side effects.
type ReconcilerService struct {
	store    application.Store
	bookings application.BookingStore
	notifier application.Notifier
	logger   *slog.Logger
}

func NewReconcilerService(
	store application.Store,
	bookings application.BookingStore,
	notifier application.Notifier,
	logger *slog.Logger,
) *ReconcilerService {
	return &ReconcilerService{
		store:    store,
		bookings: bookings,
		notifier: notifier,
		logger:   logger,
	}
}

// HandleEvent applies one gateway event. The state transition commits before
// this returns; booking updates and notifications happen after commit and
// never fail the event.
func (s *ReconcilerService) HandleEvent(ctx context.Context, evt *domain.GatewayEvent) error {
	switch evt.Kind {
	case domain.EventChargeSucceeded:
		return s.chargeSucceeded(ctx, evt)
	case domain.EventChargeFailed:
		return s.chargeFailed(ctx, evt)
	case domain.EventTransferSucceeded:
		return s.transferOutcome(ctx, evt, true)
	case domain.EventTransferFailed:
		return s.transferOutcome(ctx, evt, false)
	default:
		s.logger.Info("ignoring unknown gateway event", "event_id", evt.ID, "event_type", evt.Type)
		return nil
	}
}

func (s *ReconcilerService) chargeSucceeded(ctx context.Context, evt *domain.GatewayEvent) error {
	var (
		payment *domain.Payment
		applied bool
	)

	err := s.store.WithTx(ctx, func(tx application.Store) error {
		fresh, err := tx.Events().MarkConsumed(ctx, evt)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		p, err := tx.Payments().FindByIntentIDForUpdate(ctx, evt.ObjectID)
		if err != nil {
			return err
		}

		if p.Status == domain.PaymentCompleted {
			return nil
		}
		if p.Status != domain.PaymentPending {
			// Conflicting terminal state. Keep the event consumed so the
			// gateway stops redelivering; the record needs an operator.
			s.logger.Error("charge_succeeded for a settled payment",
				"event_id", evt.ID, "payment_id", p.ID, "status", p.Status)
			return nil
		}

		if err := p.Complete(time.Now().UTC()); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}

		escrow, err := tx.Escrows().FindByPaymentIDForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		if err := escrow.Hold(); err != nil {
			return err
		}
		if err := tx.Escrows().Update(ctx, escrow); err != nil {
			return err
		}

		payment = p
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("charge_succeeded already applied", "event_id", evt.ID, "intent_id", evt.ObjectID)
		return nil
	}

	s.logger.Info("payment completed",
		"payment_id", payment.ID,
		"booking_id", payment.BookingID,
		"gross_cents", payment.GrossCents,
	)

	if err := s.bookings.UpdateBookingStatus(ctx, payment.BookingID, domain.BookingPaid); err != nil {
		s.logger.Error("failed to mark booking paid", "booking_id", payment.BookingID, "error", err)
	}

	// The client sees the gross charge; the provider sees their net.
	notify(ctx, s.notifier, s.logger, payment.ClientID, NotifyPaymentReceived, map[string]any{
		"booking_id":   payment.BookingID,
		"amount_cents": payment.GrossCents,
		"currency":     payment.Currency,
	})
	notify(ctx, s.notifier, s.logger, payment.ProviderID, NotifyPaymentReceived, map[string]any{
		"booking_id":   payment.BookingID,
		"amount_cents": payment.ProviderNetCents,
		"currency":     payment.Currency,
	})

	return nil
}

func (s *ReconcilerService) chargeFailed(ctx context.Context, evt *domain.GatewayEvent) error {
	var (
		payment *domain.Payment
		applied bool
	)

	err := s.store.WithTx(ctx, func(tx application.Store) error {
		fresh, err := tx.Events().MarkConsumed(ctx, evt)
		if err != nil {
			return err
		}
		if !fresh {
			return nil
		}

		p, err := tx.Payments().FindByIntentIDForUpdate(ctx, evt.ObjectID)
		if err != nil {
			return err
		}

		if p.Status == domain.PaymentFailed {
			return nil
		}
		if p.Status != domain.PaymentPending {
			s.logger.Error("charge_failed for a settled payment",
				"event_id", evt.ID, "payment_id", p.ID, "status", p.Status)
			return nil
		}

		if err := p.Fail("gateway declined the charge"); err != nil {
			return err
		}
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}

		payment = p
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	s.logger.Info("payment failed", "payment_id", payment.ID, "booking_id", payment.BookingID)

	if err := s.bookings.UpdateBookingStatus(ctx, payment.BookingID, domain.BookingPaymentFailed); err != nil {
		s.logger.Error("failed to mark booking payment_failed", "booking_id", payment.BookingID, "error", err)
	}

	notify(ctx, s.notifier, s.logger, payment.ClientID, NotifyPaymentFailed, map[string]any{
		"booking_id":   payment.BookingID,
		"amount_cents": payment.GrossCents,
		"currency":     payment.Currency,
	})

	return nil
}

func (s *ReconcilerService) transferOutcome(ctx context.Context, evt *domain.GatewayEvent, succeeded bool) error {
	return s.applyTransferOutcome(ctx, evt, evt.ObjectID, succeeded)
}

// ConfirmTransfer applies a transfer outcome discovered by polling the
// gateway rather than via webhook. State checks alone provide idempotency
// here since there is no event id to dedupe on.
func (s *ReconcilerService) ConfirmTransfer(ctx context.Context, transferID string, succeeded bool) error {
	return s.applyTransferOutcome(ctx, nil, transferID, succeeded)
}

func (s *ReconcilerService) applyTransferOutcome(ctx context.Context, evt *domain.GatewayEvent, transferID string, succeeded bool) error {
	var (
		escrow  *domain.Escrow
		applied bool
	)

	err := s.store.WithTx(ctx, func(tx application.Store) error {
		if evt != nil {
			fresh, err := tx.Events().MarkConsumed(ctx, evt)
			if err != nil {
				return err
			}
			if !fresh {
				return nil
			}
		}

		e, err := tx.Escrows().FindByTransferIDForUpdate(ctx, transferID)
		if err != nil {
			return err
		}

		if succeeded {
			if e.Status == domain.EscrowReleased {
				return nil
			}
			if e.Status != domain.EscrowHeld {
				s.logger.Error("transfer_succeeded for a settled escrow",
					"transfer_id", transferID, "escrow_id", e.ID, "status", e.Status)
				return nil
			}
			if err := e.Release(time.Now().UTC()); err != nil {
				return err
			}
		} else {
			if e.Status == domain.EscrowDisputed {
				return nil
			}
			if e.Status != domain.EscrowHeld {
				s.logger.Error("transfer_failed for a settled escrow",
					"transfer_id", transferID, "escrow_id", e.ID, "status", e.Status)
				return nil
			}
			if err := e.MarkDisputed(); err != nil {
				return err
			}

			p, err := tx.Payments().FindByIDForUpdate(ctx, e.PaymentID)
			if err != nil {
				return err
			}
			if p.Status == domain.PaymentCompleted {
				if err := p.MarkDisputed(); err != nil {
					return err
				}
				if err := tx.Payments().Update(ctx, p); err != nil {
					return err
				}
			}
		}

		if err := tx.Escrows().Update(ctx, e); err != nil {
			return err
		}

		escrow = e
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	payment, err := s.store.Payments().FindByID(ctx, escrow.PaymentID)
	if err != nil {
		s.logger.Error("escrow transitioned but payment lookup failed",
			"escrow_id", escrow.ID, "payment_id", escrow.PaymentID, "error", err)
		return nil
	}

	if succeeded {
		s.logger.Info("escrow released",
			"escrow_id", escrow.ID,
			"booking_id", escrow.BookingID,
			"amount_cents", escrow.AmountCents,
		)
		notify(ctx, s.notifier, s.logger, payment.ProviderID, NotifyEscrowReleased, map[string]any{
			"booking_id":   escrow.BookingID,
			"amount_cents": escrow.AmountCents,
			"currency":     payment.Currency,
		})
		return nil
	}

	// A disputed transfer needs manual admin resolution; it is never retried
	// silently.
	s.logger.Error("escrow release transfer failed, flagged for manual resolution",
		"escrow_id", escrow.ID,
		"booking_id", escrow.BookingID,
		"transfer_id", transferID,
	)
	notify(ctx, s.notifier, s.logger, payment.ProviderID, NotifyEscrowDisputed, map[string]any{
		"booking_id":   escrow.BookingID,
		"amount_cents": escrow.AmountCents,
		"currency":     payment.Currency,
	})

	return nil
}
