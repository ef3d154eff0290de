package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
)

// EscrowService releases held funds to providers. Release is two-phase: the
// gateway transfer is requested here, but the escrow only becomes RELEASED
// when the asynchronous transfer_succeeded event confirms it.
type EscrowService struct {
	store    application.Store
	gateway  application.GatewayClient
	bookings application.BookingStore
	logger   *slog.Logger
}

func NewEscrowService(
	store application.Store,
	gateway application.GatewayClient,
	bookings application.BookingStore,
	logger *slog.Logger,
) *EscrowService {
	return &EscrowService{
		store:    store,
		gateway:  gateway,
		bookings: bookings,
		logger:   logger,
	}
}

// Release requests the payout transfer for a held escrow. Permitted for the
// escrow's provider or an admin, and only once the hold window has elapsed or
// the booking is verified complete.
func (s *EscrowService) Release(ctx context.Context, cmd ReleaseCommand) (*domain.Escrow, error) {
	escrow, err := s.store.Escrows().FindByID(ctx, cmd.EscrowID)
	if err != nil {
		return nil, err
	}

	payment, err := s.store.Payments().FindByID(ctx, escrow.PaymentID)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	if cmd.RequesterRole != domain.RoleAdmin && cmd.RequesterID != payment.ProviderID {
		return nil, domain.NewForbiddenError("release this escrow")
	}

	if err := releasable(escrow); err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeConflict) {
			// A transfer is already in flight or settled; the confirmation
			// event settles the final state. Repeat requests are no-ops.
			return escrow, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	if !escrow.IsDue(now) {
		booking, err := s.bookings.GetBooking(ctx, escrow.BookingID)
		if err != nil {
			return nil, err
		}
		if booking.Status != domain.BookingCompleted {
			return nil, domain.NewTooEarlyError(escrow.ReleaseDate)
		}
	}

	// Phase 1: record release intent under the row lock before the gateway is
	// asked to move money. A refund arriving after this commits is rejected,
	// so the payout and the refund can never both go through.
	err = s.store.WithTx(ctx, func(tx application.Store) error {
		fresh, err := tx.Escrows().FindByIDForUpdate(ctx, escrow.ID)
		if err != nil {
			return err
		}
		if err := releasable(fresh); err != nil {
			escrow = fresh
			return err
		}
		if err := fresh.BeginRelease(now); err != nil {
			return err
		}
		if err := tx.Escrows().Update(ctx, fresh); err != nil {
			return err
		}
		escrow = fresh
		return nil
	})
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeConflict) {
			return escrow, nil
		}
		return nil, err
	}

	transferReq := application.TransferRequest{
		AmountCents:        escrow.AmountCents,
		Currency:           payment.Currency,
		DestinationAccount: payment.ProviderID,
	}

	// One key per escrow: a retry or a concurrent release request resolves to
	// the same gateway transfer instead of a duplicate payout.
	idempotencyKey := "release-" + escrow.ID.String()

	transferResp, err := s.gateway.Transfer(ctx, transferReq, idempotencyKey)
	if err != nil {
		if abortErr := s.abortRelease(ctx, escrow.ID); abortErr != nil {
			s.logger.Error("failed to withdraw release intent",
				"escrow_id", escrow.ID, "error", abortErr)
		}
		return nil, err
	}

	// Phase 2: attach the gateway transfer reference.
	err = s.store.WithTx(ctx, func(tx application.Store) error {
		fresh, err := tx.Escrows().FindByIDForUpdate(ctx, escrow.ID)
		if err != nil {
			return err
		}
		if fresh.ReleaseRequested() {
			escrow = fresh
			return nil
		}
		if err := fresh.RecordTransfer(transferResp.TransferID); err != nil {
			return err
		}
		if err := tx.Escrows().Update(ctx, fresh); err != nil {
			return err
		}
		escrow = fresh
		return nil
	})
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("escrow release requested",
		"escrow_id", escrow.ID,
		"booking_id", escrow.BookingID,
		"amount_cents", escrow.AmountCents,
		"transfer_id", transferResp.TransferID,
	)

	return escrow, nil
}

// releasable sorts an escrow into proceed (nil), no-op success (Conflict: a
// transfer is in flight or already settled) or rejection (InvalidState). A
// disputed escrow keeps its transfer id but needs manual resolution, so it
// rejects rather than short-circuiting.
func releasable(escrow *domain.Escrow) error {
	if escrow.Status == domain.EscrowReleased {
		return domain.NewConflictError("escrow already released")
	}
	if escrow.Status != domain.EscrowHeld {
		return domain.NewInvalidStateError("escrow", string(escrow.Status), string(domain.EscrowHeld))
	}
	if escrow.ReleaseRequested() {
		return domain.NewConflictError("escrow release transfer already requested")
	}
	return nil
}

func (s *EscrowService) abortRelease(ctx context.Context, escrowID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx application.Store) error {
		fresh, err := tx.Escrows().FindByIDForUpdate(ctx, escrowID)
		if err != nil {
			return err
		}
		if err := fresh.AbortRelease(); err != nil {
			return err
		}
		return tx.Escrows().Update(ctx, fresh)
	})
}
