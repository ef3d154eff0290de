package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
)

// IntentService creates payment intents: it validates the booking, asks the
// gateway for a split charge authorization and persists the pending
// payment/escrow pair.
type IntentService struct {
	store      application.Store
	gateway    application.GatewayClient
	bookings   application.BookingStore
	policy     domain.FeePolicy
	holdWindow time.Duration
	logger     *slog.Logger
}

func NewIntentService(
	store application.Store,
	gateway application.GatewayClient,
	bookings application.BookingStore,
	policy domain.FeePolicy,
	holdWindow time.Duration,
	logger *slog.Logger,
) *IntentService {
	if holdWindow <= 0 {
		holdWindow = 24 * time.Hour
	}
	return &IntentService{
		store:      store,
		gateway:    gateway,
		bookings:   bookings,
		policy:     policy,
		holdWindow: holdWindow,
		logger:     logger,
	}
}

// CreateIntent runs the precondition ladder, computes the fee split and
// authorizes the charge. Local rows are written only after the gateway call
// returns an intent id, so a gateway failure leaves no state behind and the
// caller may retry; the retry reuses the same idempotency key.
func (s *IntentService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (*IntentResult, error) {
	booking, err := s.bookings.GetBooking(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}

	if booking.ClientID != cmd.RequesterID {
		return nil, domain.NewForbiddenError("pay for this booking")
	}

	if booking.Status != domain.BookingConfirmed {
		return nil, domain.NewInvalidStateError("booking", string(booking.Status), string(domain.BookingConfirmed))
	}

	existing, err := s.store.Payments().FindByBookingID(ctx, cmd.BookingID)
	if err != nil && !domain.IsErrorCode(err, domain.ErrCodeNotFound) {
		return nil, application.NewInternalError(err)
	}
	if existing != nil {
		return nil, domain.NewConflictError("a payment already exists for this booking")
	}

	fees, err := s.policy.ComputeFees(cmd.AmountCents)
	if err != nil {
		return nil, err
	}

	authReq := application.AuthorizeRequest{
		AmountCents:        fees.GrossCents,
		Currency:           cmd.Currency,
		PaymentMethodRef:   cmd.PaymentMethodRef,
		DestinationAccount: booking.ProviderID,
		SplitCents:         fees.ProviderNetCents,
	}

	// Keyed by booking so a client retry after a transient failure cannot
	// create a second charge at the gateway.
	idempotencyKey := "intent-" + cmd.BookingID

	authResp, err := s.gateway.Authorize(ctx, authReq, idempotencyKey)
	if err != nil {
		return nil, err
	}

	payment, err := domain.NewPayment(
		cmd.BookingID,
		booking.ClientID,
		booking.ProviderID,
		fees,
		cmd.Currency,
		authResp.IntentID,
	)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}

	escrow, err := domain.NewEscrow(
		payment.ID,
		cmd.BookingID,
		fees.ProviderNetCents,
		booking.ScheduledDate.Add(s.holdWindow),
	)
	if err != nil {
		return nil, application.NewInvalidInputError(err)
	}

	err = s.store.WithTx(ctx, func(tx application.Store) error {
		if err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		return tx.Escrows().Create(ctx, escrow)
	})
	if err != nil {
		// Unique violation on booking_id: a concurrent request won the race.
		if domain.IsErrorCode(err, domain.ErrCodeConflict) {
			return nil, err
		}
		return nil, application.NewInternalError(err)
	}

	s.logger.Info("payment intent created",
		"payment_id", payment.ID,
		"booking_id", payment.BookingID,
		"gross_cents", payment.GrossCents,
		"provider_net_cents", payment.ProviderNetCents,
		"gateway_intent_id", payment.GatewayIntentID,
	)

	return &IntentResult{
		Payment:      payment,
		Escrow:       escrow,
		ClientSecret: authResp.ClientSecret,
	}, nil
}
