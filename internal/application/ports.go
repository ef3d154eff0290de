package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/servilink/escrow-engine/internal/domain"
)

// GatewayClient is the port for the external payment gateway.
type GatewayClient interface {
	Authorize(ctx context.Context, req AuthorizeRequest, idempotencyKey string) (*AuthorizeResponse, error)
	Transfer(ctx context.Context, req TransferRequest, idempotencyKey string) (*TransferResponse, error)
	Refund(ctx context.Context, req RefundRequest, idempotencyKey string) (*RefundResponse, error)
	GetTransfer(ctx context.Context, transferID string) (*TransferResponse, error)
}

// BookingStore is the port for the external booking collaborator.
type BookingStore interface {
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status domain.BookingStatus) error
}

// Notifier is the port for the external notification dispatcher. Delivery is
// fire-and-forget: callers log failures and never propagate them.
type Notifier interface {
	Notify(ctx context.Context, userID, eventType string, payload map[string]any) error
}

// PaymentRepository is the persistence port for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	Update(ctx context.Context, payment *domain.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	FindByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error)
	FindByIntentIDForUpdate(ctx context.Context, intentID string) (*domain.Payment, error)
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error)
	Stats(ctx context.Context) (*domain.PaymentStats, error)
}

// EscrowRepository is the persistence port for escrows.
type EscrowRepository interface {
	Create(ctx context.Context, escrow *domain.Escrow) error
	Update(ctx context.Context, escrow *domain.Escrow) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Escrow, error)
	FindByPaymentIDForUpdate(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error)
	FindByTransferIDForUpdate(ctx context.Context, transferID string) (*domain.Escrow, error)
	FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]*domain.Escrow, error)
	FindAwaitingConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Escrow, error)
}

// EventStore tracks consumed webhook event ids for idempotency.
type EventStore interface {
	// MarkConsumed records the event id. It returns false if the event was
	// already consumed, in which case the caller must treat the delivery as a
	// duplicate and apply no side effects.
	MarkConsumed(ctx context.Context, event *domain.GatewayEvent) (bool, error)
}

// Cache is an optional read-through cache for query results. A nil cache is
// valid; callers fall through to the loader.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Store aggregates the repositories behind a single transactional boundary.
// WithTx runs fn against a store bound to one database transaction; all
// row locks taken inside fn are held until it returns.
type Store interface {
	Payments() PaymentRepository
	Escrows() EscrowRepository
	Events() EventStore
	WithTx(ctx context.Context, fn func(Store) error) error
}
