package domain

import (
	"time"

	"github.com/google/uuid"
)

// EscrowStatus represents the current state of held provider funds
type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "PENDING"
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowDisputed EscrowStatus = "DISPUTED"
)

// Escrow holds the provider's net amount until a release condition is met.
// Exactly one escrow exists per payment; its amount equals the payment's
// provider net and never changes.
type Escrow struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	BookingID string

	AmountCents int64
	Status      EscrowStatus

	ReleaseDate time.Time
	ReleasedAt  *time.Time

	// ReleaseRequestedAt is set under the row lock before the payout transfer
	// is requested at the gateway; GatewayTransferID is set once the gateway
	// accepts it. Either one being non-nil means funds are moving to the
	// provider and the escrow can no longer be refunded.
	ReleaseRequestedAt *time.Time
	GatewayTransferID  *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewEscrow creates a PENDING escrow alongside a pending payment.
func NewEscrow(paymentID uuid.UUID, bookingID string, amountCents int64, releaseDate time.Time) (*Escrow, error) {
	if bookingID == "" {
		return nil, NewMissingRequiredFieldError("bookingId")
	}
	if amountCents <= 0 {
		return nil, NewInvalidAmountError(amountCents)
	}

	now := time.Now().UTC()
	return &Escrow{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		BookingID:   bookingID,
		AmountCents: amountCents,
		Status:      EscrowPending,
		ReleaseDate: releaseDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanTransitionTo validates whether the escrow can move to the target status.
func (e *Escrow) CanTransitionTo(target EscrowStatus) error {
	switch e.Status {
	case EscrowPending:
		if target == EscrowHeld {
			return nil
		}
	case EscrowHeld:
		if target == EscrowReleased || target == EscrowRefunded || target == EscrowDisputed {
			return nil
		}
	}
	return NewInvalidTransitionError(string(e.Status), string(target))
}

// Hold marks funds as captured and held on behalf of the provider.
func (e *Escrow) Hold() error {
	if err := e.CanTransitionTo(EscrowHeld); err != nil {
		return err
	}
	e.Status = EscrowHeld
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// BeginRelease records release intent before the gateway transfer is
// requested. Idempotent: a repeat call on an already-marked escrow is a
// no-op, so a crashed release can be retried against the same escrow.
func (e *Escrow) BeginRelease(at time.Time) error {
	if e.Status != EscrowHeld {
		return NewInvalidStateError("escrow", string(e.Status), string(EscrowHeld))
	}
	if e.ReleaseRequestedAt == nil {
		e.ReleaseRequestedAt = &at
		e.UpdatedAt = at
	}
	return nil
}

// AbortRelease withdraws release intent after a failed gateway transfer
// request. Only valid while no transfer reference has been recorded.
func (e *Escrow) AbortRelease() error {
	if e.GatewayTransferID != nil {
		return NewInvalidStateError("escrow", "transfer requested", "no transfer in flight")
	}
	e.ReleaseRequestedAt = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordTransfer stores the gateway transfer reference once a release has
// been requested. The escrow stays HELD until the gateway confirms.
func (e *Escrow) RecordTransfer(transferID string) error {
	if e.Status != EscrowHeld {
		return NewInvalidStateError("escrow", string(e.Status), string(EscrowHeld))
	}
	if e.ReleaseRequestedAt == nil {
		now := time.Now().UTC()
		e.ReleaseRequestedAt = &now
	}
	e.GatewayTransferID = &transferID
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Release marks funds as transferred to the provider.
func (e *Escrow) Release(at time.Time) error {
	if err := e.CanTransitionTo(EscrowReleased); err != nil {
		return err
	}
	e.Status = EscrowReleased
	e.ReleasedAt = &at
	e.UpdatedAt = at
	return nil
}

// MarkRefunded returns held funds to the client as part of a refund. It is
// rejected while a payout is in flight: refunding then would pay both sides.
func (e *Escrow) MarkRefunded() error {
	if e.ReleaseInProgress() {
		return NewConflictError("escrow release is in progress")
	}
	if err := e.CanTransitionTo(EscrowRefunded); err != nil {
		return err
	}
	e.Status = EscrowRefunded
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDisputed flags a failed release transfer for manual resolution.
func (e *Escrow) MarkDisputed() error {
	if err := e.CanTransitionTo(EscrowDisputed); err != nil {
		return err
	}
	e.Status = EscrowDisputed
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// IsDue reports whether the time-based release condition is satisfied.
func (e *Escrow) IsDue(now time.Time) bool {
	return !now.Before(e.ReleaseDate)
}

// ReleaseRequested reports whether a transfer has already been initiated.
func (e *Escrow) ReleaseRequested() bool {
	return e.GatewayTransferID != nil
}

// ReleaseInProgress reports whether a payout has started moving toward the
// provider: release intent recorded, transfer requested, or settled.
func (e *Escrow) ReleaseInProgress() bool {
	return e.ReleaseRequestedAt != nil || e.GatewayTransferID != nil
}
