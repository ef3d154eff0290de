package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the current state of a payment in its lifecycle
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentDisputed  PaymentStatus = "DISPUTED"
)

// Role identifies the kind of actor making a request.
type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Payment represents a single booking-payment attempt. Money amounts are
// integer minor units (cents) and satisfy
// gross = platformFee + processingFee + providerNet at all times.
type Payment struct {
	ID         uuid.UUID
	BookingID  string
	ClientID   string
	ProviderID string

	GrossCents         int64
	PlatformFeeCents   int64
	ProcessingFeeCents int64
	ProviderNetCents   int64
	Currency           string

	GatewayIntentID string
	Status          PaymentStatus
	RefundCents     int64
	RefundReason    *string
	FailureReason   *string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	RefundedAt  *time.Time
}

// NewPayment creates a PENDING payment from a fee breakdown and a gateway
// intent reference.
func NewPayment(bookingID, clientID, providerID string, fees FeeBreakdown, currency, gatewayIntentID string) (*Payment, error) {
	switch {
	case bookingID == "":
		return nil, NewMissingRequiredFieldError("bookingId")
	case clientID == "":
		return nil, NewMissingRequiredFieldError("clientId")
	case providerID == "":
		return nil, NewMissingRequiredFieldError("providerId")
	case currency == "":
		return nil, NewMissingRequiredFieldError("currency")
	case gatewayIntentID == "":
		return nil, NewMissingRequiredFieldError("gatewayIntentId")
	}

	now := time.Now().UTC()
	return &Payment{
		ID:                 uuid.New(),
		BookingID:          bookingID,
		ClientID:           clientID,
		ProviderID:         providerID,
		GrossCents:         fees.GrossCents,
		PlatformFeeCents:   fees.PlatformFeeCents,
		ProcessingFeeCents: fees.ProcessingFeeCents,
		ProviderNetCents:   fees.ProviderNetCents,
		Currency:           currency,
		GatewayIntentID:    gatewayIntentID,
		Status:             PaymentPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// CanTransitionTo validates whether the payment can move to the target status.
func (p *Payment) CanTransitionTo(target PaymentStatus) error {
	switch p.Status {
	case PaymentPending:
		if target == PaymentCompleted || target == PaymentFailed {
			return nil
		}
	case PaymentCompleted:
		if target == PaymentRefunded || target == PaymentDisputed {
			return nil
		}
	}
	return NewInvalidTransitionError(string(p.Status), string(target))
}

func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentFailed, PaymentRefunded, PaymentDisputed:
		return true
	default:
		return false
	}
}

// Complete marks the payment captured by the gateway.
func (p *Payment) Complete(at time.Time) error {
	if err := p.CanTransitionTo(PaymentCompleted); err != nil {
		return err
	}
	p.Status = PaymentCompleted
	p.CompletedAt = &at
	p.UpdatedAt = at
	return nil
}

// Fail records a gateway-declined charge.
func (p *Payment) Fail(reason string) error {
	if err := p.CanTransitionTo(PaymentFailed); err != nil {
		return err
	}
	p.Status = PaymentFailed
	if reason != "" {
		r := reason
		p.FailureReason = &r
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDisputed moves a completed payment into manual-resolution territory.
func (p *Payment) MarkDisputed() error {
	if err := p.CanTransitionTo(PaymentDisputed); err != nil {
		return err
	}
	p.Status = PaymentDisputed
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// RemainingRefundable is the amount that can still be refunded.
func (p *Payment) RemainingRefundable() int64 {
	return p.GrossCents - p.RefundCents
}

// ReserveRefund increments the refunded amount before the gateway call so a
// concurrent refund against the same payment cannot jointly overshoot gross.
// The caller must hold the payment's row lock.
func (p *Payment) ReserveRefund(amount int64) error {
	if p.Status != PaymentCompleted {
		return NewInvalidStateError("payment", string(p.Status), string(PaymentCompleted))
	}
	if amount <= 0 {
		return NewInvalidAmountError(amount)
	}
	if amount > p.RemainingRefundable() {
		return NewRefundExceedsGrossError(amount, p.RemainingRefundable())
	}
	p.RefundCents += amount
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ReleaseRefundReservation undoes a reservation after a gateway refund failed.
func (p *Payment) ReleaseRefundReservation(amount int64) {
	p.RefundCents -= amount
	if p.RefundCents < 0 {
		p.RefundCents = 0
	}
	p.UpdatedAt = time.Now().UTC()
}

// FinalizeRefund records the reason and flips the payment to REFUNDED once the
// full gross amount has been returned. Partial refunds leave it COMPLETED.
func (p *Payment) FinalizeRefund(reason string, at time.Time) {
	if reason != "" {
		r := reason
		p.RefundReason = &r
	}
	if p.RefundCents >= p.GrossCents {
		p.Status = PaymentRefunded
		p.RefundedAt = &at
	}
	p.UpdatedAt = at
}

// AccessibleBy reports whether the requester may act on this payment.
func (p *Payment) AccessibleBy(requesterID string, role Role) bool {
	if role == RoleAdmin {
		return true
	}
	return requesterID == p.ClientID || requesterID == p.ProviderID
}

// PaymentStats is the read-only aggregate for the reporting surface.
type PaymentStats struct {
	TotalPayments       int64   `json:"total_payments"`
	CompletedPayments   int64   `json:"completed_payments"`
	FailedPayments      int64   `json:"failed_payments"`
	CompletedGrossCents int64   `json:"completed_gross_cents"`
	PlatformFeeCents    int64   `json:"platform_fee_cents"`
	PendingEscrowCents  int64   `json:"pending_escrow_cents"`
	SuccessRate         float64 `json:"success_rate"`
}
