package services

import (
	"github.com/google/uuid"
	"github.com/servilink/escrow-engine/internal/domain"
)

type CreateIntentCommand struct {
	BookingID        string
	AmountCents      int64
	Currency         string
	PaymentMethodRef string
	RequesterID      string
}

// IntentResult is what a successful createPaymentIntent returns to the caller.
type IntentResult struct {
	Payment      *domain.Payment
	Escrow       *domain.Escrow
	ClientSecret string
}

type ReleaseCommand struct {
	EscrowID      uuid.UUID
	RequesterID   string
	RequesterRole domain.Role
}

type RefundCommand struct {
	PaymentID     uuid.UUID
	RequesterID   string
	RequesterRole domain.Role
	Reason        string
	// AmountCents of zero means refund the full remaining amount.
	AmountCents int64
}

type RefundResult struct {
	Payment       *domain.Payment
	RefundedCents int64
	GatewayRefund string
}
