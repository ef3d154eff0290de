package testhelpers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/servilink/escrow-engine/internal/domain"
)

// NewTestPayment builds a PENDING payment with a realistic fee split.
func NewTestPayment(t *testing.T, grossCents int64) *domain.Payment {
	fees, err := domain.DefaultFeePolicy().ComputeFees(grossCents)
	require.NoError(t, err)

	payment, err := domain.NewPayment(
		"booking-"+uuid.New().String(),
		"client-"+uuid.New().String(),
		"provider-"+uuid.New().String(),
		fees,
		"USD",
		"pi_"+uuid.New().String(),
	)
	require.NoError(t, err)

	return payment
}

// NewCompletedPayment builds a payment that has been charged successfully.
func NewCompletedPayment(t *testing.T, grossCents int64) *domain.Payment {
	payment := NewTestPayment(t, grossCents)
	require.NoError(t, payment.Complete(time.Now().UTC()))
	return payment
}

// NewTestEscrow builds a PENDING escrow for the payment's provider net.
func NewTestEscrow(t *testing.T, payment *domain.Payment, releaseDate time.Time) *domain.Escrow {
	escrow, err := domain.NewEscrow(payment.ID, payment.BookingID, payment.ProviderNetCents, releaseDate)
	require.NoError(t, err)
	return escrow
}

// NewHeldEscrow builds an escrow in the HELD state.
func NewHeldEscrow(t *testing.T, payment *domain.Payment, releaseDate time.Time) *domain.Escrow {
	escrow := NewTestEscrow(t, payment, releaseDate)
	require.NoError(t, escrow.Hold())
	return escrow
}
