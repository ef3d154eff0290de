package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/domain"
)

type escrowFixture struct {
	svc      *services.EscrowService
	store    *memStore
	gw       *mockGateway
	bookings *mockBookings
	payment  *domain.Payment
	escrow   *domain.Escrow
}

// newEscrowFixture seeds a COMPLETED payment with a HELD escrow whose release
// date is already in the past.
func newEscrowFixture(t *testing.T) *escrowFixture {
	return newEscrowFixtureAt(t, time.Now().UTC().Add(-time.Hour))
}

func newEscrowFixtureAt(t *testing.T, releaseDate time.Time) *escrowFixture {
	store := newMemStore()
	gw := newMockGateway()
	bookings := newMockBookings()
	svc := services.NewEscrowService(store, gw, bookings, testLogger())

	fees, err := domain.DefaultFeePolicy().ComputeFees(10000)
	require.NoError(t, err)

	payment, err := domain.NewPayment("booking-1", "client-1", "provider-1", fees, "USD", "pi_123")
	require.NoError(t, err)
	require.NoError(t, payment.Complete(time.Now().UTC()))

	escrow, err := domain.NewEscrow(payment.ID, payment.BookingID, fees.ProviderNetCents, releaseDate)
	require.NoError(t, err)
	require.NoError(t, escrow.Hold())

	store.SeedPayment(payment)
	store.SeedEscrow(escrow)

	return &escrowFixture{svc: svc, store: store, gw: gw, bookings: bookings, payment: payment, escrow: escrow}
}

func (f *escrowFixture) releaseAs(userID string, role domain.Role) (*domain.Escrow, error) {
	return f.svc.Release(context.Background(), services.ReleaseCommand{
		EscrowID:      f.escrow.ID,
		RequesterID:   userID,
		RequesterRole: role,
	})
}

func TestRelease_ProviderAfterDueDate(t *testing.T) {
	f := newEscrowFixture(t)

	escrow, err := f.releaseAs("provider-1", domain.RoleProvider)
	require.NoError(t, err)

	// Two-phase: the transfer is requested but the escrow stays HELD until
	// the gateway confirms.
	assert.Equal(t, domain.EscrowHeld, escrow.Status)
	require.NotNil(t, escrow.GatewayTransferID)

	assert.Equal(t, 1, f.gw.transferCalls)
	assert.Equal(t, []string{"release-" + f.escrow.ID.String()}, f.gw.transferKeys)

	stored := f.store.Escrow(f.escrow.ID)
	assert.Equal(t, *escrow.GatewayTransferID, *stored.GatewayTransferID)
}

func TestRelease_AdminMayRelease(t *testing.T) {
	f := newEscrowFixture(t)

	_, err := f.releaseAs("admin-1", domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, f.gw.transferCalls)
}

func TestRelease_ClientMayNot(t *testing.T) {
	f := newEscrowFixture(t)

	_, err := f.releaseAs("client-1", domain.RoleClient)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeForbidden))
	assert.Zero(t, f.gw.transferCalls)
}

func TestRelease_TooEarly(t *testing.T) {
	f := newEscrowFixtureAt(t, time.Now().UTC().Add(48*time.Hour))
	f.bookings.Seed(&domain.Booking{
		ID:         "booking-1",
		ClientID:   "client-1",
		ProviderID: "provider-1",
		Status:     domain.BookingPaid,
	})

	_, err := f.releaseAs("provider-1", domain.RoleProvider)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeTooEarly))
	assert.Zero(t, f.gw.transferCalls)
}

func TestRelease_EarlyWhenBookingCompleted(t *testing.T) {
	f := newEscrowFixtureAt(t, time.Now().UTC().Add(48*time.Hour))
	f.bookings.Seed(&domain.Booking{
		ID:         "booking-1",
		ClientID:   "client-1",
		ProviderID: "provider-1",
		Status:     domain.BookingCompleted,
	})

	escrow, err := f.releaseAs("provider-1", domain.RoleProvider)
	require.NoError(t, err)
	assert.NotNil(t, escrow.GatewayTransferID)
}

func TestRelease_RepeatRequestDoesNotDuplicateTransfer(t *testing.T) {
	f := newEscrowFixture(t)

	first, err := f.releaseAs("provider-1", domain.RoleProvider)
	require.NoError(t, err)

	second, err := f.releaseAs("provider-1", domain.RoleProvider)
	require.NoError(t, err)

	assert.Equal(t, 1, f.gw.transferCalls)
	assert.Equal(t, *first.GatewayTransferID, *second.GatewayTransferID)
}

func TestRelease_RequiresHeldEscrow(t *testing.T) {
	f := newEscrowFixture(t)

	escrow := f.store.Escrow(f.escrow.ID)
	require.NoError(t, escrow.MarkRefunded())
	f.store.SeedEscrow(escrow)

	_, err := f.releaseAs("provider-1", domain.RoleProvider)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidState))
}

func TestRelease_UnknownEscrow(t *testing.T) {
	f := newEscrowFixture(t)

	_, err := f.svc.Release(context.Background(), services.ReleaseCommand{
		EscrowID:      f.payment.ID, // not an escrow id
		RequesterID:   "provider-1",
		RequesterRole: domain.RoleProvider,
	})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))
}

func TestRelease_GatewayFailureLeavesEscrowUntouched(t *testing.T) {
	f := newEscrowFixture(t)

	f.gw.transferFn = func(application.TransferRequest, string) (*application.TransferResponse, error) {
		return nil, &application.GatewayError{Code: "internal_error", Message: "unavailable", StatusCode: 503}
	}

	_, err := f.releaseAs("provider-1", domain.RoleProvider)
	require.Error(t, err)

	stored := f.store.Escrow(f.escrow.ID)
	assert.Equal(t, domain.EscrowHeld, stored.Status)
	assert.Nil(t, stored.GatewayTransferID)
	// The release intent must be withdrawn so a refund is possible again.
	assert.False(t, stored.ReleaseInProgress())
}

func TestRelease_AlreadyReleasedIsNoOp(t *testing.T) {
	f := newEscrowFixture(t)

	escrow := f.store.Escrow(f.escrow.ID)
	require.NoError(t, escrow.RecordTransfer("tr_done"))
	require.NoError(t, escrow.Release(time.Now().UTC()))
	f.store.SeedEscrow(escrow)

	got, err := f.releaseAs("provider-1", domain.RoleProvider)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowReleased, got.Status)
	assert.Zero(t, f.gw.transferCalls)
}

func TestRelease_DisputedEscrowRejected(t *testing.T) {
	f := newEscrowFixture(t)

	escrow := f.store.Escrow(f.escrow.ID)
	require.NoError(t, escrow.RecordTransfer("tr_failed"))
	require.NoError(t, escrow.MarkDisputed())
	f.store.SeedEscrow(escrow)

	_, err := f.releaseAs("provider-1", domain.RoleProvider)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidState))
	assert.Zero(t, f.gw.transferCalls)
}
