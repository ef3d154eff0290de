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

const testHoldWindow = 72 * time.Hour

func confirmedBooking() *domain.Booking {
	return &domain.Booking{
		ID:            "booking-1",
		ClientID:      "client-1",
		ProviderID:    "provider-1",
		ServiceID:     "service-1",
		Status:        domain.BookingConfirmed,
		ScheduledDate: time.Now().UTC().Add(24 * time.Hour),
	}
}

func newIntentFixture() (*services.IntentService, *memStore, *mockGateway, *mockBookings) {
	store := newMemStore()
	gw := newMockGateway()
	bookings := newMockBookings()
	svc := services.NewIntentService(store, gw, bookings, domain.DefaultFeePolicy(), testHoldWindow, testLogger())
	return svc, store, gw, bookings
}

func defaultIntentCommand() services.CreateIntentCommand {
	return services.CreateIntentCommand{
		BookingID:        "booking-1",
		AmountCents:      10000,
		Currency:         "USD",
		PaymentMethodRef: "pm_test",
		RequesterID:      "client-1",
	}
}

func TestCreateIntent_Success(t *testing.T) {
	svc, store, gw, bookings := newIntentFixture()
	booking := confirmedBooking()
	bookings.Seed(booking)

	result, err := svc.CreateIntent(context.Background(), defaultIntentCommand())
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentPending, result.Payment.Status)
	assert.Equal(t, int64(10000), result.Payment.GrossCents)
	assert.Equal(t, int64(1500), result.Payment.PlatformFeeCents)
	assert.Equal(t, int64(320), result.Payment.ProcessingFeeCents)
	assert.Equal(t, int64(8180), result.Payment.ProviderNetCents)
	assert.Equal(t, "secret_test", result.ClientSecret)

	assert.Equal(t, domain.EscrowPending, result.Escrow.Status)
	assert.Equal(t, int64(8180), result.Escrow.AmountCents)
	assert.Equal(t, booking.ScheduledDate.Add(testHoldWindow), result.Escrow.ReleaseDate)

	// Both rows persisted.
	assert.NotNil(t, store.Payment(result.Payment.ID))
	assert.NotNil(t, store.Escrow(result.Escrow.ID))

	// Gateway saw the split and a booking-scoped idempotency key.
	assert.Equal(t, 1, gw.authorizeCalls)
	assert.Equal(t, []string{"intent-booking-1"}, gw.authorizeKeys)
}

func TestCreateIntent_BookingNotFound(t *testing.T) {
	svc, _, gw, _ := newIntentFixture()

	_, err := svc.CreateIntent(context.Background(), defaultIntentCommand())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))
	assert.Zero(t, gw.authorizeCalls)
}

func TestCreateIntent_OnlyBookingClientMayPay(t *testing.T) {
	svc, _, gw, bookings := newIntentFixture()
	bookings.Seed(confirmedBooking())

	cmd := defaultIntentCommand()
	cmd.RequesterID = "someone-else"

	_, err := svc.CreateIntent(context.Background(), cmd)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeForbidden))
	assert.Zero(t, gw.authorizeCalls)
}

func TestCreateIntent_BookingMustBeConfirmed(t *testing.T) {
	svc, _, _, bookings := newIntentFixture()
	booking := confirmedBooking()
	booking.Status = domain.BookingCancelled
	bookings.Seed(booking)

	_, err := svc.CreateIntent(context.Background(), defaultIntentCommand())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidState))
}

func TestCreateIntent_SecondAttemptConflicts(t *testing.T) {
	svc, _, gw, bookings := newIntentFixture()
	bookings.Seed(confirmedBooking())

	_, err := svc.CreateIntent(context.Background(), defaultIntentCommand())
	require.NoError(t, err)

	_, err = svc.CreateIntent(context.Background(), defaultIntentCommand())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeConflict))
	assert.Equal(t, 1, gw.authorizeCalls)
}

func TestCreateIntent_InvalidAmount(t *testing.T) {
	svc, _, gw, bookings := newIntentFixture()
	bookings.Seed(confirmedBooking())

	cmd := defaultIntentCommand()
	cmd.AmountCents = 0

	_, err := svc.CreateIntent(context.Background(), cmd)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeInvalidAmount))
	assert.Zero(t, gw.authorizeCalls)
}

func TestCreateIntent_GatewayFailureLeavesNoState(t *testing.T) {
	svc, store, gw, bookings := newIntentFixture()
	bookings.Seed(confirmedBooking())

	gw.authorizeFn = func(application.AuthorizeRequest, string) (*application.AuthorizeResponse, error) {
		return nil, &application.GatewayError{Code: "card_declined", Message: "declined", StatusCode: 402}
	}

	_, err := svc.CreateIntent(context.Background(), defaultIntentCommand())
	require.Error(t, err)

	// No orphaned rows; the client can retry with the same idempotency key.
	_, err = store.Payments().FindByBookingID(context.Background(), "booking-1")
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeNotFound))
}
