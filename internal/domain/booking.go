package domain

import "time"

// BookingStatus mirrors the states of the external booking collaborator the
// engine cares about.
type BookingStatus string

const (
	BookingConfirmed     BookingStatus = "CONFIRMED"
	BookingPaid          BookingStatus = "PAID"
	BookingCancelled     BookingStatus = "CANCELLED"
	BookingPaymentFailed BookingStatus = "PAYMENT_FAILED"
	BookingCompleted     BookingStatus = "COMPLETED"
)

// Booking is a read model of the external booking entity, referenced not owned.
type Booking struct {
	ID            string
	ClientID      string
	ProviderID    string
	ServiceID     string
	Status        BookingStatus
	ScheduledDate time.Time
}
