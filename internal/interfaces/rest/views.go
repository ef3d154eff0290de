package rest

import (
	"time"

	"github.com/servilink/escrow-engine/internal/domain"
)

type PaymentView struct {
	ID                 string     `json:"id"`
	BookingID          string     `json:"booking_id"`
	ClientID           string     `json:"client_id"`
	ProviderID         string     `json:"provider_id"`
	GrossCents         int64      `json:"gross_cents"`
	PlatformFeeCents   int64      `json:"platform_fee_cents"`
	ProcessingFeeCents int64      `json:"processing_fee_cents"`
	ProviderNetCents   int64      `json:"provider_net_cents"`
	Currency           string     `json:"currency"`
	Status             string     `json:"status"`
	RefundCents        int64      `json:"refund_cents"`
	RefundReason       *string    `json:"refund_reason,omitempty"`
	FailureReason      *string    `json:"failure_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`
}

type EscrowView struct {
	ID          string     `json:"id"`
	PaymentID   string     `json:"payment_id"`
	BookingID   string     `json:"booking_id"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	ReleaseDate time.Time  `json:"release_date"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

type IntentView struct {
	Payment      PaymentView `json:"payment"`
	Escrow       EscrowView  `json:"escrow"`
	ClientSecret string      `json:"client_secret"`
}

type RefundView struct {
	Payment       PaymentView `json:"payment"`
	RefundedCents int64       `json:"refunded_cents"`
}

func ToPaymentView(p *domain.Payment) PaymentView {
	return PaymentView{
		ID:                 p.ID.String(),
		BookingID:          p.BookingID,
		ClientID:           p.ClientID,
		ProviderID:         p.ProviderID,
		GrossCents:         p.GrossCents,
		PlatformFeeCents:   p.PlatformFeeCents,
		ProcessingFeeCents: p.ProcessingFeeCents,
		ProviderNetCents:   p.ProviderNetCents,
		Currency:           p.Currency,
		Status:             string(p.Status),
		RefundCents:        p.RefundCents,
		RefundReason:       p.RefundReason,
		FailureReason:      p.FailureReason,
		CreatedAt:          p.CreatedAt,
		CompletedAt:        p.CompletedAt,
		RefundedAt:         p.RefundedAt,
	}
}

func ToEscrowView(e *domain.Escrow) EscrowView {
	return EscrowView{
		ID:          e.ID.String(),
		PaymentID:   e.PaymentID.String(),
		BookingID:   e.BookingID,
		AmountCents: e.AmountCents,
		Status:      string(e.Status),
		ReleaseDate: e.ReleaseDate,
		ReleasedAt:  e.ReleasedAt,
	}
}

func ToPaymentViews(payments []*domain.Payment) []PaymentView {
	views := make([]PaymentView, 0, len(payments))
	for _, p := range payments {
		views = append(views, ToPaymentView(p))
	}
	return views
}
