package application

import (
	"errors"
	"fmt"
	"time"
)

// AuthorizeRequest asks the gateway to charge the client's payment method for
// the full gross amount, routing SplitCents to the provider's payout account
// and retaining the remainder for the platform, in one atomic call.
type AuthorizeRequest struct {
	AmountCents        int64  `json:"amount_cents"`
	Currency           string `json:"currency"`
	PaymentMethodRef   string `json:"payment_method_ref"`
	DestinationAccount string `json:"destination_account"`
	SplitCents         int64  `json:"split_cents"`
}

type AuthorizeResponse struct {
	IntentID     string    `json:"intent_id"`
	ClientSecret string    `json:"client_secret"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// TransferRequest moves funds from the platform's pooled balance to a
// provider payout account.
type TransferRequest struct {
	AmountCents        int64  `json:"amount_cents"`
	Currency           string `json:"currency"`
	DestinationAccount string `json:"destination_account"`
}

type TransferResponse struct {
	TransferID string    `json:"transfer_id"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	TransferStatusPending   = "pending"
	TransferStatusSucceeded = "succeeded"
	TransferStatusFailed    = "failed"
)

type RefundRequest struct {
	IntentID    string `json:"intent_id"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason,omitempty"`
}

type RefundResponse struct {
	RefundID  string    `json:"refund_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// GatewayError is a typed failure from the payment gateway. Its details are
// logged but never returned verbatim to API callers.
type GatewayError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
}

func (e *GatewayError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.Code == "internal_error"
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	ok := errors.As(err, &gwErr)
	return gwErr, ok
}
