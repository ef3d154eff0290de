package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/domain"
	"github.com/servilink/escrow-engine/internal/interfaces/rest"
)

type createPaymentRequest struct {
	BookingID        string `json:"booking_id"`
	AmountCents      int64  `json:"amount_cents"`
	Currency         string `json:"currency"`
	PaymentMethodRef string `json:"payment_method_ref"`
}

// CreatePayment handles POST /api/v1/payments.
func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	result, err := h.intents.CreateIntent(r.Context(), services.CreateIntentCommand{
		BookingID:        req.BookingID,
		AmountCents:      req.AmountCents,
		Currency:         req.Currency,
		PaymentMethodRef: req.PaymentMethodRef,
		RequesterID:      requester.UserID,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.IntentView{
		Payment:      rest.ToPaymentView(result.Payment),
		Escrow:       rest.ToEscrowView(result.Escrow),
		ClientSecret: result.ClientSecret,
	})
}

// GetPayment handles GET /api/v1/payments/{id}.
func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		rest.WriteError(w, domain.NewNotFoundError("payment", chi.URLParam(r, "id")), h.logger)
		return
	}

	payment, err := h.queries.GetPayment(r.Context(), id, requester.UserID, requester.Role)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.ToPaymentView(payment))
}

// ListUserPayments handles GET /api/v1/users/{id}/payments.
func (h *Handlers) ListUserPayments(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	userID := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	payments, err := h.queries.ListUserPayments(r.Context(), userID, requester.UserID, requester.Role, limit, offset)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.ToPaymentViews(payments))
}

// GetStats handles GET /api/v1/payments/stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	stats, err := h.queries.Stats(r.Context(), requester.Role)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, stats)
}
