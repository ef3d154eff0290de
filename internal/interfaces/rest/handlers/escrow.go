package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/domain"
	"github.com/servilink/escrow-engine/internal/interfaces/rest"
)

// ReleaseEscrow handles POST /api/v1/escrows/{id}/release.
func (h *Handlers) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterFrom(r)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		rest.WriteError(w, domain.NewNotFoundError("escrow", chi.URLParam(r, "id")), h.logger)
		return
	}

	escrow, err := h.escrows.Release(r.Context(), services.ReleaseCommand{
		EscrowID:      id,
		RequesterID:   requester.UserID,
		RequesterRole: requester.Role,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.ToEscrowView(escrow))
}

type refundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// RefundPayment handles POST /api/v1/payments/{id}/refund.
func (h *Handlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
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

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	result, err := h.refunds.Refund(r.Context(), services.RefundCommand{
		PaymentID:     id,
		RequesterID:   requester.UserID,
		RequesterRole: requester.Role,
		Reason:        req.Reason,
		AmountCents:   req.AmountCents,
	})
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.RefundView{
		Payment:       rest.ToPaymentView(result.Payment),
		RefundedCents: result.RefundedCents,
	})
}
