package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the API surface. The stats route must register before the
// {id} route or chi would swallow it as a payment id.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/payments", h.CreatePayment)
		r.Get("/payments/stats", h.GetStats)
		r.Get("/payments/{id}", h.GetPayment)
		r.Post("/payments/{id}/refund", h.RefundPayment)

		r.Post("/escrows/{id}/release", h.ReleaseEscrow)

		r.Get("/users/{id}/payments", h.ListUserPayments)

		r.Post("/webhooks/gateway", h.HandleGatewayWebhook)
	})

	return r
}
