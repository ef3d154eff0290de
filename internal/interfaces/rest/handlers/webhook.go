package handlers

import (
	"io"
	"net/http"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
	"github.com/servilink/escrow-engine/internal/interfaces/rest"
)

const maxWebhookBody = 1 << 20

// HandleGatewayWebhook handles POST /api/v1/webhooks/gateway. Malformed
// payloads get a 400 so the gateway stops redelivering them; processing
// failures get a 500 so it retries.
func (h *Handlers) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	evt, err := domain.ParseGatewayEvent(body)
	if err != nil {
		rest.WriteError(w, application.NewInvalidInputError(err), h.logger)
		return
	}

	if err := h.reconciler.HandleEvent(r.Context(), evt); err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusAccepted, map[string]string{"event_id": evt.ID})
}
