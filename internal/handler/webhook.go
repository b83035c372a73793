package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/curtistech/unlock-server/internal/audit"
	"github.com/curtistech/unlock-server/internal/middleware"
	"github.com/curtistech/unlock-server/internal/model"
	"github.com/curtistech/unlock-server/internal/service"
)

// productMetadataKey is the checkout metadata entry naming the product.
const productMetadataKey = "product"

type checkoutSession struct {
	ID              string            `json:"id"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails customerDetails   `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
}

type customerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type WebhookHandler struct {
	ingestor *service.Ingestor
}

func NewWebhookHandler(ingestor *service.Ingestor) *WebhookHandler {
	return &WebhookHandler{ingestor: ingestor}
}

// Handle expects StripeSignatureMiddleware in front of it. Every delivery
// that reaches it is acknowledged with 200.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	event := middleware.GetStripeEvent(r.Context())
	if event == nil {
		log.Warn().Msg("webhook: no event in request context")
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	payment, ok := toPaymentEvent(event)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": model.IngestOutcomeRejected})
		return
	}

	outcome := h.ingestor.Ingest(r.Context(), payment)

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventWebhookIngest,
		Product: payment.Product,
		Details: map[string]any{
			"event_id":   payment.ID,
			"event_type": payment.Type,
			"outcome":    string(outcome),
		},
	})

	writeJSON(w, http.StatusOK, map[string]any{"received": true, "outcome": outcome})
}

func toPaymentEvent(event *stripe.Event) (model.PaymentEvent, bool) {
	payment := model.PaymentEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if payment.Type != model.EventTypeCheckoutCompleted {
		return payment, true
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		log.Warn().Str("eventId", event.ID).Msg("webhook: checkout event without data")
		return payment, false
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Warn().Err(err).Str("eventId", event.ID).Msg("webhook: cannot decode checkout session")
		return payment, false
	}

	payment.SessionID = session.ID
	payment.Email = strings.TrimSpace(session.CustomerDetails.Email)
	if payment.Email == "" {
		payment.Email = strings.TrimSpace(session.CustomerEmail)
	}
	payment.Name = strings.TrimSpace(session.CustomerDetails.Name)
	payment.Product = strings.TrimSpace(session.Metadata[productMetadataKey])
	return payment, true
}
