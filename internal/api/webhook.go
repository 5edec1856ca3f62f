/**
 * @description
 * HTTP handler for inbound Stripe webhook deliveries. Signature verification
 * is the authentication mechanism for this endpoint: the shared webhook
 * secret proves the payload came from Stripe, so a missing or invalid
 * signature is rejected before anything is read out of the body.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82/webhook: Signature verification.
 * - internal/app: Event processing and idempotency bookkeeping.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/rentloop/marketplace-service/internal/app"
	"github.com/rentloop/marketplace-service/internal/store"
)

// Stripe sends small JSON payloads; anything larger is not a real delivery.
const webhookBodyLimit = 1 << 20

// checkoutSessionPayload is the subset of the checkout.session.completed
// object this service reads. Decoded from event.Data.Raw rather than the
// SDK's full struct so unrelated API-version drift cannot break ingestion.
type checkoutSessionPayload struct {
	ID            string            `json:"id"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
	CustomerEmail string            `json:"customer_email"`
	CustomerDetails *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// StripeWebhookHandler verifies, deduplicates, and applies provider events.
func (h *Handlers) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		// Intentionally vague; missing signature is treated as invalid auth.
		h.writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Printf("level=warn component=api endpoint=webhook msg=\"signature verification failed\" err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(w, r, &event)
	case "payment_intent.succeeded":
		// Adjustment charges confirm synchronously during finalize, so this
		// is acknowledgement only.
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
	default:
		// Unknown event types are acknowledged so Stripe stops retrying them.
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *Handlers) handleCheckoutCompleted(w http.ResponseWriter, r *http.Request, event *stripe.Event) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Printf("level=error component=api endpoint=webhook event_id=%s msg=\"malformed checkout session payload\" err=%v", event.ID, err)
		h.writeError(w, http.StatusBadRequest, "Malformed event payload")
		return
	}

	// Record the event id before mutating anything so a concurrent or
	// repeated delivery of the same event becomes a no-op.
	duplicate, err := h.webhooks.BeginEvent(r.Context(), event.ID, string(event.Type))
	if err != nil {
		log.Printf("level=error component=api endpoint=webhook event_id=%s msg=\"failed to record event\" err=%v", event.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}
	if duplicate {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	payerEmail := session.CustomerEmail
	if payerEmail == "" && session.CustomerDetails != nil {
		payerEmail = session.CustomerDetails.Email
	}

	err = h.webhooks.ProcessCheckoutCompleted(r.Context(), app.CheckoutCompletedEvent{
		EventID:        event.ID,
		SessionID:      session.ID,
		AmountMinor:    session.AmountTotal,
		Currency:       session.Currency,
		PayerEmail:     payerEmail,
		ProviderStatus: session.PaymentStatus,
		IdentityID:     session.Metadata["identity_id"],
		ListingID:      session.Metadata["listing_id"],
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		// Release the idempotency guard so Stripe's retry can re-apply.
		h.webhooks.AbandonEvent(r.Context(), event.ID)
		log.Printf("level=error component=api endpoint=webhook event_id=%s msg=\"event processing failed\" err=%v", event.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
