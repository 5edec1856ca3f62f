/**
 * @description
 * Payment audit record captured from provider webhook events. Rows are
 * append-only and keyed by the provider's event id so redelivered events can
 * be de-duplicated after the fact.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment is one append-only audit row per recorded provider payment event.
type Payment struct {
	ID                uuid.UUID `json:"id"`
	EventID           string    `json:"event_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	// Amount is normalized from the provider's minor units (e.g. 1250 -> 12.50).
	Amount         float64   `json:"amount"`
	Currency       string    `json:"currency"`
	PayerEmail     string    `json:"payer_email"`
	ProviderStatus string    `json:"provider_status"`
	CreatedAt      time.Time `json:"created_at"`
}
