/**
 * @description
 * Internal event payloads published to the message broker for decoupled
 * processing (notifications, analytics). Publishing is always best-effort:
 * a failed publish is logged and never fails the primary operation.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecordedEvent is published when a completed checkout is recorded.
type PaymentRecordedEvent struct {
	CheckoutSessionID string    `json:"checkout_session_id"`
	Amount            float64   `json:"amount"`
	Currency          string    `json:"currency"`
	PayerEmail        string    `json:"payer_email"`
	Timestamp         time.Time `json:"timestamp"`
}

// BookingFinalizedEvent is published when a booking's usage is finalized.
type BookingFinalizedEvent struct {
	BookingID        uuid.UUID `json:"booking_id"`
	FinalQuantity    float64   `json:"final_quantity"`
	FinalAmountMinor int64     `json:"final_amount_minor"`
	ChargedMinor     int64     `json:"charged_minor"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccountStatusChangedEvent is published when a sync pass moves a profile's
// derived account status.
type AccountStatusChangedEvent struct {
	IdentityID string        `json:"identity_id"`
	OldStatus  AccountStatus `json:"old_status"`
	NewStatus  AccountStatus `json:"new_status"`
	Timestamp  time.Time     `json:"timestamp"`
}
