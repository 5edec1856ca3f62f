/**
 * @description
 * Booking domain model. A booking is a confirmed transaction against a
 * listing, created when the provider reports a completed checkout session.
 * Finalization is a one-way transition: once FinalQuantity is set it is never
 * rewritten, enforced with a conditional update in the store layer.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus reflects the payment/fulfillment state of a booking.
type BookingStatus string

const (
	BookingStatusPaid      BookingStatus = "paid"
	BookingStatusFinalized BookingStatus = "finalized"
)

// Booking is jointly visible to payer and listing owner but mutated only by
// the payment-recording and finalization flows.
type Booking struct {
	ID                uuid.UUID     `json:"id"`
	ListingID         uuid.UUID     `json:"listing_id"`
	PayerProfileID    *uuid.UUID    `json:"payer_profile_id,omitempty"` // nil for guest checkouts
	PayerEmail        string        `json:"payer_email"`
	CheckoutSessionID string        `json:"checkout_session_id"`
	AmountMinor       int64         `json:"amount_minor"`
	FinalQuantity     *float64      `json:"final_quantity,omitempty"`
	FinalAmountMinor  *int64        `json:"final_amount_minor,omitempty"`
	Status            BookingStatus `json:"status"`
	HiddenByPayer     bool          `json:"hidden_by_payer"`
	HiddenByOwner     bool          `json:"hidden_by_owner"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Finalized reports whether the booking's usage has been finalized.
func (b *Booking) Finalized() bool {
	return b.FinalQuantity != nil
}
