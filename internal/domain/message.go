/**
 * @description
 * Message domain model. Messages are booking-scoped, immutable once created,
 * and the receiver is always derived as the other booking party rather than
 * accepted as client input.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a booking-scoped communication between the two booking parties.
type Message struct {
	ID                uuid.UUID `json:"id"`
	BookingID         uuid.UUID `json:"booking_id"`
	SenderProfileID   uuid.UUID `json:"sender_profile_id"`
	ReceiverProfileID uuid.UUID `json:"receiver_profile_id"`
	Body              string    `json:"body"`
	CreatedAt         time.Time `json:"created_at"`
}
