/**
 * @description
 * Booking-scoped messaging. The sender must be a party to the booking and
 * the receiver is always derived as the other party, never taken from the
 * request. Messages are immutable once created.
 */
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
)

// ErrEmptyMessage rejects a blank message body.
var ErrEmptyMessage = errors.New("message body cannot be empty")

// MessageService manages booking-scoped messages.
type MessageService struct {
	messages store.MessageRepository
	bookings store.BookingRepository
	listings store.ListingRepository
	profiles store.ProfileRepository
}

// NewMessageService creates a new MessageService.
func NewMessageService(messages store.MessageRepository, bookings store.BookingRepository, listings store.ListingRepository, profiles store.ProfileRepository) *MessageService {
	return &MessageService{messages: messages, bookings: bookings, listings: listings, profiles: profiles}
}

// SendMessage creates a message from the caller to the other booking party.
func (s *MessageService) SendMessage(ctx context.Context, identityID string, bookingID uuid.UUID, body string) (*domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyMessage
	}

	sender, err := s.profiles.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}

	receiverID, err := otherParty(booking, listing, sender.ID)
	if err != nil {
		return nil, err
	}

	message := &domain.Message{
		BookingID:         bookingID,
		SenderProfileID:   sender.ID,
		ReceiverProfileID: receiverID,
		Body:              body,
	}
	return s.messages.Create(ctx, message)
}

// ListMessages returns a booking's messages to one of its parties.
func (s *MessageService) ListMessages(ctx context.Context, identityID string, bookingID uuid.UUID) ([]domain.Message, error) {
	caller, err := s.profiles.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}
	if _, err := otherParty(booking, listing, caller.ID); err != nil {
		return nil, err
	}
	return s.messages.ListByBooking(ctx, bookingID)
}

// otherParty derives the counterparty of `party` on the booking, or
// ErrNotBookingParty when the caller is neither payer nor owner.
func otherParty(booking *domain.Booking, listing *domain.Listing, party uuid.UUID) (uuid.UUID, error) {
	if booking.PayerProfileID != nil && *booking.PayerProfileID == party {
		return listing.OwnerID, nil
	}
	if listing.OwnerID == party {
		if booking.PayerProfileID == nil {
			// Guest bookings have no registered counterparty to message.
			return uuid.Nil, store.ErrNotBookingParty
		}
		return *booking.PayerProfileID, nil
	}
	return uuid.Nil, store.ErrNotBookingParty
}
