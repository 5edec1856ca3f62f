package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
)

type messagesRepoStub struct {
	created []domain.Message
}

func (s *messagesRepoStub) Create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	message.ID = uuid.New()
	s.created = append(s.created, *message)
	return message, nil
}

func (s *messagesRepoStub) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Message, error) {
	return s.created, nil
}

func TestOtherParty(t *testing.T) {
	payerID := uuid.New()
	ownerID := uuid.New()
	strangerID := uuid.New()

	listing := &domain.Listing{ID: uuid.New(), OwnerID: ownerID}
	booking := &domain.Booking{ListingID: listing.ID, PayerProfileID: &payerID}

	if got, err := otherParty(booking, listing, payerID); err != nil || got != ownerID {
		t.Fatalf("payer's counterparty: got %v, %v; want owner", got, err)
	}
	if got, err := otherParty(booking, listing, ownerID); err != nil || got != payerID {
		t.Fatalf("owner's counterparty: got %v, %v; want payer", got, err)
	}
	if _, err := otherParty(booking, listing, strangerID); !errors.Is(err, store.ErrNotBookingParty) {
		t.Fatalf("stranger: expected ErrNotBookingParty, got %v", err)
	}
}

func TestOtherParty_GuestBookingHasNoCounterpartyForOwner(t *testing.T) {
	ownerID := uuid.New()
	listing := &domain.Listing{ID: uuid.New(), OwnerID: ownerID}
	booking := &domain.Booking{ListingID: listing.ID} // guest checkout

	if _, err := otherParty(booking, listing, ownerID); !errors.Is(err, store.ErrNotBookingParty) {
		t.Fatalf("expected ErrNotBookingParty for a guest booking, got %v", err)
	}
}

func TestSendMessage_DerivesReceiver(t *testing.T) {
	payerID := uuid.New()
	ownerID := uuid.New()
	listing := &domain.Listing{ID: uuid.New(), OwnerID: ownerID}
	booking := &domain.Booking{ID: uuid.New(), ListingID: listing.ID, PayerProfileID: &payerID}

	messages := &messagesRepoStub{}
	profiles := &whProfilesStub{byIdentity: map[string]*domain.Profile{
		"payer_identity": {ID: payerID, IdentityID: "payer_identity"},
	}}
	svc := NewMessageService(messages, &finalizeBookingsStub{booking: booking}, &finalizeListingsStub{listing: listing}, profiles)

	msg, err := svc.SendMessage(context.Background(), "payer_identity", booking.ID, "Is pickup at 9 ok?")
	if err != nil {
		t.Fatalf("SendMessage() returned error: %v", err)
	}
	if msg.SenderProfileID != payerID || msg.ReceiverProfileID != ownerID {
		t.Fatalf("unexpected routing: sender=%s receiver=%s", msg.SenderProfileID, msg.ReceiverProfileID)
	}
}

func TestSendMessage_RejectsBlankBody(t *testing.T) {
	svc := NewMessageService(&messagesRepoStub{}, &finalizeBookingsStub{}, &finalizeListingsStub{}, &whProfilesStub{})

	if _, err := svc.SendMessage(context.Background(), "any", uuid.New(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestListMessages_RejectsNonParty(t *testing.T) {
	payerID := uuid.New()
	listing := &domain.Listing{ID: uuid.New(), OwnerID: uuid.New()}
	booking := &domain.Booking{ID: uuid.New(), ListingID: listing.ID, PayerProfileID: &payerID}

	profiles := &whProfilesStub{byIdentity: map[string]*domain.Profile{
		"stranger": {ID: uuid.New(), IdentityID: "stranger"},
	}}
	svc := NewMessageService(&messagesRepoStub{}, &finalizeBookingsStub{booking: booking}, &finalizeListingsStub{listing: listing}, profiles)

	if _, err := svc.ListMessages(context.Background(), "stranger", booking.ID); !errors.Is(err, store.ErrNotBookingParty) {
		t.Fatalf("expected ErrNotBookingParty, got %v", err)
	}
}
