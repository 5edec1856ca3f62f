package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
)

type whPaymentsStub struct {
	appended []domain.Payment
	err      error
}

func (s *whPaymentsStub) Append(ctx context.Context, payment *domain.Payment) error {
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, *payment)
	return nil
}

type whBookingsStub struct {
	finalizeBookingsStub
	created []domain.Booking
}

func (s *whBookingsStub) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	booking.ID = uuid.New()
	s.created = append(s.created, *booking)
	return booking, nil
}

type whProfilesStub struct {
	finalizeProfilesStub
	byIdentity map[string]*domain.Profile
	upgrades   []string
}

func (s *whProfilesStub) FindByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error) {
	if p, ok := s.byIdentity[identityID]; ok {
		return p, nil
	}
	return nil, store.ErrProfileNotFound
}

func (s *whProfilesStub) UpgradeSubscriptionTier(ctx context.Context, identityID string, tier domain.SubscriptionTier) error {
	s.upgrades = append(s.upgrades, identityID)
	return nil
}

type whEventsStub struct {
	marked   map[string]bool
	unmarked []string
}

func (s *whEventsStub) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	if s.marked == nil {
		s.marked = map[string]bool{}
	}
	if s.marked[eventID] {
		return store.ErrDuplicateEvent
	}
	s.marked[eventID] = true
	return nil
}

func (s *whEventsStub) Unmark(ctx context.Context, eventID string) error {
	delete(s.marked, eventID)
	s.unmarked = append(s.unmarked, eventID)
	return nil
}

func newWebhookFixture() (*WebhookService, *whPaymentsStub, *whBookingsStub, *whProfilesStub, *whEventsStub) {
	payments := &whPaymentsStub{}
	bookings := &whBookingsStub{}
	profiles := &whProfilesStub{byIdentity: map[string]*domain.Profile{}}
	events := &whEventsStub{}
	svc := NewWebhookService(payments, bookings, profiles, events, &recordingProducer{})
	return svc, payments, bookings, profiles, events
}

func TestBeginEvent_ReportsRedelivery(t *testing.T) {
	svc, _, _, _, _ := newWebhookFixture()

	duplicate, err := svc.BeginEvent(context.Background(), "evt_1", "checkout.session.completed")
	if err != nil || duplicate {
		t.Fatalf("first delivery should not be a duplicate: dup=%v err=%v", duplicate, err)
	}

	duplicate, err = svc.BeginEvent(context.Background(), "evt_1", "checkout.session.completed")
	if err != nil {
		t.Fatalf("redelivery check failed: %v", err)
	}
	if !duplicate {
		t.Fatal("expected the second delivery to be reported as a duplicate")
	}
}

func TestAbandonEvent_AllowsRedeliveryToApply(t *testing.T) {
	svc, _, _, _, events := newWebhookFixture()

	if _, err := svc.BeginEvent(context.Background(), "evt_1", "checkout.session.completed"); err != nil {
		t.Fatalf("BeginEvent() failed: %v", err)
	}
	svc.AbandonEvent(context.Background(), "evt_1")

	duplicate, err := svc.BeginEvent(context.Background(), "evt_1", "checkout.session.completed")
	if err != nil || duplicate {
		t.Fatalf("abandoned event should accept redelivery: dup=%v err=%v", duplicate, err)
	}
	if len(events.unmarked) != 1 {
		t.Fatalf("expected one unmark, got %d", len(events.unmarked))
	}
}

func TestProcessCheckoutCompleted_RecordsPaymentAndBooking(t *testing.T) {
	svc, payments, bookings, profiles, _ := newWebhookFixture()
	profileID := uuid.New()
	profiles.byIdentity["user_1"] = &domain.Profile{ID: profileID, IdentityID: "user_1"}

	listingID := uuid.New()
	err := svc.ProcessCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		EventID:        "evt_1",
		SessionID:      "cs_1",
		AmountMinor:    2599,
		Currency:       "usd",
		PayerEmail:     "buyer@example.com",
		ProviderStatus: "paid",
		IdentityID:     "user_1",
		ListingID:      listingID.String(),
	})
	if err != nil {
		t.Fatalf("ProcessCheckoutCompleted() returned error: %v", err)
	}

	if len(payments.appended) != 1 {
		t.Fatalf("expected one payment row, got %d", len(payments.appended))
	}
	if payments.appended[0].Amount != 25.99 {
		t.Fatalf("expected normalized amount 25.99, got %v", payments.appended[0].Amount)
	}

	if len(bookings.created) != 1 {
		t.Fatalf("expected one booking, got %d", len(bookings.created))
	}
	booking := bookings.created[0]
	if booking.ListingID != listingID || booking.CheckoutSessionID != "cs_1" {
		t.Fatalf("unexpected booking: %+v", booking)
	}
	if booking.PayerProfileID == nil || *booking.PayerProfileID != profileID {
		t.Fatalf("expected payer resolved to profile %s, got %v", profileID, booking.PayerProfileID)
	}
	if booking.Finalized() {
		t.Fatal("a fresh booking must not be finalized")
	}

	if len(profiles.upgrades) != 1 || profiles.upgrades[0] != "user_1" {
		t.Fatalf("expected tier upgrade for user_1, got %v", profiles.upgrades)
	}
}

func TestProcessCheckoutCompleted_GuestCheckout(t *testing.T) {
	svc, _, bookings, profiles, _ := newWebhookFixture()

	listingID := uuid.New()
	err := svc.ProcessCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		EventID:     "evt_2",
		SessionID:   "cs_2",
		AmountMinor: 1000,
		Currency:    "usd",
		PayerEmail:  "guest@example.com",
		ListingID:   listingID.String(),
	})
	if err != nil {
		t.Fatalf("ProcessCheckoutCompleted() returned error: %v", err)
	}

	if len(bookings.created) != 1 {
		t.Fatalf("expected one booking, got %d", len(bookings.created))
	}
	if bookings.created[0].PayerProfileID != nil {
		t.Fatal("guest booking must not carry a payer profile")
	}
	if len(profiles.upgrades) != 0 {
		t.Fatalf("guest checkout must not upgrade a tier, got %v", profiles.upgrades)
	}
}

func TestProcessCheckoutCompleted_MalformedListingIDStillRecordsPayment(t *testing.T) {
	svc, payments, bookings, _, _ := newWebhookFixture()

	err := svc.ProcessCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		EventID:     "evt_3",
		SessionID:   "cs_3",
		AmountMinor: 1000,
		Currency:    "usd",
		PayerEmail:  "buyer@example.com",
		ListingID:   "not-a-uuid",
	})
	if err != nil {
		t.Fatalf("malformed listing metadata must not fail the event: %v", err)
	}
	if len(payments.appended) != 1 {
		t.Fatalf("expected the payment to be recorded regardless, got %d", len(payments.appended))
	}
	if len(bookings.created) != 0 {
		t.Fatal("no booking should be created from malformed metadata")
	}
}

func TestProcessCheckoutCompleted_PaymentFailureAborts(t *testing.T) {
	svc, payments, bookings, _, _ := newWebhookFixture()
	payments.err = errors.New("insert failed")

	err := svc.ProcessCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		EventID:     "evt_4",
		SessionID:   "cs_4",
		AmountMinor: 1000,
		ListingID:   uuid.New().String(),
	})
	if err == nil {
		t.Fatal("expected error when the audit row cannot be written")
	}
	if len(bookings.created) != 0 {
		t.Fatal("booking must not be created when the payment write fails")
	}
}
