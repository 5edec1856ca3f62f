/**
 * @description
 * This file contains the post-verification webhook processing logic. The HTTP
 * layer owns signature verification and payload decoding; this service owns
 * the local mutations: the event-id idempotency guard, the payment audit
 * trail, booking creation, and the best-effort subscription tier upgrade.
 *
 * @notes
 * - The event id is recorded behind a uniqueness constraint before any
 *   mutation. If processing then fails, the guard row is released so the
 *   provider's redelivery can be applied; otherwise a redelivered event is
 *   acknowledged without reprocessing.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/rabbitmq"
)

// CheckoutCompletedEvent is the neutral shape of a "checkout completed"
// provider event, decoded by the transport layer.
type CheckoutCompletedEvent struct {
	EventID        string
	SessionID      string
	AmountMinor    int64
	Currency       string
	PayerEmail     string
	ProviderStatus string
	IdentityID     string // metadata; empty for guest checkouts
	ListingID      string // metadata
}

// WebhookService applies local mutations for verified provider events.
type WebhookService struct {
	payments store.PaymentRepository
	bookings store.BookingRepository
	profiles store.ProfileRepository
	events   store.WebhookEventRepository
	producer rabbitmq.Publisher
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(payments store.PaymentRepository, bookings store.BookingRepository, profiles store.ProfileRepository, events store.WebhookEventRepository, producer rabbitmq.Publisher) *WebhookService {
	return &WebhookService{
		payments: payments,
		bookings: bookings,
		profiles: profiles,
		events:   events,
		producer: producer,
	}
}

// BeginEvent records the event id before any mutation. It reports whether the
// event is a redelivery that must be acknowledged without reprocessing.
func (s *WebhookService) BeginEvent(ctx context.Context, eventID, eventType string) (duplicate bool, err error) {
	if err := s.events.MarkProcessed(ctx, eventID, eventType); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// AbandonEvent releases the idempotency guard after a processing failure so
// the provider's redelivery is applied instead of silently skipped.
func (s *WebhookService) AbandonEvent(ctx context.Context, eventID string) {
	if err := s.events.Unmark(ctx, eventID); err != nil {
		log.Printf("WARN: failed to release webhook event guard %s: %v", eventID, err)
	}
}

// ProcessCheckoutCompleted appends the payment audit row, creates the booking,
// and upgrades the payer's subscription tier best-effort.
func (s *WebhookService) ProcessCheckoutCompleted(ctx context.Context, event CheckoutCompletedEvent) error {
	// 1. Append the audit row, amount normalized from minor units.
	payment := &domain.Payment{
		EventID:           event.EventID,
		CheckoutSessionID: event.SessionID,
		Amount:            float64(event.AmountMinor) / 100,
		Currency:          event.Currency,
		PayerEmail:        event.PayerEmail,
		ProviderStatus:    event.ProviderStatus,
	}
	if err := s.payments.Append(ctx, payment); err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}

	// 2. Create the booking for the purchased listing, if the session carried one.
	if event.ListingID != "" {
		listingID, err := uuid.Parse(event.ListingID)
		if err != nil {
			log.Printf("WARN: checkout session %s carries malformed listing id %q", event.SessionID, event.ListingID)
		} else {
			booking := &domain.Booking{
				ListingID:         listingID,
				PayerEmail:        event.PayerEmail,
				CheckoutSessionID: event.SessionID,
				AmountMinor:       event.AmountMinor,
				Status:            domain.BookingStatusPaid,
			}
			if event.IdentityID != "" {
				if profile, err := s.profiles.FindByIdentityID(ctx, event.IdentityID); err == nil {
					booking.PayerProfileID = &profile.ID
				}
			}
			if _, err := s.bookings.Create(ctx, booking); err != nil {
				return fmt.Errorf("failed to create booking for session %s: %w", event.SessionID, err)
			}
		}
	}

	// 3. Tier upgrade is best-effort: log and continue rather than fail the handler.
	if event.IdentityID != "" {
		if err := s.profiles.UpgradeSubscriptionTier(ctx, event.IdentityID, domain.TierPlus); err != nil {
			log.Printf("WARN: failed to upgrade subscription tier for identity %s: %v", event.IdentityID, err)
		}
	}

	// 4. Best-effort notification event.
	recorded := domain.PaymentRecordedEvent{
		CheckoutSessionID: event.SessionID,
		Amount:            payment.Amount,
		Currency:          event.Currency,
		PayerEmail:        event.PayerEmail,
		Timestamp:         time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, eventsExchange, "payment.recorded", recorded); err != nil {
		log.Printf("WARN: failed to publish payment.recorded for session %s: %v", event.SessionID, err)
	}

	return nil
}
