/**
 * @description
 * This file defines the interfaces for the data access layer (repositories)
 * along with the sentinel errors the service layer branches on. Defining
 * interfaces allows for dependency injection and easy stubbing in tests.
 *
 * @notes
 * - Any component that needs to interact with the database should depend on
 *   these interfaces, not on the concrete PostgreSQL implementations.
 */
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rentloop/marketplace-service/internal/domain"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrListingNotFound = errors.New("listing not found")
	ErrBookingNotFound = errors.New("booking not found")
	// ErrAlreadyFinalized is returned when a conditional finalization update
	// matches no row because final_quantity is no longer NULL.
	ErrAlreadyFinalized = errors.New("booking already finalized")
	// ErrDuplicateEvent is returned when a webhook event id has already been
	// recorded, indicating a provider redelivery.
	ErrDuplicateEvent = errors.New("webhook event already processed")
	ErrNotBookingParty = errors.New("profile is not a party to this booking")
)

// ProfileRepository defines database operations on user profiles.
type ProfileRepository interface {
	FindByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)
	SetStripeAccountID(ctx context.Context, identityID, stripeAccountID string) error
	UpdateAccountStatus(ctx context.Context, identityID string, update domain.AccountStatusUpdate) error
	UpgradeSubscriptionTier(ctx context.Context, identityID string, tier domain.SubscriptionTier) error
	ListIdentityIDsWithConnectedAccounts(ctx context.Context) ([]string, error)
}

// ListingRepository defines database operations on listings.
type ListingRepository interface {
	Create(ctx context.Context, listing *domain.Listing) (*domain.Listing, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error)
	Update(ctx context.Context, listing *domain.Listing, ownerID uuid.UUID) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	Search(ctx context.Context, query, location string, limit int) ([]domain.Listing, error)
}

// BookingRepository defines database operations on bookings.
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	FindByCheckoutSessionID(ctx context.Context, sessionID string) (*domain.Booking, error)
	// SetFinalUsage persists the final quantity and amount with a conditional
	// update that only succeeds while final_quantity is still NULL.
	SetFinalUsage(ctx context.Context, id uuid.UUID, finalQuantity float64, finalAmountMinor int64) error
	ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.Booking, error)
	SetHidden(ctx context.Context, id, profileID uuid.UUID, hidden bool) error
}

// PaymentRepository records the append-only payment audit trail.
type PaymentRepository interface {
	Append(ctx context.Context, payment *domain.Payment) error
}

// MessageRepository defines database operations on booking messages.
type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) (*domain.Message, error)
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Message, error)
}

// WebhookEventRepository persists processed provider event ids so redelivered
// events are applied at most once.
type WebhookEventRepository interface {
	// MarkProcessed inserts the event id, returning ErrDuplicateEvent if it
	// was already recorded.
	MarkProcessed(ctx context.Context, eventID, eventType string) error
	// Unmark releases a previously recorded event id so a redelivery can be
	// applied after a processing failure.
	Unmark(ctx context.Context, eventID string) error
}
