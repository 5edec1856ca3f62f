/**
 * @description
 * Booking surface: creating a provider checkout session for a listing,
 * listing a profile's bookings, and the per-party soft hide. The booking row
 * itself is created by the completed-checkout webhook, not here; the
 * provider remains the source of truth for whether a purchase happened.
 */
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/stripeclient"
)

// CheckoutProvider is the provider surface booking checkout depends on.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, input stripeclient.CreateCheckoutInput) (id, url string, err error)
}

// BookingService manages the booking surface around the reconciliation core.
type BookingService struct {
	bookings store.BookingRepository
	listings store.ListingRepository
	profiles store.ProfileRepository
	provider CheckoutProvider
	siteURL  string
}

// NewBookingService creates a new BookingService.
func NewBookingService(bookings store.BookingRepository, listings store.ListingRepository, profiles store.ProfileRepository, provider CheckoutProvider, siteURL string) *BookingService {
	return &BookingService{
		bookings: bookings,
		listings: listings,
		profiles: profiles,
		provider: provider,
		siteURL:  siteURL,
	}
}

// StartCheckout creates a provider-hosted checkout session covering the
// listing's minimum billable quantity and returns the redirect URL.
func (s *BookingService) StartCheckout(ctx context.Context, listingID uuid.UUID, identityID, guestEmail string) (string, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return "", err
	}

	metadata := map[string]string{"listing_id": listing.ID.String()}
	email := strings.TrimSpace(guestEmail)
	if identityID != "" {
		profile, err := s.profiles.FindByIdentityID(ctx, identityID)
		if err != nil {
			return "", err
		}
		metadata["identity_id"] = identityID
		email = profile.Email
	}

	amount := amountMinor(listing.UnitRateMinor, listing.EffectiveMinQuantity())
	_, url, err := s.provider.CreateCheckoutSession(ctx, stripeclient.CreateCheckoutInput{
		ListingTitle:  listing.Title,
		AmountMinor:   amount,
		Currency:      listing.Currency,
		CustomerEmail: email,
		SuccessURL:    s.siteURL + "/bookings/confirmed?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.siteURL + "/listings/" + listing.ID.String(),
		Metadata:      metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start checkout for listing %s: %w", listingID, err)
	}
	return url, nil
}

// ListBookings returns the caller's bookings as payer and as listing owner,
// honoring the per-party visibility flags.
func (s *BookingService) ListBookings(ctx context.Context, identityID string) ([]domain.Booking, error) {
	profile, err := s.profiles.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return s.bookings.ListForProfile(ctx, profile.ID)
}

// HideBooking soft-hides a booking for whichever side the caller is on.
// The row is never deleted.
func (s *BookingService) HideBooking(ctx context.Context, identityID string, bookingID uuid.UUID) error {
	profile, err := s.profiles.FindByIdentityID(ctx, identityID)
	if err != nil {
		return err
	}
	return s.bookings.SetHidden(ctx, bookingID, profile.ID, true)
}
