/**
 * @description
 * This file contains the session verification gate: before post-purchase
 * sensitive details (private address, access instructions) are released, the
 * checkout session is re-fetched from the provider and checked against the
 * requesting identity.
 *
 * @notes
 * - The paid/identity check is re-derived from the provider on every view.
 *   A locally cached "paid" flag is never trusted, so forged or stale local
 *   state cannot expose private instructions.
 */
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/stripeclient"
)

var (
	// ErrSessionUnpaid rejects access when the provider does not report the
	// session as paid, regardless of who is asking.
	ErrSessionUnpaid = errors.New("checkout session is not paid")
	// ErrIdentityMismatch rejects access when the requester is anonymous or
	// is not the session's purchaser.
	ErrIdentityMismatch = errors.New("authenticated identity does not match session purchaser")
)

// SessionProvider is the provider surface the gate depends on.
type SessionProvider interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripeclient.CheckoutSessionInfo, error)
}

// SessionGateService confirms session ownership before releasing access details.
type SessionGateService struct {
	bookings store.BookingRepository
	listings store.ListingRepository
	provider SessionProvider
}

// NewSessionGateService creates a new SessionGateService.
func NewSessionGateService(bookings store.BookingRepository, listings store.ListingRepository, provider SessionProvider) *SessionGateService {
	return &SessionGateService{bookings: bookings, listings: listings, provider: provider}
}

// AccessDetails is the sanitized post-purchase payload. It carries only what
// the pickup view needs, never raw provider session internals.
type AccessDetails struct {
	ListingTitle       string `json:"listing_title"`
	Location           string `json:"location"`
	PickupInstructions string `json:"pickup_instructions"`
	AccessInstructions string `json:"access_instructions"`
}

// VerifySession checks that the session is paid and belongs to the requesting
// identity, then returns the listing's access details.
func (s *SessionGateService) VerifySession(ctx context.Context, sessionID, identityEmail string) (*AccessDetails, error) {
	// 1. Authoritative session state, straight from the provider.
	session, err := s.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// 2. Unpaid sessions never reveal anything, even to a matching identity.
	if !session.Paid {
		return nil, ErrSessionUnpaid
	}

	// 3. The requester must be authenticated and match the purchaser.
	if strings.TrimSpace(identityEmail) == "" ||
		!strings.EqualFold(strings.TrimSpace(identityEmail), strings.TrimSpace(session.PayerEmail)) {
		return nil, ErrIdentityMismatch
	}

	// 4. Resolve the booking and listing and return the sanitized details.
	booking, err := s.bookings.FindByCheckoutSessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}

	return &AccessDetails{
		ListingTitle:       listing.Title,
		Location:           listing.Location,
		PickupInstructions: listing.PickupInstructions,
		AccessInstructions: listing.AccessInstructions,
	}, nil
}
