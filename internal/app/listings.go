/**
 * @description
 * Listing management. Thin orchestration over the listing repository: the
 * only real business rule is that the pricing model is derived server-side
 * from the pricing code, never accepted from the client.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
)

// ErrInvalidListing rejects a listing payload before persistence.
var ErrInvalidListing = errors.New("invalid listing")

// ListingService manages listing CRUD and search.
type ListingService struct {
	listings store.ListingRepository
	profiles store.ProfileRepository
}

// NewListingService creates a new ListingService.
func NewListingService(listings store.ListingRepository, profiles store.ProfileRepository) *ListingService {
	return &ListingService{listings: listings, profiles: profiles}
}

// CreateListingInput defines the required input for creating a listing.
type CreateListingInput struct {
	OwnerIdentityID    string
	Title              string
	Description        string
	PricingCode        string
	UnitRateMinor      int64
	Currency           string
	MinQuantity        float64
	Location           string
	PickupInstructions string
	AccessInstructions string
}

// CreateListing derives the pricing model and persists the listing.
func (s *ListingService) CreateListing(ctx context.Context, input CreateListingInput) (*domain.Listing, error) {
	owner, err := s.profiles.FindByIdentityID(ctx, input.OwnerIdentityID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if input.UnitRateMinor <= 0 {
		return nil, fmt.Errorf("%w: unit rate must be positive", ErrInvalidListing)
	}

	model, err := domain.PricingModelForCode(input.PricingCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidListing, err)
	}

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "usd"
	}

	listing := &domain.Listing{
		OwnerID:            owner.ID,
		Title:              input.Title,
		Description:        input.Description,
		PricingModel:       model,
		UnitRateMinor:      input.UnitRateMinor,
		Currency:           currency,
		MinQuantity:        input.MinQuantity,
		Location:           input.Location,
		PickupInstructions: input.PickupInstructions,
		AccessInstructions: input.AccessInstructions,
	}
	return s.listings.Create(ctx, listing)
}

// UpdateListingInput carries the mutable listing fields.
type UpdateListingInput struct {
	OwnerIdentityID    string
	ListingID          uuid.UUID
	Title              string
	Description        string
	UnitRateMinor      int64
	MinQuantity        float64
	Location           string
	PickupInstructions string
	AccessInstructions string
}

// UpdateListing rewrites the mutable fields. Ownership is enforced by the
// repository's conditional update.
func (s *ListingService) UpdateListing(ctx context.Context, input UpdateListingInput) (*domain.Listing, error) {
	owner, err := s.profiles.FindByIdentityID(ctx, input.OwnerIdentityID)
	if err != nil {
		return nil, err
	}
	if input.UnitRateMinor <= 0 {
		return nil, fmt.Errorf("%w: unit rate must be positive", ErrInvalidListing)
	}

	listing := &domain.Listing{
		ID:                 input.ListingID,
		Title:              input.Title,
		Description:        input.Description,
		UnitRateMinor:      input.UnitRateMinor,
		MinQuantity:        input.MinQuantity,
		Location:           input.Location,
		PickupInstructions: input.PickupInstructions,
		AccessInstructions: input.AccessInstructions,
	}
	if err := s.listings.Update(ctx, listing, owner.ID); err != nil {
		return nil, err
	}
	return s.listings.FindByID(ctx, input.ListingID)
}

// DeleteListing removes a listing owned by the caller.
func (s *ListingService) DeleteListing(ctx context.Context, ownerIdentityID string, listingID uuid.UUID) error {
	owner, err := s.profiles.FindByIdentityID(ctx, ownerIdentityID)
	if err != nil {
		return err
	}
	return s.listings.Delete(ctx, listingID, owner.ID)
}

// GetListing retrieves a single listing.
func (s *ListingService) GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	return s.listings.FindByID(ctx, id)
}

// SearchListings performs a text + location search.
func (s *ListingService) SearchListings(ctx context.Context, query, location string, limit int) ([]domain.Listing, error) {
	return s.listings.Search(ctx, query, location, limit)
}
