package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rentloop/marketplace-service/internal/domain"
)

type listingsRepoStub struct {
	finalizeListingsStub
	created []domain.Listing
}

func (s *listingsRepoStub) Create(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	listing.ID = uuid.New()
	s.created = append(s.created, *listing)
	return listing, nil
}

func newListingFixture() (*ListingService, *listingsRepoStub) {
	repo := &listingsRepoStub{}
	profiles := &whProfilesStub{byIdentity: map[string]*domain.Profile{
		"owner_identity": {ID: uuid.New(), IdentityID: "owner_identity"},
	}}
	return NewListingService(repo, profiles), repo
}

func TestCreateListing_DerivesPricingModel(t *testing.T) {
	tests := []struct {
		code string
		want domain.PricingModel
	}{
		{"hourly", domain.PricingDuration},
		{"daily", domain.PricingDuration},
		{"fixed", domain.PricingQuantity},
		{"per_item", domain.PricingQuantity},
	}

	for _, tt := range tests {
		svc, repo := newListingFixture()
		listing, err := svc.CreateListing(context.Background(), CreateListingInput{
			OwnerIdentityID: "owner_identity",
			Title:           "Ladder",
			PricingCode:     tt.code,
			UnitRateMinor:   500,
			Location:        "Garage 3",
		})
		if err != nil {
			t.Fatalf("code %q: CreateListing() returned error: %v", tt.code, err)
		}
		if listing.PricingModel != tt.want {
			t.Fatalf("code %q: model %q, want %q", tt.code, listing.PricingModel, tt.want)
		}
		if len(repo.created) != 1 {
			t.Fatalf("code %q: expected one create, got %d", tt.code, len(repo.created))
		}
	}
}

func TestCreateListing_RejectsUnknownPricingCode(t *testing.T) {
	svc, _ := newListingFixture()

	_, err := svc.CreateListing(context.Background(), CreateListingInput{
		OwnerIdentityID: "owner_identity",
		Title:           "Ladder",
		PricingCode:     "weekly",
		UnitRateMinor:   500,
	})
	if !errors.Is(err, ErrInvalidListing) {
		t.Fatalf("expected ErrInvalidListing, got %v", err)
	}
}

func TestCreateListing_DefaultsCurrency(t *testing.T) {
	svc, _ := newListingFixture()

	listing, err := svc.CreateListing(context.Background(), CreateListingInput{
		OwnerIdentityID: "owner_identity",
		Title:           "Ladder",
		PricingCode:     "fixed",
		UnitRateMinor:   500,
	})
	if err != nil {
		t.Fatalf("CreateListing() returned error: %v", err)
	}
	if listing.Currency != "usd" {
		t.Fatalf("expected default currency usd, got %q", listing.Currency)
	}
}

func TestEffectiveMinQuantityDefaultsToOne(t *testing.T) {
	l := &domain.Listing{}
	if got := l.EffectiveMinQuantity(); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	l.MinQuantity = 2.5
	if got := l.EffectiveMinQuantity(); got != 2.5 {
		t.Fatalf("expected 2.5, got %v", got)
	}
}
