package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/stripeclient"
)

type syncProfilesStub struct {
	profile       *domain.Profile
	findErr       error
	setAccountID  string
	statusUpdates []domain.AccountStatusUpdate
	updateErr     error
}

func (s *syncProfilesStub) FindByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	copied := *s.profile
	return &copied, nil
}

func (s *syncProfilesStub) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return nil, store.ErrProfileNotFound
}

func (s *syncProfilesStub) SetStripeAccountID(ctx context.Context, identityID, stripeAccountID string) error {
	s.setAccountID = stripeAccountID
	return nil
}

func (s *syncProfilesStub) UpdateAccountStatus(ctx context.Context, identityID string, update domain.AccountStatusUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.statusUpdates = append(s.statusUpdates, update)
	return nil
}

func (s *syncProfilesStub) UpgradeSubscriptionTier(ctx context.Context, identityID string, tier domain.SubscriptionTier) error {
	return nil
}

func (s *syncProfilesStub) ListIdentityIDsWithConnectedAccounts(ctx context.Context) ([]string, error) {
	return nil, nil
}

type syncProviderStub struct {
	createdAccountID string
	createErr        error
	onboardingURL    string
	state            *stripeclient.AccountState
	stateErr         error
}

func (s *syncProviderStub) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	return s.createdAccountID, nil
}

func (s *syncProviderStub) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	return s.onboardingURL, nil
}

func (s *syncProviderStub) GetAccountState(ctx context.Context, accountID string) (*stripeclient.AccountState, error) {
	if s.stateErr != nil {
		return nil, s.stateErr
	}
	return s.state, nil
}

type recordingProducer struct {
	routingKeys []string
	bodies      []interface{}
}

func (p *recordingProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	p.bodies = append(p.bodies, body)
	return nil
}

func (p *recordingProducer) Close() {}

func strPtr(s string) *string { return &s }

func TestDeriveAccountStatus(t *testing.T) {
	tests := []struct {
		name  string
		state stripeclient.AccountState
		want  domain.AccountStatus
	}{
		{
			name: "fully enabled with empty requirements is active",
			state: stripeclient.AccountState{
				ChargesEnabled:   true,
				PayoutsEnabled:   true,
				DetailsSubmitted: true,
			},
			want: domain.AccountStatusActive,
		},
		{
			name: "disabled reason wins over enabled flags",
			state: stripeclient.AccountState{
				ChargesEnabled:   true,
				PayoutsEnabled:   true,
				DetailsSubmitted: true,
				DisabledReason:   "under_review",
			},
			want: domain.AccountStatusRestricted,
		},
		{
			name: "disabled reason wins over currently due requirements",
			state: stripeclient.AccountState{
				DetailsSubmitted:         false,
				RequirementsCurrentlyDue: []string{"individual.id_number"},
				DisabledReason:           "requirements.past_due",
			},
			want: domain.AccountStatusRestricted,
		},
		{
			name: "eventually due requirements block active",
			state: stripeclient.AccountState{
				ChargesEnabled:            true,
				PayoutsEnabled:            true,
				DetailsSubmitted:          true,
				RequirementsEventuallyDue: []string{"individual.verification.document"},
			},
			want: domain.AccountStatusReviewing,
		},
		{
			name: "past due requirements block active",
			state: stripeclient.AccountState{
				ChargesEnabled:      true,
				PayoutsEnabled:      true,
				DetailsSubmitted:    true,
				RequirementsPastDue: []string{"individual.dob.year"},
			},
			want: domain.AccountStatusReviewing,
		},
		{
			name: "details not submitted is incomplete",
			state: stripeclient.AccountState{
				ChargesEnabled: true,
				PayoutsEnabled: true,
			},
			want: domain.AccountStatusIncomplete,
		},
		{
			name: "currently due requirements are incomplete even with details submitted",
			state: stripeclient.AccountState{
				ChargesEnabled:           true,
				PayoutsEnabled:           true,
				DetailsSubmitted:         true,
				RequirementsCurrentlyDue: []string{"external_account"},
			},
			want: domain.AccountStatusIncomplete,
		},
		{
			name: "charges disabled without requirements is reviewing",
			state: stripeclient.AccountState{
				ChargesEnabled:   false,
				PayoutsEnabled:   true,
				DetailsSubmitted: true,
			},
			want: domain.AccountStatusReviewing,
		},
		{
			name: "payouts disabled without requirements is reviewing",
			state: stripeclient.AccountState{
				ChargesEnabled:   true,
				PayoutsEnabled:   false,
				DetailsSubmitted: true,
			},
			want: domain.AccountStatusReviewing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deriveAccountStatus(&tt.state)
			if got != tt.want {
				t.Fatalf("deriveAccountStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyncAccount_CreatesAccountAndReturnsOnboardingLink(t *testing.T) {
	profiles := &syncProfilesStub{
		profile: &domain.Profile{
			ID:         uuid.New(),
			IdentityID: "user_1",
			Email:      "owner@example.com",
		},
	}
	provider := &syncProviderStub{
		createdAccountID: "acct_123",
		onboardingURL:    "https://connect.example.com/onboard",
	}
	producer := &recordingProducer{}

	svc := NewAccountSyncService(profiles, provider, producer, "https://rentloop.example.com")

	result, err := svc.SyncAccount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("SyncAccount() returned error: %v", err)
	}
	if result.OnboardingURL != "https://connect.example.com/onboard" {
		t.Fatalf("expected onboarding URL, got %q", result.OnboardingURL)
	}
	if result.AccountStatus != domain.AccountStatusPending {
		t.Fatalf("expected pending status for a fresh account, got %q", result.AccountStatus)
	}
	if profiles.setAccountID != "acct_123" {
		t.Fatalf("expected account id to be persisted before linking, got %q", profiles.setAccountID)
	}
}

func TestSyncAccount_PersistsDerivedStatus(t *testing.T) {
	profiles := &syncProfilesStub{
		profile: &domain.Profile{
			ID:              uuid.New(),
			IdentityID:      "user_1",
			Email:           "owner@example.com",
			StripeAccountID: strPtr("acct_123"),
			AccountStatus:   domain.AccountStatusPending,
		},
	}
	provider := &syncProviderStub{
		state: &stripeclient.AccountState{
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		},
	}
	producer := &recordingProducer{}

	svc := NewAccountSyncService(profiles, provider, producer, "https://rentloop.example.com")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	result, err := svc.SyncAccount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("SyncAccount() returned error: %v", err)
	}
	if result.AccountStatus != domain.AccountStatusActive {
		t.Fatalf("expected active, got %q", result.AccountStatus)
	}
	if len(profiles.statusUpdates) != 1 {
		t.Fatalf("expected one status update, got %d", len(profiles.statusUpdates))
	}
	update := profiles.statusUpdates[0]
	if update.AccountStatus != domain.AccountStatusActive || !update.ChargesEnabled || !update.PayoutsEnabled {
		t.Fatalf("unexpected persisted update: %+v", update)
	}
	if !update.SyncedAt.Equal(fixed) {
		t.Fatalf("expected synced_at %v, got %v", fixed, update.SyncedAt)
	}
}

func TestSyncAccount_PublishesOnStatusChangeOnly(t *testing.T) {
	profiles := &syncProfilesStub{
		profile: &domain.Profile{
			ID:              uuid.New(),
			IdentityID:      "user_1",
			Email:           "owner@example.com",
			StripeAccountID: strPtr("acct_123"),
			AccountStatus:   domain.AccountStatusActive,
		},
	}
	provider := &syncProviderStub{
		state: &stripeclient.AccountState{
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		},
	}
	producer := &recordingProducer{}

	svc := NewAccountSyncService(profiles, provider, producer, "https://rentloop.example.com")

	// Status stays active: resync persists but publishes nothing.
	if _, err := svc.SyncAccount(context.Background(), "user_1"); err != nil {
		t.Fatalf("SyncAccount() returned error: %v", err)
	}
	if len(producer.routingKeys) != 0 {
		t.Fatalf("expected no events for an unchanged status, got %v", producer.routingKeys)
	}

	// A flipped provider flag moves the account out of active and publishes.
	provider.state.PayoutsEnabled = false
	if _, err := svc.SyncAccount(context.Background(), "user_1"); err != nil {
		t.Fatalf("SyncAccount() returned error: %v", err)
	}
	if len(producer.routingKeys) != 1 || producer.routingKeys[0] != "account.status_changed" {
		t.Fatalf("expected account.status_changed event, got %v", producer.routingKeys)
	}
}

func TestSyncAccount_ResyncIsIdempotent(t *testing.T) {
	profiles := &syncProfilesStub{
		profile: &domain.Profile{
			ID:              uuid.New(),
			IdentityID:      "user_1",
			Email:           "owner@example.com",
			StripeAccountID: strPtr("acct_123"),
			AccountStatus:   domain.AccountStatusActive,
		},
	}
	provider := &syncProviderStub{
		state: &stripeclient.AccountState{
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
			DetailsSubmitted: true,
		},
	}
	svc := NewAccountSyncService(profiles, provider, &recordingProducer{}, "https://rentloop.example.com")

	first, err := svc.SyncAccount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("first sync failed: %v", err)
	}
	second, err := svc.SyncAccount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if first.AccountStatus != second.AccountStatus {
		t.Fatalf("identical provider state produced different statuses: %q vs %q", first.AccountStatus, second.AccountStatus)
	}
}

func TestSyncAccount_ProviderErrorLeavesStatusUntouched(t *testing.T) {
	profiles := &syncProfilesStub{
		profile: &domain.Profile{
			ID:              uuid.New(),
			IdentityID:      "user_1",
			Email:           "owner@example.com",
			StripeAccountID: strPtr("acct_123"),
			AccountStatus:   domain.AccountStatusActive,
		},
	}
	provider := &syncProviderStub{stateErr: errors.New("provider unavailable")}
	svc := NewAccountSyncService(profiles, provider, &recordingProducer{}, "https://rentloop.example.com")

	if _, err := svc.SyncAccount(context.Background(), "user_1"); err == nil {
		t.Fatal("expected error when the provider is unavailable")
	}
	if len(profiles.statusUpdates) != 0 {
		t.Fatalf("expected no status writes on provider failure, got %d", len(profiles.statusUpdates))
	}
}
