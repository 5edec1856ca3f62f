/**
 * @description
 * This file contains the account status mirror: the business logic that keeps
 * a profile's local summary of its payment-provider connected account in sync
 * with the provider's authoritative state.
 *
 * Key features:
 * - First sync for a profile with no connected account provisions one and
 *   returns an onboarding link for redirect.
 * - Subsequent syncs retrieve the account and derive charges/payouts flags,
 *   outstanding requirements, and a summarized account status.
 * - Re-running with unchanged upstream state rewrites identical values; the
 *   operation has no side effects beyond the profile write and a best-effort
 *   status-change event.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/stripeclient: The narrow provider view (AccountState).
 * - pkg/rabbitmq: Best-effort event publishing.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/rabbitmq"
	"github.com/rentloop/marketplace-service/pkg/stripeclient"
)

const eventsExchange = "marketplace_events"

// AccountProvider is the provider surface the sync flow depends on.
type AccountProvider interface {
	CreateConnectedAccount(ctx context.Context, email string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	GetAccountState(ctx context.Context, accountID string) (*stripeclient.AccountState, error)
}

// AccountSyncService mirrors provider account state onto profiles.
type AccountSyncService struct {
	profiles store.ProfileRepository
	provider AccountProvider
	producer rabbitmq.Publisher
	siteURL  string
	now      func() time.Time
}

// NewAccountSyncService creates a new AccountSyncService.
func NewAccountSyncService(profiles store.ProfileRepository, provider AccountProvider, producer rabbitmq.Publisher, siteURL string) *AccountSyncService {
	return &AccountSyncService{
		profiles: profiles,
		provider: provider,
		producer: producer,
		siteURL:  siteURL,
		now:      time.Now,
	}
}

// SyncResult reports the outcome of one sync pass. Exactly one of
// OnboardingURL or the derived status fields is meaningful: a non-empty
// OnboardingURL means the account was just created and needs onboarding.
type SyncResult struct {
	OnboardingURL   string               `json:"onboarding_url,omitempty"`
	AccountStatus   domain.AccountStatus `json:"account_status"`
	ChargesEnabled  bool                 `json:"charges_enabled"`
	PayoutsEnabled  bool                 `json:"payouts_enabled"`
	RequirementsDue []string             `json:"requirements_due"`
}

// SyncAccount reconciles one profile's connected-account state.
func (s *AccountSyncService) SyncAccount(ctx context.Context, identityID string) (*SyncResult, error) {
	profile, err := s.profiles.FindByIdentityID(ctx, identityID)
	if err != nil {
		return nil, err
	}

	// 1. No connected account yet: provision one and hand back an onboarding link.
	if profile.StripeAccountID == nil || *profile.StripeAccountID == "" {
		accountID, err := s.provider.CreateConnectedAccount(ctx, profile.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to create connected account: %w", err)
		}
		if err := s.profiles.SetStripeAccountID(ctx, identityID, accountID); err != nil {
			return nil, fmt.Errorf("failed to persist connected account id: %w", err)
		}
		link, err := s.provider.CreateOnboardingLink(ctx, accountID,
			s.siteURL+"/account/onboarding/refresh",
			s.siteURL+"/account/onboarding/return",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create onboarding link: %w", err)
		}
		return &SyncResult{OnboardingURL: link, AccountStatus: domain.AccountStatusPending}, nil
	}

	// 2. Retrieve current account state from the provider.
	state, err := s.provider.GetAccountState(ctx, *profile.StripeAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sync account status: %w", err)
	}

	// 3. Derive and persist the mirrored fields.
	status := deriveAccountStatus(state)
	update := domain.AccountStatusUpdate{
		ChargesEnabled:  state.ChargesEnabled,
		PayoutsEnabled:  state.PayoutsEnabled,
		AccountStatus:   status,
		RequirementsDue: state.RequirementsCurrentlyDue,
		SyncedAt:        s.now().UTC(),
	}
	if err := s.profiles.UpdateAccountStatus(ctx, identityID, update); err != nil {
		return nil, fmt.Errorf("failed to persist account status: %w", err)
	}

	if status != profile.AccountStatus {
		event := domain.AccountStatusChangedEvent{
			IdentityID: identityID,
			OldStatus:  profile.AccountStatus,
			NewStatus:  status,
			Timestamp:  s.now().UTC(),
		}
		if pubErr := s.producer.Publish(ctx, eventsExchange, "account.status_changed", event); pubErr != nil {
			log.Printf("WARN: failed to publish account status change for %s: %v", identityID, pubErr)
		}
	}

	return &SyncResult{
		AccountStatus:   status,
		ChargesEnabled:  state.ChargesEnabled,
		PayoutsEnabled:  state.PayoutsEnabled,
		RequirementsDue: state.RequirementsCurrentlyDue,
	}, nil
}

// deriveAccountStatus summarizes a provider account state into the local
// status enum. A disablement reason always wins; `active` requires every
// enablement flag and an empty requirements ledger.
func deriveAccountStatus(state *stripeclient.AccountState) domain.AccountStatus {
	if state.DisabledReason != "" {
		return domain.AccountStatusRestricted
	}
	noRequirements := len(state.RequirementsCurrentlyDue) == 0 &&
		len(state.RequirementsEventuallyDue) == 0 &&
		len(state.RequirementsPastDue) == 0
	if state.ChargesEnabled && state.PayoutsEnabled && state.DetailsSubmitted && noRequirements {
		return domain.AccountStatusActive
	}
	if !state.DetailsSubmitted || len(state.RequirementsCurrentlyDue) > 0 {
		return domain.AccountStatusIncomplete
	}
	return domain.AccountStatusReviewing
}
