/**
 * @description
 * This file defines the Profile domain model and the derived connected-account
 * status types. The profile mirrors the payment provider's view of a user's
 * connected account so the rest of the application never has to call the
 * provider just to know whether a user can be paid.
 *
 * @notes
 * - `AccountStatus` is derived, not authoritative: the provider remains the
 *   source of truth and every resync may move the status in any direction.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the local summary of a connected account's state.
type AccountStatus string

const (
	AccountStatusPending    AccountStatus = "pending"
	AccountStatusActive     AccountStatus = "active"
	AccountStatusRestricted AccountStatus = "restricted"
	AccountStatusIncomplete AccountStatus = "incomplete"
	AccountStatusReviewing  AccountStatus = "reviewing"
)

// SubscriptionTier identifies the user's plan.
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPlus SubscriptionTier = "plus"
)

// Profile represents a platform user.
type Profile struct {
	ID               uuid.UUID        `json:"id"`
	IdentityID       string           `json:"identity_id"`
	Email            string           `json:"email"`
	DisplayName      string           `json:"display_name"`
	StripeAccountID  *string          `json:"stripe_account_id,omitempty"`
	ChargesEnabled   bool             `json:"charges_enabled"`
	PayoutsEnabled   bool             `json:"payouts_enabled"`
	AccountStatus    AccountStatus    `json:"account_status"`
	RequirementsDue  []string         `json:"requirements_due"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	AccountSyncedAt  *time.Time       `json:"account_synced_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// AccountStatusUpdate carries the derived fields persisted by a sync pass.
type AccountStatusUpdate struct {
	ChargesEnabled  bool
	PayoutsEnabled  bool
	AccountStatus   AccountStatus
	RequirementsDue []string
	SyncedAt        time.Time
}
