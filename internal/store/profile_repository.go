/**
 * @description
 * This file implements the data access layer for profile records. The profile
 * row carries the mirrored connected-account state, so the account sync flow
 * and the webhook tier upgrade both write through this repository.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentloop/marketplace-service/internal/domain"
)

// PostgresProfileRepository is the PostgreSQL implementation of ProfileRepository.
type PostgresProfileRepository struct {
	db *pgxpool.Pool
}

// NewPostgresProfileRepository creates a new instance of PostgresProfileRepository.
func NewPostgresProfileRepository(db *pgxpool.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

// FindByIdentityID retrieves a profile by the auth provider's subject id.
func (r *PostgresProfileRepository) FindByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error) {
	query := `
        SELECT id, identity_id, email, display_name, stripe_account_id,
               charges_enabled, payouts_enabled, account_status, requirements_due,
               subscription_tier, account_synced_at, created_at
        FROM profiles
        WHERE identity_id = $1
    `
	var p domain.Profile
	err := r.db.QueryRow(ctx, query, identityID).Scan(
		&p.ID, &p.IdentityID, &p.Email, &p.DisplayName, &p.StripeAccountID,
		&p.ChargesEnabled, &p.PayoutsEnabled, &p.AccountStatus, &p.RequirementsDue,
		&p.SubscriptionTier, &p.AccountSyncedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		log.Printf("Error finding profile by identity_id %s: %v", identityID, err)
		return nil, err
	}
	return &p, nil
}

// FindByID retrieves a profile by its internal id.
func (r *PostgresProfileRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	query := `
        SELECT id, identity_id, email, display_name, stripe_account_id,
               charges_enabled, payouts_enabled, account_status, requirements_due,
               subscription_tier, account_synced_at, created_at
        FROM profiles
        WHERE id = $1
    `
	var p domain.Profile
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.IdentityID, &p.Email, &p.DisplayName, &p.StripeAccountID,
		&p.ChargesEnabled, &p.PayoutsEnabled, &p.AccountStatus, &p.RequirementsDue,
		&p.SubscriptionTier, &p.AccountSyncedAt, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		log.Printf("Error finding profile by id %s: %v", id, err)
		return nil, err
	}
	return &p, nil
}

// SetStripeAccountID links a freshly created connected account to the profile
// and resets the mirrored status to pending.
func (r *PostgresProfileRepository) SetStripeAccountID(ctx context.Context, identityID, stripeAccountID string) error {
	query := `
        UPDATE profiles
        SET stripe_account_id = $2, account_status = 'pending', account_synced_at = NOW()
        WHERE identity_id = $1
    `
	tag, err := r.db.Exec(ctx, query, identityID, stripeAccountID)
	if err != nil {
		log.Printf("Error linking connected account for identity %s: %v", identityID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// UpdateAccountStatus persists all derived account fields from a sync pass.
// Rewriting identical values is safe and expected.
func (r *PostgresProfileRepository) UpdateAccountStatus(ctx context.Context, identityID string, update domain.AccountStatusUpdate) error {
	query := `
        UPDATE profiles
        SET charges_enabled = $2,
            payouts_enabled = $3,
            account_status = $4,
            requirements_due = $5,
            account_synced_at = $6
        WHERE identity_id = $1
    `
	tag, err := r.db.Exec(ctx, query, identityID,
		update.ChargesEnabled, update.PayoutsEnabled, update.AccountStatus,
		update.RequirementsDue, update.SyncedAt,
	)
	if err != nil {
		log.Printf("Error updating account status for identity %s: %v", identityID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// UpgradeSubscriptionTier moves a profile onto the given tier.
func (r *PostgresProfileRepository) UpgradeSubscriptionTier(ctx context.Context, identityID string, tier domain.SubscriptionTier) error {
	query := `UPDATE profiles SET subscription_tier = $2 WHERE identity_id = $1`
	tag, err := r.db.Exec(ctx, query, identityID, tier)
	if err != nil {
		log.Printf("Error upgrading subscription tier for identity %s: %v", identityID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// ListIdentityIDsWithConnectedAccounts returns every profile that holds a
// connected account, for the scheduled bulk sync.
func (r *PostgresProfileRepository) ListIdentityIDsWithConnectedAccounts(ctx context.Context) ([]string, error) {
	query := `
        SELECT identity_id FROM profiles
        WHERE stripe_account_id IS NOT NULL
        ORDER BY account_synced_at ASC NULLS FIRST
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
