/**
 * @description
 * This file implements the data access layer for listings. Ownership checks
 * for updates and deletes are enforced in the SQL itself, so a non-owner can
 * never mutate someone else's listing regardless of handler bugs.
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

// PostgresListingRepository is the PostgreSQL implementation of ListingRepository.
type PostgresListingRepository struct {
	db *pgxpool.Pool
}

// NewPostgresListingRepository creates a new instance of PostgresListingRepository.
func NewPostgresListingRepository(db *pgxpool.Pool) *PostgresListingRepository {
	return &PostgresListingRepository{db: db}
}

const listingColumns = `id, owner_id, title, description, pricing_model, unit_rate_minor,
        currency, min_quantity, location, pickup_instructions, access_instructions, created_at`

func scanListing(row pgx.Row) (*domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.PricingModel, &l.UnitRateMinor,
		&l.Currency, &l.MinQuantity, &l.Location, &l.PickupInstructions, &l.AccessInstructions, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Create inserts a new listing row.
func (r *PostgresListingRepository) Create(ctx context.Context, listing *domain.Listing) (*domain.Listing, error) {
	query := `
        INSERT INTO listings (owner_id, title, description, pricing_model, unit_rate_minor,
                              currency, min_quantity, location, pickup_instructions, access_instructions)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING ` + listingColumns
	created, err := scanListing(r.db.QueryRow(ctx, query,
		listing.OwnerID, listing.Title, listing.Description, listing.PricingModel, listing.UnitRateMinor,
		listing.Currency, listing.MinQuantity, listing.Location, listing.PickupInstructions, listing.AccessInstructions,
	))
	if err != nil {
		log.Printf("Error inserting listing for owner %s: %v", listing.OwnerID, err)
		return nil, err
	}
	return created, nil
}

// FindByID retrieves a listing by id.
func (r *PostgresListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	listing, err := scanListing(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	return listing, nil
}

// Update rewrites the mutable listing fields. The WHERE clause enforces that
// only the owner can update.
func (r *PostgresListingRepository) Update(ctx context.Context, listing *domain.Listing, ownerID uuid.UUID) error {
	query := `
        UPDATE listings
        SET title = $3, description = $4, unit_rate_minor = $5, min_quantity = $6,
            location = $7, pickup_instructions = $8, access_instructions = $9
        WHERE id = $1 AND owner_id = $2
    `
	tag, err := r.db.Exec(ctx, query, listing.ID, ownerID,
		listing.Title, listing.Description, listing.UnitRateMinor, listing.MinQuantity,
		listing.Location, listing.PickupInstructions, listing.AccessInstructions,
	)
	if err != nil {
		log.Printf("Error updating listing %s: %v", listing.ID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// Delete removes a listing. The WHERE clause enforces ownership.
func (r *PostgresListingRepository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM listings WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		log.Printf("Error deleting listing %s: %v", id, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

// Search performs a simple text + location search over listings.
func (r *PostgresListingRepository) Search(ctx context.Context, query, location string, limit int) ([]domain.Listing, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	sql := `
        SELECT ` + listingColumns + `
        FROM listings
        WHERE ($1 = '' OR title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
          AND ($2 = '' OR location ILIKE '%' || $2 || '%')
        ORDER BY created_at DESC
        LIMIT $3
    `
	rows, err := r.db.Query(ctx, sql, query, location, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}
	return listings, rows.Err()
}
