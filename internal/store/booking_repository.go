/**
 * @description
 * This file implements the data access layer for bookings. The finalization
 * write is a conditional update that only succeeds while final_quantity is
 * still NULL, so two concurrent finalize calls can never both win.
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentloop/marketplace-service/internal/domain"
)

// PostgresBookingRepository is the PostgreSQL implementation of BookingRepository.
type PostgresBookingRepository struct {
	db *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new instance of PostgresBookingRepository.
func NewPostgresBookingRepository(db *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

const bookingColumns = `id, listing_id, payer_profile_id, payer_email, checkout_session_id,
        amount_minor, final_quantity, final_amount_minor, status, hidden_by_payer, hidden_by_owner, created_at`

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(
		&b.ID, &b.ListingID, &b.PayerProfileID, &b.PayerEmail, &b.CheckoutSessionID,
		&b.AmountMinor, &b.FinalQuantity, &b.FinalAmountMinor, &b.Status, &b.HiddenByPayer, &b.HiddenByOwner, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Create inserts a new booking row. The checkout session id carries a unique
// constraint, so a redelivered checkout event cannot create a second booking.
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	query := `
        INSERT INTO bookings (listing_id, payer_profile_id, payer_email, checkout_session_id, amount_minor, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + bookingColumns
	created, err := scanBooking(r.db.QueryRow(ctx, query,
		booking.ListingID, booking.PayerProfileID, booking.PayerEmail,
		booking.CheckoutSessionID, booking.AmountMinor, booking.Status,
	))
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" { // unique_violation
			log.Printf("Booking for checkout session %s already exists", booking.CheckoutSessionID)
			return r.FindByCheckoutSessionID(ctx, booking.CheckoutSessionID)
		}
		log.Printf("Error inserting booking for session %s: %v", booking.CheckoutSessionID, err)
		return nil, err
	}
	return created, nil
}

// FindByID retrieves a booking by id.
func (r *PostgresBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

// FindByCheckoutSessionID retrieves a booking by its provider session id.
func (r *PostgresBookingRepository) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE checkout_session_id = $1`
	booking, err := scanBooking(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return booking, nil
}

// SetFinalUsage persists the finalized quantity and amount. The update is
// conditional on final_quantity still being NULL; the losing side of a race
// (or a repeat call) gets ErrAlreadyFinalized.
func (r *PostgresBookingRepository) SetFinalUsage(ctx context.Context, id uuid.UUID, finalQuantity float64, finalAmountMinor int64) error {
	query := `
        UPDATE bookings
        SET final_quantity = $2, final_amount_minor = $3, status = 'finalized'
        WHERE id = $1 AND final_quantity IS NULL
    `
	tag, err := r.db.Exec(ctx, query, id, finalQuantity, finalAmountMinor)
	if err != nil {
		log.Printf("Error finalizing booking %s: %v", id, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing booking from one that was already finalized.
		var exists bool
		if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
			return checkErr
		}
		if !exists {
			return ErrBookingNotFound
		}
		return ErrAlreadyFinalized
	}
	return nil
}

// ListForProfile returns bookings where the profile is payer or listing
// owner, honoring the per-party visibility flags.
func (r *PostgresBookingRepository) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.Booking, error) {
	query := `
        SELECT ` + qualifiedBookingColumns("b") + `
        FROM bookings b
        JOIN listings l ON l.id = b.listing_id
        WHERE (b.payer_profile_id = $1 AND NOT b.hidden_by_payer)
           OR (l.owner_id = $1 AND NOT b.hidden_by_owner)
        ORDER BY b.created_at DESC
    `
	rows, err := r.db.Query(ctx, query, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

// SetHidden flips the visibility flag for whichever side of the booking the
// profile is on. Hiding never deletes the row.
func (r *PostgresBookingRepository) SetHidden(ctx context.Context, id, profileID uuid.UUID, hidden bool) error {
	query := `
        UPDATE bookings b
        SET hidden_by_payer = CASE WHEN b.payer_profile_id = $2 THEN $3 ELSE b.hidden_by_payer END,
            hidden_by_owner = CASE WHEN l.owner_id = $2 THEN $3 ELSE b.hidden_by_owner END
        FROM listings l
        WHERE b.id = $1 AND l.id = b.listing_id
          AND (b.payer_profile_id = $2 OR l.owner_id = $2)
    `
	tag, err := r.db.Exec(ctx, query, id, profileID, hidden)
	if err != nil {
		log.Printf("Error hiding booking %s for profile %s: %v", id, profileID, err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func qualifiedBookingColumns(alias string) string {
	return alias + `.id, ` + alias + `.listing_id, ` + alias + `.payer_profile_id, ` + alias + `.payer_email, ` +
		alias + `.checkout_session_id, ` + alias + `.amount_minor, ` + alias + `.final_quantity, ` +
		alias + `.final_amount_minor, ` + alias + `.status, ` + alias + `.hidden_by_payer, ` +
		alias + `.hidden_by_owner, ` + alias + `.created_at`
}
