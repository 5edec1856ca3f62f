/**
 * @description
 * Data access layer for booking-scoped messages. Messages are immutable once
 * created, so the repository only exposes insert and list.
 */
package store

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentloop/marketplace-service/internal/domain"
)

// PostgresMessageRepository is the PostgreSQL implementation of MessageRepository.
type PostgresMessageRepository struct {
	db *pgxpool.Pool
}

// NewPostgresMessageRepository creates a new instance of PostgresMessageRepository.
func NewPostgresMessageRepository(db *pgxpool.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{db: db}
}

// Create inserts a new message row.
func (r *PostgresMessageRepository) Create(ctx context.Context, message *domain.Message) (*domain.Message, error) {
	query := `
        INSERT INTO messages (booking_id, sender_profile_id, receiver_profile_id, body)
        VALUES ($1, $2, $3, $4)
        RETURNING id, booking_id, sender_profile_id, receiver_profile_id, body, created_at
    `
	var m domain.Message
	err := r.db.QueryRow(ctx, query,
		message.BookingID, message.SenderProfileID, message.ReceiverProfileID, message.Body,
	).Scan(&m.ID, &m.BookingID, &m.SenderProfileID, &m.ReceiverProfileID, &m.Body, &m.CreatedAt)
	if err != nil {
		log.Printf("Error inserting message for booking %s: %v", message.BookingID, err)
		return nil, err
	}
	return &m, nil
}

// ListByBooking returns all messages for a booking, oldest first.
func (r *PostgresMessageRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Message, error) {
	query := `
        SELECT id, booking_id, sender_profile_id, receiver_profile_id, body, created_at
        FROM messages
        WHERE booking_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.BookingID, &m.SenderProfileID, &m.ReceiverProfileID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
