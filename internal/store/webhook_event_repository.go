/**
 * @description
 * Persists processed webhook event ids behind a uniqueness constraint so a
 * redelivered event is applied at most once. The insert happens before any
 * mutation; a duplicate key means the event was (or is being) handled.
 */
package store

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWebhookEventRepository is the PostgreSQL implementation of WebhookEventRepository.
type PostgresWebhookEventRepository struct {
	db *pgxpool.Pool
}

// NewPostgresWebhookEventRepository creates a new instance of PostgresWebhookEventRepository.
func NewPostgresWebhookEventRepository(db *pgxpool.Pool) *PostgresWebhookEventRepository {
	return &PostgresWebhookEventRepository{db: db}
}

// MarkProcessed records the event id, returning ErrDuplicateEvent when the
// provider has redelivered an event we already handled.
func (r *PostgresWebhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	query := `INSERT INTO webhook_events (event_id, event_type) VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, eventID, eventType)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" { // unique_violation
			return ErrDuplicateEvent
		}
		log.Printf("Error recording webhook event %s: %v", eventID, err)
		return err
	}
	return nil
}

// Unmark deletes the guard row after a processing failure so the provider's
// redelivery is not treated as a duplicate.
func (r *PostgresWebhookEventRepository) Unmark(ctx context.Context, eventID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM webhook_events WHERE event_id = $1`, eventID)
	if err != nil {
		log.Printf("Error releasing webhook event %s: %v", eventID, err)
	}
	return err
}
