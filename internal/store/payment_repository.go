/**
 * @description
 * Append-only audit trail of provider payment events. Rows are never updated
 * or deleted; the provider event id allows later de-duplication of any
 * redelivered events that slip past the webhook_events guard.
 */
package store

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentloop/marketplace-service/internal/domain"
)

// PostgresPaymentRepository is the PostgreSQL implementation of PaymentRepository.
type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

// NewPostgresPaymentRepository creates a new instance of PostgresPaymentRepository.
func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// Append inserts one audit row.
func (r *PostgresPaymentRepository) Append(ctx context.Context, payment *domain.Payment) error {
	query := `
        INSERT INTO payments (event_id, checkout_session_id, amount, currency, payer_email, provider_status)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		payment.EventID, payment.CheckoutSessionID, payment.Amount,
		payment.Currency, payment.PayerEmail, payment.ProviderStatus,
	)
	if err != nil {
		log.Printf("Error appending payment record for session %s: %v", payment.CheckoutSessionID, err)
		return err
	}
	return nil
}
