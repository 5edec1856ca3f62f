/**
 * @description
 * This file contains the booking finalization flow: converting a provisional
 * minimum-usage authorization into the true final charge once actual usage is
 * known, charging only the delta.
 *
 * Key features:
 * - Usage is persisted before the charge is attempted, so the authoritative
 *   quantity is never lost even when the provider call fails. That partial
 *   state is surfaced to the caller as a ChargeFailedError, never swallowed.
 * - The persistence step is a conditional write (final quantity still unset),
 *   so concurrent finalize calls on one booking resolve to a single winner.
 * - The platform fee is 10% of the supplemental charge, capped strictly below
 *   the charge so the destination account always nets at least one minor unit.
 *
 * @dependencies
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/stripeclient: Session lookup and the adjustment charge call.
 * - pkg/rabbitmq: Best-effort event publishing.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
	"github.com/rentloop/marketplace-service/pkg/rabbitmq"
	"github.com/rentloop/marketplace-service/pkg/stripeclient"
)

const platformFeeRate = 0.10

var (
	// ErrInvalidQuantity rejects a finalize request before any computation or
	// persistence happens.
	ErrInvalidQuantity = errors.New("final quantity must be a positive number")
	// ErrOwnerNotPayable is returned when the listing owner has no connected
	// account to route the supplemental charge to.
	ErrOwnerNotPayable = errors.New("listing owner has no connected payment account")
)

// ChargeFailedError reports that usage was persisted but the supplemental
// charge did not go through; the caller must reconcile or retry the charge.
type ChargeFailedError struct {
	BookingID uuid.UUID
	Err       error
}

func (e *ChargeFailedError) Error() string {
	return fmt.Sprintf("final usage recorded for booking %s but supplemental charge failed: %v", e.BookingID, e.Err)
}

func (e *ChargeFailedError) Unwrap() error { return e.Err }

// ChargeProvider is the provider surface the finalize flow depends on.
type ChargeProvider interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripeclient.CheckoutSessionInfo, error)
	CreateAdjustmentCharge(ctx context.Context, input stripeclient.AdjustmentChargeInput) (string, error)
}

// FinalizeService computes and charges the usage delta for bookings.
type FinalizeService struct {
	bookings store.BookingRepository
	listings store.ListingRepository
	profiles store.ProfileRepository
	provider ChargeProvider
	producer rabbitmq.Publisher
}

// NewFinalizeService creates a new FinalizeService.
func NewFinalizeService(bookings store.BookingRepository, listings store.ListingRepository, profiles store.ProfileRepository, provider ChargeProvider, producer rabbitmq.Publisher) *FinalizeService {
	return &FinalizeService{
		bookings: bookings,
		listings: listings,
		profiles: profiles,
		provider: provider,
		producer: producer,
	}
}

// FinalizeOutcome reports what finalization did.
type FinalizeOutcome struct {
	FinalQuantity    float64
	FinalAmountMinor int64
	ChargedMinor     int64 // zero when usage came in at or under the minimum
	FeeMinor         int64
}

// FinalizeBooking sets the booking's final usage and charges the delta above
// the pre-authorized minimum, if any.
func (s *FinalizeService) FinalizeBooking(ctx context.Context, bookingID uuid.UUID, finalQuantity float64) (*FinalizeOutcome, error) {
	// 1. Validate input before touching anything.
	if finalQuantity <= 0 || math.IsNaN(finalQuantity) || math.IsInf(finalQuantity, 0) {
		return nil, ErrInvalidQuantity
	}

	// 2. Load booking and listing.
	booking, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.FindByID(ctx, booking.ListingID)
	if err != nil {
		return nil, err
	}

	// 3. Compute amounts in minor units.
	upfront := amountMinor(listing.UnitRateMinor, listing.EffectiveMinQuantity())
	final := amountMinor(listing.UnitRateMinor, finalQuantity)
	additional := final - upfront

	// 4. Persist final usage unconditionally (even when no charge follows).
	// The conditional write rejects a second finalization or the loser of a race.
	if err := s.bookings.SetFinalUsage(ctx, bookingID, finalQuantity, final); err != nil {
		return nil, err
	}

	outcome := &FinalizeOutcome{FinalQuantity: finalQuantity, FinalAmountMinor: final}

	// 5. Usage at or under the minimum is a valid terminal outcome, not an error.
	if additional <= 0 {
		log.Printf("Booking %s finalized at quantity %.2f with no additional charge", bookingID, finalQuantity)
		s.publishFinalized(ctx, bookingID, outcome)
		return outcome, nil
	}

	// 6. Charge the delta to the payer's saved payment method, routed to the
	// owner's connected account with the platform fee withheld.
	owner, err := s.profiles.FindByID(ctx, listing.OwnerID)
	if err != nil {
		return outcome, &ChargeFailedError{BookingID: bookingID, Err: err}
	}
	if owner.StripeAccountID == nil || *owner.StripeAccountID == "" {
		return outcome, &ChargeFailedError{BookingID: bookingID, Err: ErrOwnerNotPayable}
	}

	session, err := s.provider.GetCheckoutSession(ctx, booking.CheckoutSessionID)
	if err != nil {
		return outcome, &ChargeFailedError{BookingID: bookingID, Err: err}
	}

	fee := platformFee(additional)
	chargeInput := stripeclient.AdjustmentChargeInput{
		AmountMinor:        additional,
		FeeMinor:           fee,
		Currency:           listing.Currency,
		CustomerID:         session.CustomerID,
		PaymentMethodID:    session.PaymentMethodID,
		DestinationAccount: *owner.StripeAccountID,
		BookingID:          bookingID.String(),
	}
	if _, err := s.provider.CreateAdjustmentCharge(ctx, chargeInput); err != nil {
		// Usage fields are already written at this point; report the gap.
		return outcome, &ChargeFailedError{BookingID: bookingID, Err: err}
	}

	outcome.ChargedMinor = additional
	outcome.FeeMinor = fee
	log.Printf("Booking %s finalized: quantity %.2f, charged %d (fee %d)", bookingID, finalQuantity, additional, fee)
	s.publishFinalized(ctx, bookingID, outcome)
	return outcome, nil
}

func (s *FinalizeService) publishFinalized(ctx context.Context, bookingID uuid.UUID, outcome *FinalizeOutcome) {
	event := domain.BookingFinalizedEvent{
		BookingID:        bookingID,
		FinalQuantity:    outcome.FinalQuantity,
		FinalAmountMinor: outcome.FinalAmountMinor,
		ChargedMinor:     outcome.ChargedMinor,
		Timestamp:        time.Now().UTC(),
	}
	if err := s.producer.Publish(ctx, eventsExchange, "booking.finalized", event); err != nil {
		log.Printf("WARN: failed to publish booking.finalized for %s: %v", bookingID, err)
	}
}

// amountMinor computes rate × quantity in minor units, rounded half away
// from zero exactly once so fractional quantities have no ambiguity.
func amountMinor(unitRateMinor int64, quantity float64) int64 {
	return int64(math.Round(float64(unitRateMinor) * quantity))
}

// platformFee is 10% of the charge, rounded, and always strictly less than
// the charge itself so the destination nets at least one minor unit.
func platformFee(chargeMinor int64) int64 {
	fee := int64(math.Round(float64(chargeMinor) * platformFeeRate))
	if fee >= chargeMinor {
		fee = chargeMinor - 1
	}
	if fee < 0 {
		fee = 0
	}
	return fee
}
