/**
 * @description
 * Listing domain model. A listing is an offer of an asset or service with a
 * unit rate and a minimum billable quantity. The pricing model is derived
 * one-to-one from the pricing code supplied at creation time (e.g. "hourly"
 * always means duration-based billing), never stored independently.
 */
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PricingModel describes how usage of a listing is billed.
type PricingModel string

const (
	PricingDuration PricingModel = "duration" // billed per unit of time
	PricingQuantity PricingModel = "quantity" // billed per unit sold
)

// PricingModelForCode maps a fixed pricing-intent code to its billing model.
func PricingModelForCode(code string) (PricingModel, error) {
	switch code {
	case "hourly", "daily":
		return PricingDuration, nil
	case "fixed", "per_item":
		return PricingQuantity, nil
	default:
		return "", fmt.Errorf("unknown pricing code %q", code)
	}
}

// Listing is an offer created and exclusively mutated by its owner.
type Listing struct {
	ID                 uuid.UUID    `json:"id"`
	OwnerID            uuid.UUID    `json:"owner_id"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	PricingModel       PricingModel `json:"pricing_model"`
	UnitRateMinor      int64        `json:"unit_rate_minor"`
	Currency           string       `json:"currency"`
	MinQuantity        float64      `json:"min_quantity"`
	Location           string       `json:"location"`
	PickupInstructions string       `json:"pickup_instructions"`
	// AccessInstructions are private and only released through the session
	// verification gate after a paid checkout.
	AccessInstructions string    `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

// EffectiveMinQuantity returns the minimum billable quantity, defaulting to 1.
func (l *Listing) EffectiveMinQuantity() float64 {
	if l.MinQuantity <= 0 {
		return 1
	}
	return l.MinQuantity
}
