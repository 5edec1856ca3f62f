/**
 * @description
 * This package provides a client for interacting with the Stripe API. It
 * encapsulates connected-account (Connect Express) provisioning, onboarding
 * links, checkout sessions, and supplemental destination charges.
 *
 * Key features:
 * - Exposes only the narrow fields the application needs (AccountState,
 *   CheckoutSessionInfo) instead of leaking SDK object shapes into the
 *   business logic, so the provider can be swapped or stubbed in tests.
 * - Every call carries the request context so timeouts bound the provider
 *   round-trip.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v82: The Stripe SDK.
 */
package stripeclient

import (
	"context"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/account"
	"github.com/stripe/stripe-go/v82/accountlink"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// AccountState is the narrow view of a connected account this flow consumes.
type AccountState struct {
	ChargesEnabled            bool
	PayoutsEnabled            bool
	DetailsSubmitted          bool
	RequirementsCurrentlyDue  []string
	RequirementsEventuallyDue []string
	RequirementsPastDue       []string
	DisabledReason            string
}

// CheckoutSessionInfo is the sanitized view of a provider checkout session.
// Raw session internals never leave this package.
type CheckoutSessionInfo struct {
	ID              string
	Paid            bool
	PaymentStatus   string
	AmountMinor     int64
	Currency        string
	PayerEmail      string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
}

// CreateCheckoutInput describes a hosted checkout session for a listing.
type CreateCheckoutInput struct {
	ListingTitle  string
	AmountMinor   int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// AdjustmentChargeInput describes a supplemental usage charge routed to a
// connected account.
type AdjustmentChargeInput struct {
	AmountMinor        int64
	FeeMinor           int64
	Currency           string
	CustomerID         string
	PaymentMethodID    string
	DestinationAccount string
	BookingID          string
}

// Client is a thin wrapper over the Stripe SDK.
type Client struct{}

// NewClient configures the SDK with the secret key and returns a client.
func NewClient(secretKey string) *Client {
	stripe.Key = secretKey
	return &Client{}
}

// CreateConnectedAccount provisions a new Express account. Country is fixed
// to the single supported jurisdiction for v1, with card payments and
// transfers requested.
func (c *Client) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String("US"),
		Email:   stripe.String(email),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{
				Requested: stripe.Bool(true),
			},
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	params.Params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create connected account: %w", err)
	}
	return acct.ID, nil
}

// CreateOnboardingLink mints a single-use, time-limited account onboarding URL.
func (c *Client) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	}
	params.Params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create onboarding link: %w", err)
	}
	return link.URL, nil
}

// GetAccountState retrieves the authoritative account state from Stripe and
// maps it onto the narrow AccountState view.
func (c *Client) GetAccountState(ctx context.Context, accountID string) (*AccountState, error) {
	params := &stripe.AccountParams{}
	params.Params.Context = ctx

	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve connected account %s: %w", accountID, err)
	}

	state := &AccountState{
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}
	if acct.Requirements != nil {
		state.RequirementsCurrentlyDue = acct.Requirements.CurrentlyDue
		state.RequirementsEventuallyDue = acct.Requirements.EventuallyDue
		state.RequirementsPastDue = acct.Requirements.PastDue
		state.DisabledReason = string(acct.Requirements.DisabledReason)
	}
	return state, nil
}

// CreateCheckoutSession creates a hosted checkout session and returns its id
// and redirect URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, input CreateCheckoutInput) (id, url string, err error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(input.Currency),
					UnitAmount: stripe.Int64(input.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(input.ListingTitle),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
		// Save the payment method so a later usage adjustment can charge
		// off-session.
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			SetupFutureUsage: stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession)),
		},
		CustomerCreation: stripe.String(string(stripe.CheckoutSessionCustomerCreationAlways)),
	}
	if input.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(input.CustomerEmail)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	params.Params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		return "", "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return sess.ID, sess.URL, nil
}

// GetCheckoutSession fetches the authoritative session record from Stripe,
// expanded far enough to reach the saved payment method.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSessionInfo, error) {
	params := &stripe.CheckoutSessionParams{}
	params.AddExpand("payment_intent.payment_method")
	params.Params.Context = ctx

	sess, err := session.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve checkout session %s: %w", sessionID, err)
	}

	info := &CheckoutSessionInfo{
		ID:            sess.ID,
		Paid:          sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		PaymentStatus: string(sess.PaymentStatus),
		AmountMinor:   sess.AmountTotal,
		Currency:      string(sess.Currency),
		Metadata:      sess.Metadata,
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		info.PayerEmail = sess.CustomerDetails.Email
	} else {
		info.PayerEmail = sess.CustomerEmail
	}
	if sess.Customer != nil {
		info.CustomerID = sess.Customer.ID
	}
	if sess.PaymentIntent != nil && sess.PaymentIntent.PaymentMethod != nil {
		info.PaymentMethodID = sess.PaymentIntent.PaymentMethod.ID
	}
	return info, nil
}

// CreateAdjustmentCharge creates an off-session supplemental charge against
// the payer's saved payment method, routed to the listing owner's connected
// account with the platform fee withheld.
func (c *Client) CreateAdjustmentCharge(ctx context.Context, input AdjustmentChargeInput) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(input.AmountMinor),
		Currency:             stripe.String(input.Currency),
		Customer:             stripe.String(input.CustomerID),
		PaymentMethod:        stripe.String(input.PaymentMethodID),
		OffSession:           stripe.Bool(true),
		Confirm:              stripe.Bool(true),
		ApplicationFeeAmount: stripe.Int64(input.FeeMinor),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(input.DestinationAccount),
		},
	}
	params.AddMetadata("booking_id", input.BookingID)
	params.AddMetadata("type", "usage_adjustment")
	params.Params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create adjustment charge: %w", err)
	}
	return intent.ID, nil
}
