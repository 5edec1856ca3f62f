/**
 * @description
 * This file contains the HTTP handlers for the marketplace API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application services, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-playground/validator/v10: Request payload validation.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rentloop/marketplace-service/internal/app"
	"github.com/rentloop/marketplace-service/internal/store"
)

var validate = validator.New()

// Handlers holds the application services that handlers will use.
type Handlers struct {
	accounts *app.AccountSyncService
	finalize *app.FinalizeService
	sessions *app.SessionGateService
	webhooks *app.WebhookService
	listings *app.ListingService
	bookings *app.BookingService
	messages *app.MessageService
	jobs     *app.Jobs
	limiter  *app.RedisRateLimiter

	webhookSecret string
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(
	accounts *app.AccountSyncService,
	finalize *app.FinalizeService,
	sessions *app.SessionGateService,
	webhooks *app.WebhookService,
	listings *app.ListingService,
	bookings *app.BookingService,
	messages *app.MessageService,
	jobs *app.Jobs,
	limiter *app.RedisRateLimiter,
	webhookSecret string,
) *Handlers {
	return &Handlers{
		accounts:      accounts,
		finalize:      finalize,
		sessions:      sessions,
		webhooks:      webhooks,
		listings:      listings,
		bookings:      bookings,
		messages:      messages,
		jobs:          jobs,
		limiter:       limiter,
		webhookSecret: webhookSecret,
	}
}

// SyncAccountHandler provisions or reconciles the caller's connected payment
// account and returns either an onboarding URL or the derived status.
func (h *Handlers) SyncAccountHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if !h.allowRate(w, r, "account_sync", identityID, 10, time.Minute) {
		return
	}

	result, err := h.accounts.SyncAccount(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		log.Printf("level=error component=api endpoint=account_sync identity_id=%s err=%v", identityID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to sync payment account")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// InternalSyncAccountsHandler kicks off the bulk connected-account sync.
// Guarded by the cron secret middleware; returns immediately with 202.
func (h *Handlers) InternalSyncAccountsHandler(w http.ResponseWriter, r *http.Request) {
	go h.jobs.SyncConnectedAccounts()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type finalizeBookingRequest struct {
	FinalQuantity float64 `json:"final_quantity" validate:"required,gt=0"`
}

// FinalizeBookingHandler sets a booking's final usage and charges any delta
// above the pre-authorized minimum.
func (h *Handlers) FinalizeBookingHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	var req finalizeBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "final_quantity must be a positive number")
		return
	}

	if !h.allowRate(w, r, "finalize", identityID, 30, time.Minute) {
		return
	}

	outcome, err := h.finalize.FinalizeBooking(r.Context(), bookingID, req.FinalQuantity)
	if err != nil {
		var chargeErr *app.ChargeFailedError
		switch {
		case errors.Is(err, app.ErrInvalidQuantity):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, store.ErrAlreadyFinalized):
			h.writeError(w, http.StatusConflict, "Booking has already been finalized")
		case errors.As(err, &chargeErr):
			// Usage was persisted; only the additional charge failed. The
			// provider retries are driven by the client re-invoking support
			// flows, so surface it as a bad gateway.
			log.Printf("level=error component=api endpoint=finalize booking_id=%s err=%v", bookingID, err)
			h.writeError(w, http.StatusBadGateway, "Final usage recorded but the additional charge failed")
		default:
			log.Printf("level=error component=api endpoint=finalize booking_id=%s err=%v", bookingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to finalize booking")
		}
		return
	}

	if outcome.ChargedMinor == 0 {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":            "no additional charge required",
			"final_quantity":     outcome.FinalQuantity,
			"final_amount_minor": outcome.FinalAmountMinor,
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"charged_minor":      outcome.ChargedMinor,
		"fee_minor":          outcome.FeeMinor,
		"final_quantity":     outcome.FinalQuantity,
		"final_amount_minor": outcome.FinalAmountMinor,
	})
}

type verifySessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// VerifySessionHandler gates access to post-purchase details behind a fresh
// provider-side payment check and an identity match.
func (h *Handlers) VerifySessionHandler(w http.ResponseWriter, r *http.Request) {
	_, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	email, _ := GetIdentityEmail(r.Context())

	var req verifySessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	details, err := h.sessions.VerifySession(r.Context(), req.SessionID, email)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrSessionUnpaid), errors.Is(err, app.ErrIdentityMismatch):
			h.writeError(w, http.StatusForbidden, "Access denied")
		case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Booking not found")
		default:
			log.Printf("level=error component=api endpoint=verify_session err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Failed to verify session")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, details)
}

type createListingRequest struct {
	Title              string  `json:"title" validate:"required,max=200"`
	Description        string  `json:"description"`
	PricingCode        string  `json:"pricing_code" validate:"required,oneof=hourly daily fixed per_item"`
	UnitRateMinor      int64   `json:"unit_rate_minor" validate:"required,gt=0"`
	Currency           string  `json:"currency"`
	MinQuantity        float64 `json:"min_quantity" validate:"gte=0"`
	Location           string  `json:"location" validate:"required"`
	PickupInstructions string  `json:"pickup_instructions"`
	AccessInstructions string  `json:"access_instructions"`
}

// CreateListingHandler handles requests to create a new listing.
func (h *Handlers) CreateListingHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	listing, err := h.listings.CreateListing(r.Context(), app.CreateListingInput{
		OwnerIdentityID:    identityID,
		Title:              req.Title,
		Description:        req.Description,
		PricingCode:        req.PricingCode,
		UnitRateMinor:      req.UnitRateMinor,
		Currency:           req.Currency,
		MinQuantity:        req.MinQuantity,
		Location:           req.Location,
		PickupInstructions: req.PickupInstructions,
		AccessInstructions: req.AccessInstructions,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidListing) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, store.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		log.Printf("level=error component=api endpoint=create_listing identity_id=%s err=%v", identityID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to create listing")
		return
	}

	h.writeJSON(w, http.StatusCreated, listing)
}

type updateListingRequest struct {
	Title              string  `json:"title" validate:"required,max=200"`
	Description        string  `json:"description"`
	UnitRateMinor      int64   `json:"unit_rate_minor" validate:"required,gt=0"`
	MinQuantity        float64 `json:"min_quantity" validate:"gte=0"`
	Location           string  `json:"location" validate:"required"`
	PickupInstructions string  `json:"pickup_instructions"`
	AccessInstructions string  `json:"access_instructions"`
}

// UpdateListingHandler rewrites the mutable fields of a listing the caller owns.
func (h *Handlers) UpdateListingHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	var req updateListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	listing, err := h.listings.UpdateListing(r.Context(), app.UpdateListingInput{
		OwnerIdentityID:    identityID,
		ListingID:          listingID,
		Title:              req.Title,
		Description:        req.Description,
		UnitRateMinor:      req.UnitRateMinor,
		MinQuantity:        req.MinQuantity,
		Location:           req.Location,
		PickupInstructions: req.PickupInstructions,
		AccessInstructions: req.AccessInstructions,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidListing):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrListingNotFound):
			// Also returned when the caller does not own the listing.
			h.writeError(w, http.StatusNotFound, "Listing not found")
		case errors.Is(err, store.ErrProfileNotFound):
			h.writeError(w, http.StatusNotFound, "Profile not found")
		default:
			log.Printf("level=error component=api endpoint=update_listing listing_id=%s err=%v", listingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to update listing")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}

// DeleteListingHandler removes a listing the caller owns.
func (h *Handlers) DeleteListingHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	if err := h.listings.DeleteListing(r.Context(), identityID, listingID); err != nil {
		switch {
		case errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Listing not found")
		case errors.Is(err, store.ErrProfileNotFound):
			h.writeError(w, http.StatusNotFound, "Profile not found")
		default:
			log.Printf("level=error component=api endpoint=delete_listing listing_id=%s err=%v", listingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to delete listing")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetListingHandler returns a single listing's public fields.
func (h *Handlers) GetListingHandler(w http.ResponseWriter, r *http.Request) {
	listingID, err := uuid.Parse(chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid listing ID")
		return
	}

	listing, err := h.listings.GetListing(r.Context(), listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			h.writeError(w, http.StatusNotFound, "Listing not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_listing listing_id=%s err=%v", listingID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load listing")
		return
	}

	h.writeJSON(w, http.StatusOK, listing)
}

// SearchListingsHandler returns listings matching an optional text query and
// location filter.
func (h *Handlers) SearchListingsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	location := r.URL.Query().Get("location")

	listings, err := h.listings.SearchListings(r.Context(), query, location, 50)
	if err != nil {
		log.Printf("level=error component=api endpoint=search_listings err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to search listings")
		return
	}

	h.writeJSON(w, http.StatusOK, listings)
}

type startCheckoutRequest struct {
	ListingID  string `json:"listing_id" validate:"required,uuid"`
	GuestEmail string `json:"guest_email" validate:"omitempty,email"`
}

// StartCheckoutHandler creates a provider checkout session for a listing and
// returns the redirect URL. Works for both signed-in users and guests; the
// booking row itself is created by the completed-checkout webhook.
func (h *Handlers) StartCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req startCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Validation failed: %v", err))
		return
	}

	identityID, _ := GetIdentityID(r.Context())
	if identityID == "" && req.GuestEmail == "" {
		h.writeError(w, http.StatusBadRequest, "guest_email is required for guest checkout")
		return
	}

	listingID, _ := uuid.Parse(req.ListingID)
	url, err := h.bookings.StartCheckout(r.Context(), listingID, identityID, req.GuestEmail)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Listing not found")
		case errors.Is(err, store.ErrProfileNotFound):
			h.writeError(w, http.StatusNotFound, "Profile not found")
		default:
			log.Printf("level=error component=api endpoint=checkout listing_id=%s err=%v", req.ListingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to start checkout")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// ListBookingsHandler returns the caller's bookings on both sides of the
// marketplace, honoring visibility flags.
func (h *Handlers) ListBookingsHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	bookings, err := h.bookings.ListBookings(r.Context(), identityID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		log.Printf("level=error component=api endpoint=list_bookings identity_id=%s err=%v", identityID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to list bookings")
		return
	}

	h.writeJSON(w, http.StatusOK, bookings)
}

// HideBookingHandler soft-hides a booking from the caller's history.
func (h *Handlers) HideBookingHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	if err := h.bookings.HideBooking(r.Context(), identityID, bookingID); err != nil {
		switch {
		case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrNotBookingParty):
			h.writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, store.ErrProfileNotFound):
			h.writeError(w, http.StatusNotFound, "Profile not found")
		default:
			log.Printf("level=error component=api endpoint=hide_booking booking_id=%s err=%v", bookingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to hide booking")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

// SendMessageHandler creates a message within a booking's thread.
func (h *Handlers) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Message body is required")
		return
	}

	message, err := h.messages.SendMessage(r.Context(), identityID, bookingID, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmptyMessage):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotBookingParty):
			h.writeError(w, http.StatusForbidden, "You are not a party to this booking")
		case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, store.ErrProfileNotFound):
			h.writeError(w, http.StatusNotFound, "Profile not found")
		default:
			log.Printf("level=error component=api endpoint=send_message booking_id=%s err=%v", bookingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to send message")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, message)
}

// ListMessagesHandler returns a booking's message thread for a party.
func (h *Handlers) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	identityID, ok := GetIdentityID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	bookingID, err := uuid.Parse(chi.URLParam(r, "bookingID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid booking ID")
		return
	}

	messages, err := h.messages.ListMessages(r.Context(), identityID, bookingID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotBookingParty):
			h.writeError(w, http.StatusForbidden, "You are not a party to this booking")
		case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, store.ErrListingNotFound):
			h.writeError(w, http.StatusNotFound, "Booking not found")
		case errors.Is(err, store.ErrProfileNotFound):
			h.writeError(w, http.StatusNotFound, "Profile not found")
		default:
			log.Printf("level=error component=api endpoint=list_messages booking_id=%s err=%v", bookingID, err)
			h.writeError(w, http.StatusInternalServerError, "Failed to list messages")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

// allowRate consumes one hit from the distributed limiter and writes a 429
// when the caller is over. Limiter errors fail open with a log line.
func (h *Handlers) allowRate(w http.ResponseWriter, r *http.Request, scope, subject string, limit int, window time.Duration) bool {
	count, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), scope, subject, limit, window)
	if err != nil {
		log.Printf("level=warn component=api msg=\"rate limiter unavailable\" scope=%s err=%v", scope, err)
		return true
	}
	if limit > 0 && count > limit {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		return false
	}
	return true
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
