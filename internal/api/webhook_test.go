package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rentloop/marketplace-service/internal/app"
	"github.com/rentloop/marketplace-service/internal/domain"
	"github.com/rentloop/marketplace-service/internal/store"
)

const testWebhookSecret = "whsec_test_secret"

type apiPaymentsStub struct {
	appended []domain.Payment
}

func (s *apiPaymentsStub) Append(ctx context.Context, payment *domain.Payment) error {
	s.appended = append(s.appended, *payment)
	return nil
}

type apiBookingsStub struct {
	created []domain.Booking
}

func (s *apiBookingsStub) Create(ctx context.Context, booking *domain.Booking) (*domain.Booking, error) {
	booking.ID = uuid.New()
	s.created = append(s.created, *booking)
	return booking, nil
}

func (s *apiBookingsStub) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return nil, store.ErrBookingNotFound
}

func (s *apiBookingsStub) FindByCheckoutSessionID(ctx context.Context, sessionID string) (*domain.Booking, error) {
	return nil, store.ErrBookingNotFound
}

func (s *apiBookingsStub) SetFinalUsage(ctx context.Context, id uuid.UUID, finalQuantity float64, finalAmountMinor int64) error {
	return nil
}

func (s *apiBookingsStub) ListForProfile(ctx context.Context, profileID uuid.UUID) ([]domain.Booking, error) {
	return nil, nil
}

func (s *apiBookingsStub) SetHidden(ctx context.Context, id, profileID uuid.UUID, hidden bool) error {
	return nil
}

type apiProfilesStub struct{}

func (apiProfilesStub) FindByIdentityID(ctx context.Context, identityID string) (*domain.Profile, error) {
	return nil, store.ErrProfileNotFound
}

func (apiProfilesStub) FindByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	return nil, store.ErrProfileNotFound
}

func (apiProfilesStub) SetStripeAccountID(ctx context.Context, identityID, stripeAccountID string) error {
	return nil
}

func (apiProfilesStub) UpdateAccountStatus(ctx context.Context, identityID string, update domain.AccountStatusUpdate) error {
	return nil
}

func (apiProfilesStub) UpgradeSubscriptionTier(ctx context.Context, identityID string, tier domain.SubscriptionTier) error {
	return nil
}

func (apiProfilesStub) ListIdentityIDsWithConnectedAccounts(ctx context.Context) ([]string, error) {
	return nil, nil
}

type apiEventsStub struct {
	marked map[string]bool
}

func (s *apiEventsStub) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	if s.marked == nil {
		s.marked = map[string]bool{}
	}
	if s.marked[eventID] {
		return store.ErrDuplicateEvent
	}
	s.marked[eventID] = true
	return nil
}

func (s *apiEventsStub) Unmark(ctx context.Context, eventID string) error {
	delete(s.marked, eventID)
	return nil
}

type apiProducerStub struct{}

func (apiProducerStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (apiProducerStub) Close() {}

func newWebhookTestHandlers() (*Handlers, *apiPaymentsStub, *apiBookingsStub) {
	payments := &apiPaymentsStub{}
	bookings := &apiBookingsStub{}
	webhooks := app.NewWebhookService(payments, bookings, apiProfilesStub{}, &apiEventsStub{}, apiProducerStub{})
	h := NewHandlers(nil, nil, nil, webhooks, nil, nil, nil, nil, nil, testWebhookSecret)
	return h, payments, bookings
}

// signPayload produces a Stripe-Signature header the verifier accepts.
func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutCompletedPayload(eventID, sessionID string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": %q,
				"amount_total": 2599,
				"currency": "usd",
				"payment_status": "paid",
				"customer_email": "buyer@example.com",
				"metadata": {"listing_id": %q}
			}
		}
	}`, eventID, sessionID, uuid.New().String())
}

func TestStripeWebhookHandler_MissingSignature(t *testing.T) {
	h, payments, bookings := newWebhookTestHandlers()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(checkoutCompletedPayload("evt_1", "cs_1")))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing signature, got %d", rec.Code)
	}
	if len(payments.appended) != 0 || len(bookings.created) != 0 {
		t.Fatal("an unsigned request must not mutate anything")
	}
}

func TestStripeWebhookHandler_InvalidSignature(t *testing.T) {
	h, payments, bookings := newWebhookTestHandlers()

	payload := checkoutCompletedPayload("evt_1", "cs_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload([]byte(payload), "whsec_wrong_secret", time.Now()))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a forged signature, got %d", rec.Code)
	}
	if len(payments.appended) != 0 || len(bookings.created) != 0 {
		t.Fatal("a forged request must not mutate anything")
	}
}

func TestStripeWebhookHandler_StaleSignatureRejected(t *testing.T) {
	h, payments, _ := newWebhookTestHandlers()

	payload := checkoutCompletedPayload("evt_1", "cs_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload([]byte(payload), testWebhookSecret, time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a stale signature, got %d", rec.Code)
	}
	if len(payments.appended) != 0 {
		t.Fatal("a replayed request must not mutate anything")
	}
}

func TestStripeWebhookHandler_VerifiedCheckoutCompleted(t *testing.T) {
	h, payments, bookings := newWebhookTestHandlers()

	payload := checkoutCompletedPayload("evt_1", "cs_1")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload([]byte(payload), testWebhookSecret, time.Now()))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a verified event, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(payments.appended) != 1 {
		t.Fatalf("expected one payment row, got %d", len(payments.appended))
	}
	if len(bookings.created) != 1 {
		t.Fatalf("expected one booking, got %d", len(bookings.created))
	}
}

func TestStripeWebhookHandler_DuplicateDeliveryAcknowledged(t *testing.T) {
	h, payments, _ := newWebhookTestHandlers()

	payload := checkoutCompletedPayload("evt_1", "cs_1")
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
		req.Header.Set("Stripe-Signature", signPayload([]byte(payload), testWebhookSecret, time.Now()))
		rec := httptest.NewRecorder()

		h.StripeWebhookHandler(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d", i+1, rec.Code)
		}
	}
	if len(payments.appended) != 1 {
		t.Fatalf("redelivery must be applied at most once, got %d payment rows", len(payments.appended))
	}
}

func TestStripeWebhookHandler_UnknownEventTypeAcknowledged(t *testing.T) {
	h, payments, _ := newWebhookTestHandlers()

	payload := `{"id": "evt_other", "type": "invoice.created", "data": {"object": {}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signPayload([]byte(payload), testWebhookSecret, time.Now()))
	rec := httptest.NewRecorder()

	h.StripeWebhookHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for an unknown event type, got %d", rec.Code)
	}
	if len(payments.appended) != 0 {
		t.Fatal("unknown events must not mutate anything")
	}
}
