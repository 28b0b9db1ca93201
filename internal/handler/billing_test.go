package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/writinggym/internal/billing"
	"github.com/dukerupert/writinggym/internal/metrics"
	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/push"
	"github.com/dukerupert/writinggym/internal/store"
)

const testWebhookSecret = "whsec_test_secret"

// checkoutGateway answers price lookups and checkout creation locally and
// defers everything else to an unkeyed Stripe client.
type checkoutGateway struct {
	*billing.StripeClient
	prices map[string]string
	params *billing.CheckoutParams
}

func (g *checkoutGateway) PriceIDForLookupKey(_ context.Context, key string) (string, error) {
	return g.prices[key], nil
}

func (g *checkoutGateway) CreateCheckoutSession(_ context.Context, p billing.CheckoutParams) (*billing.CheckoutSession, error) {
	g.params = &p
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

type billingFixture struct {
	subs *store.SubscriptionStore
	gw   *checkoutGateway
	h    *BillingHandler
}

func newBillingFixture(t *testing.T, cfg billing.Config) *billingFixture {
	db := setupTestDB(t)
	subs := store.NewSubscriptionStore(db)
	gw := &checkoutGateway{
		StripeClient: billing.NewStripeClient(cfg, nil),
		prices:       map[string]string{"core_monthly": "price_core"},
	}
	svc := billing.NewService(gw, subs, "https://gym.test")
	wh := billing.NewWebhooks(gw, subs, store.NewPlanStore(db), testLogger())
	return &billingFixture{subs: subs, gw: gw, h: NewBillingHandler(svc, wh, metrics.New(), testLogger())}
}

func TestCheckoutHandler(t *testing.T) {
	f := newBillingFixture(t, billing.Config{})

	rec := do(t, f.h.Checkout, "POST", "/api/checkout", map[string]string{"lookupKey": "core_monthly", "mode": "subscription"}, &testUser)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	res := decodeBody[billing.CheckoutResult](t, rec)
	if res.SessionCode != "cs_test_1" {
		t.Errorf("result = %+v", res)
	}
	if f.gw.params.UserID != testUser.ID || f.gw.params.Mode != stripe.CheckoutSessionModeSubscription {
		t.Errorf("params = %+v", f.gw.params)
	}

	tests := []struct {
		name string
		body map[string]string
	}{
		{"no price", map[string]string{}},
		{"unknown lookup key", map[string]string{"lookupKey": "gold"}},
		{"external success path", map[string]string{"priceId": "price_x", "successPath": "https://evil.test"}},
		{"bad mode", map[string]string{"priceId": "price_x", "mode": "setup"}},
	}
	for _, tt := range tests {
		if rec := do(t, f.h.Checkout, "POST", "/api/checkout", tt.body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestPortalWithoutSubscription(t *testing.T) {
	f := newBillingFixture(t, billing.Config{})
	rec := do(t, f.h.Portal, "POST", "/api/billing-portal", nil, &testUser)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func signedWebhook(t *testing.T, h http.HandlerFunc, secret, payload string) *httptest.ResponseRecorder {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestWebhookCancelsSubscription(t *testing.T) {
	f := newBillingFixture(t, billing.Config{WebhookSecret: testWebhookSecret})
	stripeID := "sub_test_1"
	if _, err := f.subs.Upsert(model.Subscription{UserID: testUser.ID, PlanID: model.PlanCore, Status: model.StatusActive, StripeSubscriptionID: &stripeID}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	payload := fmt.Sprintf(`{"id":"evt_1","object":"event","type":"customer.subscription.deleted","api_version":"2025-08-27.basil",`+
		`"data":{"object":{"id":"%s","object":"subscription","status":"canceled","canceled_at":%d}}}`, stripeID, time.Now().Unix())
	rec := signedWebhook(t, f.h.Webhook, testWebhookSecret, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	sub, err := f.subs.GetByUser(testUser.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Status != model.StatusCanceled || sub.CanceledAt == nil {
		t.Errorf("subscription = %+v", sub)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newBillingFixture(t, billing.Config{WebhookSecret: testWebhookSecret})
	rec := signedWebhook(t, f.h.Webhook, "whsec_other", `{"id":"evt_1","object":"event","type":"invoice.paid"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestWebhookWithoutSecret(t *testing.T) {
	f := newBillingFixture(t, billing.Config{})
	rec := signedWebhook(t, f.h.Webhook, testWebhookSecret, `{"id":"evt_1","object":"event","type":"invoice.paid"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestPushSubscribeAndUnsubscribe(t *testing.T) {
	db := setupTestDB(t)
	ps := store.NewPushStore(db)
	h := NewPushHandler(ps, nil, testLogger())

	body := map[string]string{"endpoint": "https://push.example.com/abc", "p256dh": "key", "auth": "secret", "device_name": "Laptop"}
	rec := do(t, h.Subscribe, "POST", "/api/push/subscribe", body, &testUser)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if subs, _ := ps.ListByUser(testUser.ID); len(subs) != 1 {
		t.Errorf("subscriptions = %d, want 1", len(subs))
	}

	rec = do(t, h.Subscribe, "POST", "/api/push/subscribe", map[string]string{"endpoint": "not a url", "p256dh": "k", "auth": "a"}, &testUser)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad endpoint status = %d, want 400", rec.Code)
	}

	rec = do(t, h.Unsubscribe, "DELETE", "/api/push/subscribe", map[string]string{"endpoint": "https://push.example.com/abc"}, &testUser)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unsubscribe status = %d", rec.Code)
	}
	if subs, _ := ps.ListByUser(testUser.ID); len(subs) != 0 {
		t.Errorf("subscriptions = %d, want 0", len(subs))
	}
}

func TestVAPIDKey(t *testing.T) {
	h := NewPushHandler(nil, nil, testLogger())
	if rec := do(t, h.VAPIDKey, "GET", "/api/push/vapid-key", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured status = %d, want 404", rec.Code)
	}

	svc := push.NewService(push.Config{VAPIDPublicKey: "BPublic", VAPIDPrivateKey: "private"})
	h = NewPushHandler(nil, svc, testLogger())
	rec := do(t, h.VAPIDKey, "GET", "/api/push/vapid-key", nil, nil)
	if got := decodeBody[map[string]string](t, rec)["public_key"]; got != "BPublic" {
		t.Errorf("public_key = %q", got)
	}
}
