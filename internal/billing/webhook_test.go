package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/writinggym/internal/database"
	"github.com/dukerupert/writinggym/internal/model"
	"github.com/dukerupert/writinggym/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeTagger struct {
	tags []string
}

func (f *fakeTagger) Configured() bool { return true }

func (f *fakeTagger) Tag(_ context.Context, tagID, email string) error {
	f.tags = append(f.tags, tagID+":"+email)
	return nil
}

type recordingNotifier struct {
	users []string
}

func (r *recordingNotifier) EntitlementsChanged(userID string) {
	r.users = append(r.users, userID)
}

func event(t *testing.T, typ stripe.EventType, obj any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	return stripe.Event{Type: typ, Data: &stripe.EventData{Raw: raw}}
}

var (
	periodStart = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
)

func remoteSub(id string, status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:     id,
		Status: status,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{
			CurrentPeriodStart: periodStart.Unix(),
			CurrentPeriodEnd:   periodEnd.Unix(),
		}}},
	}
}

type webhookFixture struct {
	gw     *fakeGateway
	subs   *store.SubscriptionStore
	tagger *fakeTagger
	notify *recordingNotifier
	wh     *Webhooks
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	db := setupTestDB(t)
	f := &webhookFixture{
		gw:     &fakeGateway{remote: map[string]*stripe.Subscription{"sub_1": remoteSub("sub_1", stripe.SubscriptionStatusActive)}},
		subs:   store.NewSubscriptionStore(db),
		tagger: &fakeTagger{},
		notify: &recordingNotifier{},
	}
	tagFor := func(product string) (string, bool) {
		if product == "Core" {
			return "14115500", true
		}
		return "", false
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.wh = NewWebhooks(f.gw, f.subs, store.NewPlanStore(db), logger,
		WithTagger(f.tagger, tagFor), WithNotifier(f.notify))
	return f
}

func checkoutEvent(t *testing.T, userID string) stripe.Event {
	return event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":                  "cs_1",
		"mode":                "subscription",
		"client_reference_id": userID,
		"metadata":            map[string]string{"product": "Core"},
		"subscription":        "sub_1",
		"customer":            "cus_1",
		"customer_details":    map[string]any{"email": "writer@example.com"},
	})
}

func TestWebhookCheckoutCompleted(t *testing.T) {
	f := newWebhookFixture(t)

	if err := f.wh.Handle(context.Background(), checkoutEvent(t, "u1")); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sub, err := f.subs.GetEffective("u1")
	if err != nil {
		t.Fatalf("GetEffective: %v", err)
	}
	if sub == nil {
		t.Fatal("expected subscription")
	}
	if sub.PlanID != model.PlanCore || sub.Status != model.StatusActive {
		t.Errorf("sub = %+v", sub)
	}
	if sub.StripeCustomerID == nil || *sub.StripeCustomerID != "cus_1" {
		t.Errorf("customer = %v", sub.StripeCustomerID)
	}
	if sub.CurrentPeriodEnd == nil || !sub.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end = %v, want %v", sub.CurrentPeriodEnd, periodEnd)
	}
	if len(f.tagger.tags) != 1 || f.tagger.tags[0] != "14115500:writer@example.com" {
		t.Errorf("tags = %v", f.tagger.tags)
	}
	if len(f.notify.users) != 1 || f.notify.users[0] != "u1" {
		t.Errorf("notified = %v", f.notify.users)
	}
}

func TestWebhookCheckoutPaymentModeOnlyTags(t *testing.T) {
	f := newWebhookFixture(t)
	ev := event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":               "cs_2",
		"mode":             "payment",
		"metadata":         map[string]string{"product": "Core", "user_id": "u1"},
		"customer_details": map[string]any{"email": "buyer@example.com"},
	})
	if err := f.wh.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sub, _ := f.subs.GetByUser("u1"); sub != nil {
		t.Errorf("payment checkout created subscription %+v", sub)
	}
	if len(f.tagger.tags) != 1 {
		t.Errorf("tags = %v, want one", f.tagger.tags)
	}
}

func TestWebhookCheckoutSkipsUnknownProduct(t *testing.T) {
	f := newWebhookFixture(t)
	ev := event(t, stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"mode":                "subscription",
		"client_reference_id": "u1",
		"metadata":            map[string]string{"product": "gold"},
		"subscription":        "sub_1",
	})
	if err := f.wh.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if sub, _ := f.subs.GetByUser("u1"); sub != nil {
		t.Errorf("unexpected subscription %+v", sub)
	}
	if len(f.gw.fetched) != 0 {
		t.Errorf("fetched = %v, want none", f.gw.fetched)
	}
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	if err := f.wh.Handle(ctx, checkoutEvent(t, "u1")); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	updated := remoteSub("sub_1", stripe.SubscriptionStatusActive)
	updated.CancelAtPeriodEnd = true
	updated.Metadata = map[string]string{"product": "premium"}
	if err := f.wh.Handle(ctx, event(t, stripe.EventTypeCustomerSubscriptionUpdated, updated)); err != nil {
		t.Fatalf("updated: %v", err)
	}
	sub, _ := f.subs.GetByUser("u1")
	if sub.PlanID != model.PlanPremium || !sub.CancelAtPeriodEnd {
		t.Errorf("after update = %+v", sub)
	}

	failed := map[string]any{
		"id":     "in_1",
		"parent": map[string]any{"subscription_details": map[string]any{"subscription": "sub_1"}},
	}
	if err := f.wh.Handle(ctx, event(t, stripe.EventTypeInvoicePaymentFailed, failed)); err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if sub, _ := f.subs.GetEffective("u1"); sub != nil {
		t.Errorf("past due subscription still effective: %+v", sub)
	}

	if err := f.wh.Handle(ctx, event(t, stripe.EventTypeInvoicePaid, failed)); err != nil {
		t.Fatalf("invoice paid: %v", err)
	}
	sub, _ = f.subs.GetEffective("u1")
	if sub == nil || sub.Status != model.StatusActive {
		t.Fatalf("after invoice paid = %+v", sub)
	}

	deleted := remoteSub("sub_1", stripe.SubscriptionStatusCanceled)
	deleted.CanceledAt = periodEnd.Unix()
	if err := f.wh.Handle(ctx, event(t, stripe.EventTypeCustomerSubscriptionDeleted, deleted)); err != nil {
		t.Fatalf("deleted: %v", err)
	}
	sub, _ = f.subs.GetByUser("u1")
	if sub.Status != model.StatusCanceled || sub.CanceledAt == nil || !sub.CanceledAt.Equal(periodEnd) {
		t.Errorf("after delete = %+v", sub)
	}
	if len(f.notify.users) != 5 {
		t.Errorf("notifications = %d, want 5", len(f.notify.users))
	}
}

func TestWebhookIgnoresUnknownSubscription(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()
	for _, ev := range []stripe.Event{
		event(t, stripe.EventTypeCustomerSubscriptionUpdated, remoteSub("sub_missing", stripe.SubscriptionStatusActive)),
		event(t, stripe.EventTypeCustomerSubscriptionDeleted, remoteSub("sub_missing", stripe.SubscriptionStatusCanceled)),
		event(t, stripe.EventTypeInvoicePaid, map[string]any{"id": "in_2"}),
		{Type: "customer.created", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}},
	} {
		if err := f.wh.Handle(ctx, ev); err != nil {
			t.Errorf("%s: %v", ev.Type, err)
		}
	}
	if len(f.notify.users) != 0 {
		t.Errorf("notified = %v", f.notify.users)
	}
}
