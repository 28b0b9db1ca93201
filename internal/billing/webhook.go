package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/writinggym/internal/model"
)

// SubscriptionWriter is the subscription storage the webhook updates.
type SubscriptionWriter interface {
	Upsert(sub model.Subscription) (*model.Subscription, error)
	GetByStripeID(stripeSubscriptionID string) (*model.Subscription, error)
	UpdatePeriod(id int64, status model.SubscriptionStatus, start, end *time.Time, cancelAtPeriodEnd bool) error
	UpdateStatus(id int64, status model.SubscriptionStatus) error
	SetPlan(id int64, planID model.PlanID) error
	Cancel(id int64, at time.Time) error
}

// PlanResolver maps a checkout product name to a plan.
type PlanResolver interface {
	ResolveProduct(product string) (*model.Plan, error)
}

// Tagger adds a buyer to a newsletter tag.
type Tagger interface {
	Configured() bool
	Tag(ctx context.Context, tagID, email string) error
}

// Notifier tells a user's open sessions their entitlements changed.
type Notifier interface {
	EntitlementsChanged(userID string)
}

// Webhooks applies verified Stripe events to local subscriptions.
type Webhooks struct {
	gateway Gateway
	subs    SubscriptionWriter
	plans   PlanResolver
	tagger  Tagger
	tagFor  func(product string) (string, bool)
	notify  Notifier
	logger  *slog.Logger
	now     func() time.Time
}

type WebhookOption func(*Webhooks)

// WithTagger tags checkout buyers; tagFor maps a product to a tag id.
func WithTagger(t Tagger, tagFor func(product string) (string, bool)) WebhookOption {
	return func(w *Webhooks) {
		w.tagger = t
		w.tagFor = tagFor
	}
}

func WithNotifier(n Notifier) WebhookOption {
	return func(w *Webhooks) { w.notify = n }
}

func NewWebhooks(gateway Gateway, subs SubscriptionWriter, plans PlanResolver, logger *slog.Logger, opts ...WebhookOption) *Webhooks {
	w := &Webhooks{
		gateway: gateway,
		subs:    subs,
		plans:   plans,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Verify checks the signature header and parses the event.
func (w *Webhooks) Verify(payload []byte, sigHeader string) (stripe.Event, error) {
	return w.gateway.ConstructEvent(payload, sigHeader)
}

// Handle applies one event. Unknown event types are ignored. Events that
// reference no local subscription are logged and skipped, not errors.
func (w *Webhooks) Handle(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("unmarshal checkout session: %w", err)
		}
		return w.checkoutCompleted(ctx, &sess)
	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("unmarshal subscription: %w", err)
		}
		return w.subscriptionUpdated(&sub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("unmarshal subscription: %w", err)
		}
		return w.subscriptionDeleted(&sub)
	case stripe.EventTypeInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("unmarshal invoice: %w", err)
		}
		return w.invoicePaid(ctx, &inv)
	case stripe.EventTypeInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("unmarshal invoice: %w", err)
		}
		return w.invoicePaymentFailed(&inv)
	default:
		w.logger.Debug("unhandled webhook event", "type", event.Type)
		return nil
	}
}

func (w *Webhooks) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	product := sess.Metadata["product"]
	w.tag(ctx, sess, product)

	if sess.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}

	userID := sess.ClientReferenceID
	if userID == "" {
		userID = sess.Metadata["user_id"]
	}
	if userID == "" {
		w.logger.Warn("checkout completed without user", "session_id", sess.ID)
		return nil
	}
	if product == "" {
		w.logger.Warn("checkout completed without product", "session_id", sess.ID)
		return nil
	}
	plan, err := w.plans.ResolveProduct(product)
	if err != nil {
		return fmt.Errorf("resolve product: %w", err)
	}
	if plan == nil {
		w.logger.Warn("no plan for product", "product", product, "session_id", sess.ID)
		return nil
	}
	if sess.Subscription == nil || sess.Subscription.ID == "" {
		w.logger.Warn("checkout completed without subscription", "session_id", sess.ID)
		return nil
	}

	remote, err := w.gateway.GetSubscription(ctx, sess.Subscription.ID)
	if err != nil {
		return err
	}
	start, end := subscriptionPeriod(remote)
	local := model.Subscription{
		UserID:               userID,
		PlanID:               plan.ID,
		Status:               model.SubscriptionStatus(remote.Status),
		StripeSubscriptionID: &remote.ID,
		CurrentPeriodStart:   start,
		CurrentPeriodEnd:     end,
		CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
	}
	if sess.Customer != nil && sess.Customer.ID != "" {
		local.StripeCustomerID = &sess.Customer.ID
	}
	if _, err := w.subs.Upsert(local); err != nil {
		return err
	}
	w.logger.Info("subscription saved", "user_id", userID, "plan", plan.ID, "status", remote.Status)
	w.changed(userID)
	return nil
}

// tag failures are logged and never fail the event.
func (w *Webhooks) tag(ctx context.Context, sess *stripe.CheckoutSession, product string) {
	if w.tagger == nil || w.tagFor == nil || product == "" {
		return
	}
	tagID, ok := w.tagFor(product)
	if !ok || sess.CustomerDetails == nil || sess.CustomerDetails.Email == "" {
		return
	}
	if !w.tagger.Configured() {
		w.logger.Warn("newsletter tagging skipped: not configured", "product", product)
		return
	}
	if err := w.tagger.Tag(ctx, tagID, sess.CustomerDetails.Email); err != nil {
		w.logger.Error("newsletter tag failed", "tag", tagID, "error", err)
	}
}

func (w *Webhooks) subscriptionUpdated(remote *stripe.Subscription) error {
	local, err := w.subs.GetByStripeID(remote.ID)
	if err != nil {
		return err
	}
	if local == nil {
		w.logger.Info("no local subscription", "stripe_subscription_id", remote.ID)
		return nil
	}

	if product := remote.Metadata["product"]; product != "" {
		plan, err := w.plans.ResolveProduct(product)
		if err != nil {
			return fmt.Errorf("resolve product: %w", err)
		}
		if plan != nil && plan.ID != local.PlanID {
			if err := w.subs.SetPlan(local.ID, plan.ID); err != nil {
				return err
			}
		}
	}

	start, end := subscriptionPeriod(remote)
	if err := w.subs.UpdatePeriod(local.ID, model.SubscriptionStatus(remote.Status), start, end, remote.CancelAtPeriodEnd); err != nil {
		return err
	}
	w.changed(local.UserID)
	return nil
}

func (w *Webhooks) subscriptionDeleted(remote *stripe.Subscription) error {
	local, err := w.subs.GetByStripeID(remote.ID)
	if err != nil {
		return err
	}
	if local == nil {
		w.logger.Info("no local subscription", "stripe_subscription_id", remote.ID)
		return nil
	}
	at := w.now()
	if remote.CanceledAt > 0 {
		at = time.Unix(remote.CanceledAt, 0)
	}
	if err := w.subs.Cancel(local.ID, at); err != nil {
		return err
	}
	w.logger.Info("subscription canceled", "user_id", local.UserID)
	w.changed(local.UserID)
	return nil
}

func (w *Webhooks) invoicePaid(ctx context.Context, inv *stripe.Invoice) error {
	subID := invoiceSubscriptionID(inv)
	if subID == "" {
		return nil
	}
	local, err := w.subs.GetByStripeID(subID)
	if err != nil {
		return err
	}
	if local == nil {
		w.logger.Info("invoice paid for unknown subscription", "stripe_subscription_id", subID)
		return nil
	}
	remote, err := w.gateway.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	start, end := subscriptionPeriod(remote)
	if err := w.subs.UpdatePeriod(local.ID, model.SubscriptionStatus(remote.Status), start, end, remote.CancelAtPeriodEnd); err != nil {
		return err
	}
	w.logger.Info("subscription renewed", "user_id", local.UserID)
	w.changed(local.UserID)
	return nil
}

func (w *Webhooks) invoicePaymentFailed(inv *stripe.Invoice) error {
	subID := invoiceSubscriptionID(inv)
	if subID == "" {
		return nil
	}
	local, err := w.subs.GetByStripeID(subID)
	if err != nil {
		return err
	}
	if local == nil {
		w.logger.Info("payment failed for unknown subscription", "stripe_subscription_id", subID)
		return nil
	}
	if err := w.subs.UpdateStatus(local.ID, model.StatusPastDue); err != nil {
		return err
	}
	w.logger.Warn("subscription past due", "user_id", local.UserID)
	w.changed(local.UserID)
	return nil
}

func (w *Webhooks) changed(userID string) {
	if w.notify != nil {
		w.notify.EntitlementsChanged(userID)
	}
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent == nil || inv.Parent.SubscriptionDetails == nil || inv.Parent.SubscriptionDetails.Subscription == nil {
		return ""
	}
	return inv.Parent.SubscriptionDetails.Subscription.ID
}

// subscriptionPeriod reads the billing period from the first item, where
// current Stripe API versions report it.
func subscriptionPeriod(sub *stripe.Subscription) (start, end *time.Time) {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, nil
	}
	item := sub.Items.Data[0]
	if item.CurrentPeriodStart > 0 {
		t := time.Unix(item.CurrentPeriodStart, 0).UTC()
		start = &t
	}
	if item.CurrentPeriodEnd > 0 {
		t := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		end = &t
	}
	return start, end
}
