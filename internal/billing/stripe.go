// Package billing connects Stripe checkout and subscription events to the
// plans users are entitled to.
package billing

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

var (
	ErrNotConfigured        = errors.New("stripe not configured: missing secret key")
	ErrWebhookNotConfigured = errors.New("stripe webhook secret not configured")
)

// CheckoutParams describes one hosted checkout session.
type CheckoutParams struct {
	PriceID       string
	Quantity      int64
	Mode          stripe.CheckoutSessionMode
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	UserID        string
	CustomerEmail string
	TrialDays     int64
}

// CheckoutSession is the part of a created session the browser needs.
type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway is the subset of the Stripe API billing uses.
type Gateway interface {
	PriceIDForLookupKey(ctx context.Context, lookupKey string) (string, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

type Config struct {
	SecretKey     string
	WebhookSecret string
}

// StripeClient implements Gateway against the Stripe API.
type StripeClient struct {
	cfg Config
	api *client.API
}

func NewStripeClient(cfg Config, backends *stripe.Backends) *StripeClient {
	return &StripeClient{
		cfg: cfg,
		api: client.New(cfg.SecretKey, backends),
	}
}

func (c *StripeClient) Configured() bool {
	return c.cfg.SecretKey != ""
}

// PriceIDForLookupKey returns the id of the price with the lookup key, or
// "" when none exists.
func (c *StripeClient) PriceIDForLookupKey(ctx context.Context, lookupKey string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := c.api.Prices.List(params)
	for iter.Next() {
		return iter.Price().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("list prices: %w", err)
	}
	return "", nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(p.Mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(p.Quantity),
			},
		},
		SuccessURL:   stripe.String(p.SuccessURL),
		CancelURL:    stripe.String(p.CancelURL),
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	if p.UserID != "" {
		params.ClientReferenceID = stripe.String(p.UserID)
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	if p.Mode == stripe.CheckoutSessionModeSubscription && p.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(p.TrialDays),
			Metadata:        subscriptionMetadata(p.Metadata),
		}
	}

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// subscriptionMetadata copies the keys the webhook reads back off the subscription.
func subscriptionMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, 2)
	for _, k := range []string{"product", "user_id"} {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func (c *StripeClient) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return sub, nil
}

// ConstructEvent verifies the signature and returns the parsed event.
func (c *StripeClient) ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if c.cfg.WebhookSecret == "" {
		return stripe.Event{}, ErrWebhookNotConfigured
	}
	return webhook.ConstructEventWithOptions(payload, sigHeader, c.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
