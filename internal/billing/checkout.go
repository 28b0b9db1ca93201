package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/writinggym/internal/auth"
	"github.com/dukerupert/writinggym/internal/model"
)

var (
	ErrPriceRequired  = errors.New("lookup key or price id is required")
	ErrPriceNotFound  = errors.New("price not found")
	ErrInvalidPath    = errors.New("return path must be a site-relative path")
	ErrNoSubscription = errors.New("no active subscription with a billing customer")
)

// CheckoutRequest is what the pricing page posts.
type CheckoutRequest struct {
	LookupKey   string `json:"lookupKey"`
	PriceID     string `json:"priceId"`
	Quantity    int64  `json:"quantity" validate:"omitempty,min=1,max=10"`
	SuccessPath string `json:"successPath"`
	CancelPath  string `json:"cancelPath"`
	Product     string `json:"product" validate:"omitempty,max=64"`
	Mode        string `json:"mode" validate:"omitempty,oneof=payment subscription"`
	TrialDays   int64  `json:"trialDays" validate:"omitempty,min=1,max=90"`
}

type CheckoutResult struct {
	SessionCode string `json:"sessionCode"`
	URL         string `json:"url"`
}

// SubscriptionReader finds the subscription a portal session is opened for.
type SubscriptionReader interface {
	GetEffective(userID string) (*model.Subscription, error)
}

// Service creates checkout and billing portal sessions.
type Service struct {
	gateway Gateway
	subs    SubscriptionReader
	siteURL string
	now     func() time.Time
}

func NewService(gateway Gateway, subs SubscriptionReader, siteURL string) *Service {
	return &Service{
		gateway: gateway,
		subs:    subs,
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     time.Now,
	}
}

// Checkout opens a hosted checkout session. user may be nil for anonymous
// purchases; signed-in buyers are linked through client_reference_id.
func (s *Service) Checkout(ctx context.Context, user *auth.User, req CheckoutRequest) (*CheckoutResult, error) {
	if req.LookupKey == "" && req.PriceID == "" {
		return nil, ErrPriceRequired
	}

	successURL, err := s.returnURL(req.SuccessPath, "/pricing/success")
	if err != nil {
		return nil, err
	}
	successURL += "?session_id={CHECKOUT_SESSION_ID}"
	cancelURL, err := s.returnURL(req.CancelPath, "/pricing")
	if err != nil {
		return nil, err
	}
	if strings.Contains(cancelURL, "?") {
		cancelURL += "&canceled=true"
	} else {
		cancelURL += "?canceled=true"
	}

	priceID := req.PriceID
	if req.LookupKey != "" {
		priceID, err = s.gateway.PriceIDForLookupKey(ctx, req.LookupKey)
		if err != nil {
			return nil, err
		}
		if priceID == "" {
			return nil, fmt.Errorf("%w: no price with lookup key %q", ErrPriceNotFound, req.LookupKey)
		}
	}

	mode := stripe.CheckoutSessionModePayment
	if req.Mode == string(stripe.CheckoutSessionModeSubscription) {
		mode = stripe.CheckoutSessionModeSubscription
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}

	source := req.LookupKey
	if source == "" {
		source = "purchase"
	}
	product := req.Product
	if product == "" {
		product = req.LookupKey
	}
	if product == "" {
		product = "unknown"
	}
	metadata := map[string]string{
		"source":    source,
		"product":   product,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}

	params := CheckoutParams{
		PriceID:    priceID,
		Quantity:   quantity,
		Mode:       mode,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Metadata:   metadata,
		TrialDays:  req.TrialDays,
	}
	if user != nil {
		metadata["user_id"] = user.ID
		params.UserID = user.ID
		params.CustomerEmail = user.Email
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}
	return &CheckoutResult{SessionCode: sess.ID, URL: sess.URL}, nil
}

// Portal opens the Stripe billing portal for the user's active subscription.
func (s *Service) Portal(ctx context.Context, userID string) (string, error) {
	sub, err := s.subs.GetEffective(userID)
	if err != nil {
		return "", fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil || sub.StripeCustomerID == nil || *sub.StripeCustomerID == "" {
		return "", ErrNoSubscription
	}
	return s.gateway.CreatePortalSession(ctx, *sub.StripeCustomerID, s.siteURL+"/profile")
}

func (s *Service) returnURL(path, fallback string) (string, error) {
	if path == "" {
		return s.siteURL + fallback, nil
	}
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		return "", ErrInvalidPath
	}
	return s.siteURL + path, nil
}
