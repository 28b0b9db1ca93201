package model

import "time"

type SubscriptionStatus string

const (
	StatusActive   SubscriptionStatus = "active"
	StatusTrialing SubscriptionStatus = "trialing"
	StatusPastDue  SubscriptionStatus = "past_due"
	StatusCanceled SubscriptionStatus = "canceled"
)

// Effective reports whether a subscription in this status grants its plan.
func (s SubscriptionStatus) Effective() bool {
	return s == StatusActive || s == StatusTrialing
}

type Subscription struct {
	ID                   int64              `json:"id"`
	UserID               string             `json:"user_id"`
	PlanID               PlanID             `json:"plan_id"`
	Status               SubscriptionStatus `json:"status"`
	StripeSubscriptionID *string            `json:"stripe_subscription_id"`
	StripeCustomerID     *string            `json:"stripe_customer_id"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	CanceledAt           *time.Time         `json:"canceled_at"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}
