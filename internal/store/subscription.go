package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/writinggym/internal/model"
)

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var stripeSubID, stripeCustID sql.NullString
	var periodStart, periodEnd, canceledAt sql.NullTime
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &stripeSubID, &stripeCustID,
		&periodStart, &periodEnd, &sub.CancelAtPeriodEnd, &canceledAt, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if stripeSubID.Valid {
		sub.StripeSubscriptionID = &stripeSubID.String
	}
	if stripeCustID.Valid {
		sub.StripeCustomerID = &stripeCustID.String
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	if canceledAt.Valid {
		sub.CanceledAt = &canceledAt.Time
	}
	return &sub, nil
}

const subscriptionCols = `id, user_id, plan_id, status, stripe_subscription_id, stripe_customer_id,
	current_period_start, current_period_end, cancel_at_period_end, canceled_at, created_at, updated_at`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Upsert writes the user's subscription. A user has at most one row; a new
// checkout replaces the previous one.
func (s *SubscriptionStore) Upsert(sub model.Subscription) (*model.Subscription, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO subscriptions (user_id, plan_id, status, stripe_subscription_id, stripe_customer_id,
			current_period_start, current_period_end, cancel_at_period_end, canceled_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			stripe_subscription_id = excluded.stripe_subscription_id,
			stripe_customer_id = COALESCE(excluded.stripe_customer_id, subscriptions.stripe_customer_id),
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			canceled_at = excluded.canceled_at,
			updated_at = excluded.updated_at`,
		sub.UserID, sub.PlanID, sub.Status, sub.StripeSubscriptionID, sub.StripeCustomerID,
		nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd,
		nullTime(sub.CanceledAt), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return s.GetByUser(sub.UserID)
}

// GetByUser returns the user's subscription row in any status.
func (s *SubscriptionStore) GetByUser(userID string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ?`, userID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// GetEffective returns the most recently updated active or trialing
// subscription for the user, or nil.
func (s *SubscriptionStore) GetEffective(userID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions
		 WHERE user_id = ? AND status IN (?, ?)
		 ORDER BY updated_at DESC, id DESC LIMIT 1`,
		userID, model.StatusActive, model.StatusTrialing,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get effective subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByStripeID(stripeSubscriptionID string) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE stripe_subscription_id = ?`, stripeSubscriptionID)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by stripe id: %w", err)
	}
	return sub, nil
}

// UpdatePeriod records a renewal or a change reported by the payment provider.
func (s *SubscriptionStore) UpdatePeriod(id int64, status model.SubscriptionStatus, start, end *time.Time, cancelAtPeriodEnd bool) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, current_period_start = ?, current_period_end = ?,
			cancel_at_period_end = ?, updated_at = ? WHERE id = ?`,
		status, nullTime(start), nullTime(end), cancelAtPeriodEnd, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update subscription period: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) UpdateStatus(id int64, status model.SubscriptionStatus) error {
	_, err := s.db.Exec(`UPDATE subscriptions SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) SetPlan(id int64, planID model.PlanID) error {
	_, err := s.db.Exec(`UPDATE subscriptions SET plan_id = ?, updated_at = ? WHERE id = ?`, planID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set subscription plan: %w", err)
	}
	return nil
}

// Cancel marks the subscription canceled as of at.
func (s *SubscriptionStore) Cancel(id int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, cancel_at_period_end = 0, canceled_at = ?, updated_at = ? WHERE id = ?`,
		model.StatusCanceled, at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}
