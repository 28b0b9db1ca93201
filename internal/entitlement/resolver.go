package entitlement

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/writinggym/internal/model"
)

// ErrQuotaExceeded is returned by Record in strict mode when the weekly limit
// was reached between the caller's check and the write.
var ErrQuotaExceeded = errors.New("weekly analysis quota exceeded")

// PlanSource lists the plan catalog.
type PlanSource interface {
	List() ([]model.Plan, error)
}

// SubscriptionSource returns a user's effective subscription, or nil.
type SubscriptionSource interface {
	GetEffective(userID string) (*model.Subscription, error)
}

// UsageLog counts and appends usage events.
type UsageLog interface {
	CountSince(userID string, since time.Time) (int, error)
	Record(ev model.UsageEvent) error
	// RecordIfUnder appends ev only if fewer than limit events exist since
	// the given time, as one atomic step. It returns the count before insert.
	RecordIfUnder(ev model.UsageEvent, since time.Time, limit int) (int, bool, error)
}

// Resolver binds the pure Resolve function to the store capabilities.
type Resolver struct {
	plans  PlanSource
	subs   SubscriptionSource
	usage  UsageLog
	now    func() time.Time
	loc    *time.Location
	strict bool
}

type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// WithLocation sets the location whose calendar weeks bound the quota.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// WithStrictRecording makes Record refuse to append past the weekly limit.
func WithStrictRecording(strict bool) Option {
	return func(r *Resolver) {
		r.strict = strict
	}
}

func NewResolver(plans PlanSource, subs SubscriptionSource, usage UsageLog, opts ...Option) *Resolver {
	r := &Resolver{
		plans: plans,
		subs:  subs,
		usage: usage,
		now:   time.Now,
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WeekStart returns the start of the current quota window.
func (r *Resolver) WeekStart() time.Time {
	return WeekStart(r.now().In(r.loc))
}

// Catalog loads the plan catalog.
func (r *Resolver) Catalog() (*Catalog, error) {
	plans, err := r.plans.List()
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return NewCatalog(plans), nil
}

// Resolve returns the user's current entitlements. It never writes. Errors
// only come from the underlying stores; callers decide how to degrade.
func (r *Resolver) Resolve(userID string) (Snapshot, error) {
	catalog, err := r.Catalog()
	if err != nil {
		return Snapshot{}, err
	}
	sub, err := r.subs.GetEffective(userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get subscription: %w", err)
	}
	used, err := r.usage.CountSince(userID, r.WeekStart())
	if err != nil {
		return Snapshot{}, fmt.Errorf("count usage: %w", err)
	}
	return Resolve(sub, catalog, used), nil
}

// Record appends a usage event for an action that has already succeeded.
// In strict mode the append is conditional on the plan's limit and fails
// with ErrQuotaExceeded when a concurrent request took the last slot.
func (r *Resolver) Record(userID, contentID, constraintKey string) error {
	ev := model.UsageEvent{
		ID:            uuid.NewString(),
		UserID:        userID,
		ContentID:     contentID,
		ConstraintKey: constraintKey,
		RequestedAt:   r.now().UTC(),
	}

	if !r.strict {
		if err := r.usage.Record(ev); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
		return nil
	}

	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	sub, err := r.subs.GetEffective(userID)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	plan := catalog.EffectivePlan(sub)
	if plan.Unlimited() {
		if err := r.usage.Record(ev); err != nil {
			return fmt.Errorf("record usage: %w", err)
		}
		return nil
	}

	_, ok, err := r.usage.RecordIfUnder(ev, r.WeekStart(), *plan.WeeklyAnalysisLimit)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}
