// Package entitlement decides what a user's plan lets them do right now:
// which plan is in force, how much of the weekly analysis quota is left, and
// which features are switched on.
package entitlement

import (
	"sort"

	"github.com/dukerupert/writinggym/internal/model"
)

// Snapshot is the resolved, point-in-time view of a user's entitlements.
// It is recomputed on every request and never persisted.
type Snapshot struct {
	PlanID         model.PlanID        `json:"plan_id"`
	PlanLabel      string              `json:"plan_label"`
	WeeklyLimit    *int                `json:"weekly_analysis_limit"`
	UsedThisWeek   int                 `json:"analyses_used_this_week"`
	Allowed        bool                `json:"allowed"`
	ExtractAccess  model.ExtractAccess `json:"extract_access"`
	HasPlayground  bool                `json:"has_playground"`
	HasCustomVoice bool                `json:"has_custom_voice"`
}

// Unlimited reports whether the snapshot carries no weekly cap.
func (s Snapshot) Unlimited() bool {
	return s.WeeklyLimit == nil
}

// Remaining returns the analyses left this week, or nil when unlimited.
func (s Snapshot) Remaining() *int {
	if s.WeeklyLimit == nil {
		return nil
	}
	r := *s.WeeklyLimit - s.UsedThisWeek
	if r < 0 {
		r = 0
	}
	return &r
}

// builtinFree is used only when the catalog is empty. It mirrors the seeded
// free plan so a missing catalog still yields the most restrictive tier.
var builtinFree = model.Plan{
	ID:                  model.PlanFree,
	Label:               "Free",
	WeeklyAnalysisLimit: intPtr(5),
	ExtractAccess:       model.AccessRestricted,
}

// Catalog is an immutable lookup over the plan table.
type Catalog struct {
	byID map[model.PlanID]model.Plan
	def  model.Plan
}

// NewCatalog indexes plans by id. The default plan is the cheapest one; ties
// go to the free plan id, then to the lowest id.
func NewCatalog(plans []model.Plan) *Catalog {
	c := &Catalog{byID: make(map[model.PlanID]model.Plan, len(plans)), def: builtinFree}
	if len(plans) == 0 {
		return c
	}

	sorted := make([]model.Plan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PriceMonthlyCents != b.PriceMonthlyCents {
			return a.PriceMonthlyCents < b.PriceMonthlyCents
		}
		if (a.ID == model.PlanFree) != (b.ID == model.PlanFree) {
			return a.ID == model.PlanFree
		}
		return a.ID < b.ID
	})
	for _, p := range sorted {
		c.byID[p.ID] = p
	}
	c.def = sorted[0]
	return c
}

// Plan returns the plan with the given id.
func (c *Catalog) Plan(id model.PlanID) (model.Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Default returns the plan assigned to users without an effective subscription.
func (c *Catalog) Default() model.Plan {
	return c.def
}

// EffectivePlan picks the plan a subscription grants. Subscriptions that are
// not active or trialing, and subscriptions pointing at a plan that is no
// longer in the catalog, fall back to the default plan.
func (c *Catalog) EffectivePlan(sub *model.Subscription) model.Plan {
	if sub == nil || !sub.Status.Effective() {
		return c.def
	}
	if p, ok := c.byID[sub.PlanID]; ok {
		return p
	}
	return c.def
}

// Resolve computes the snapshot for a user with the given subscription (nil
// when none) and number of usage events counted since the start of the week.
// It performs no I/O and never fails.
func Resolve(sub *model.Subscription, catalog *Catalog, used int) Snapshot {
	if used < 0 {
		used = 0
	}
	plan := catalog.EffectivePlan(sub)

	allowed := true
	if plan.WeeklyAnalysisLimit != nil {
		allowed = used < *plan.WeeklyAnalysisLimit
	}

	return Snapshot{
		PlanID:         plan.ID,
		PlanLabel:      plan.Label,
		WeeklyLimit:    copyInt(plan.WeeklyAnalysisLimit),
		UsedThisWeek:   used,
		Allowed:        allowed,
		ExtractAccess:  plan.ExtractAccess,
		HasPlayground:  plan.HasPlayground,
		HasCustomVoice: plan.HasCustomVoice,
	}
}

func intPtr(v int) *int {
	return &v
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
