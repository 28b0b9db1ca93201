package model

// PlanID identifies a subscription tier.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanCore    PlanID = "core"
	PlanPremium PlanID = "premium"
)

// ExtractAccess controls which part of the extract library a plan may open.
// Levels are ordered: restricted < core < full.
type ExtractAccess string

const (
	AccessRestricted ExtractAccess = "restricted"
	AccessCore       ExtractAccess = "core"
	AccessFull       ExtractAccess = "full"
)

// Rank returns the position of the level in the access order. Unknown levels
// rank below restricted so they never grant anything.
func (a ExtractAccess) Rank() int {
	switch a {
	case AccessRestricted:
		return 1
	case AccessCore:
		return 2
	case AccessFull:
		return 3
	default:
		return 0
	}
}

// Allows reports whether a holder of level a may open content that requires level.
func (a ExtractAccess) Allows(required ExtractAccess) bool {
	return a.Rank() > 0 && a.Rank() >= required.Rank()
}

type Plan struct {
	ID                  PlanID        `json:"id"`
	Label               string        `json:"label"`
	PriceMonthlyCents   int           `json:"price_monthly_cents"`
	WeeklyAnalysisLimit *int          `json:"weekly_analysis_limit"`
	ExtractAccess       ExtractAccess `json:"extract_access"`
	HasPlayground       bool          `json:"has_playground"`
	HasCustomVoice      bool          `json:"has_custom_voice"`
	StripeLookupKey     *string       `json:"stripe_lookup_key,omitempty"`
}

// Unlimited reports whether the plan has no weekly analysis cap.
func (p Plan) Unlimited() bool {
	return p.WeeklyAnalysisLimit == nil
}
