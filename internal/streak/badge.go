package streak

// Badge is a streak milestone.
type Badge struct {
	Days  int    `json:"days"`
	Emoji string `json:"emoji"`
	Label string `json:"label"`
}

// Badges are ordered by Days.
var Badges = []Badge{
	{1, "🌱", "Sprout"},
	{3, "🌿", "Herb"},
	{7, "🌳", "Oak"},
	{14, "🏔️", "Summit"},
	{30, "🏆", "Champion"},
	{60, "🔥", "On Fire"},
	{100, "💎", "Diamond"},
	{365, "👑", "Legend"},
}

// CurrentBadge returns the highest badge earned by a streak of n days.
func CurrentBadge(n int) *Badge {
	var earned *Badge
	for i := range Badges {
		if n >= Badges[i].Days {
			earned = &Badges[i]
		}
	}
	return earned
}

// NextBadge returns the next badge to unlock, or nil when all are earned.
func NextBadge(n int) *Badge {
	for i := range Badges {
		if n < Badges[i].Days {
			return &Badges[i]
		}
	}
	return nil
}

// DaysUntilNextBadge returns how many more days unlock the next badge.
func DaysUntilNextBadge(n int) (int, bool) {
	next := NextBadge(n)
	if next == nil {
		return 0, false
	}
	return next.Days - n, true
}
