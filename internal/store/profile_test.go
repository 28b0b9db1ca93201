package store

import "testing"

func TestProfileEnsure(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	p, err := ps.Ensure("u1", "")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.ID != "u1" || p.Email != "" {
		t.Errorf("profile = %+v", p)
	}
	if !p.ShowStreakBadge || p.StreakReminders {
		t.Errorf("defaults: badge=%v reminders=%v", p.ShowStreakBadge, p.StreakReminders)
	}

	p, _ = ps.Ensure("u1", "writer@example.com")
	if p.Email != "writer@example.com" {
		t.Errorf("email = %q", p.Email)
	}
	// an unknown email does not erase the stored one
	p, _ = ps.Ensure("u1", "")
	if p.Email != "writer@example.com" {
		t.Errorf("email = %q after blank ensure", p.Email)
	}
}

func TestProfileGetNotFound(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	p, err := ps.Get("nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestProfileRecordSession(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	sessions := []Session{
		{UserID: "u1", Date: "2026-10-14", WordCount: 120, CurrentStreak: 1, LongestStreak: 1},
		{UserID: "u1", Date: "2026-10-15", WordCount: 80, CurrentStreak: 2, LongestStreak: 2},
		{UserID: "u1", Date: "2026-10-15", WordCount: 40, CurrentStreak: 2, LongestStreak: 2},
	}
	for _, s := range sessions {
		if err := ps.RecordSession(s); err != nil {
			t.Fatalf("record session: %v", err)
		}
	}

	p, _ := ps.Get("u1")
	if p.TotalSessions != 3 || p.TotalPassagesDone != 3 {
		t.Errorf("totals = %d/%d, want 3/3", p.TotalSessions, p.TotalPassagesDone)
	}
	if p.CurrentStreak != 2 || p.LongestStreak != 2 {
		t.Errorf("streaks = %d/%d, want 2/2", p.CurrentStreak, p.LongestStreak)
	}
	if p.LastActiveDate == nil || *p.LastActiveDate != "2026-10-15" {
		t.Errorf("last active = %v", p.LastActiveDate)
	}

	stats, err := ps.ListDailyStats("u1", "2026-10-01")
	if err != nil {
		t.Fatalf("list stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d days, want 2", len(stats))
	}
	if stats[1].StatDate != "2026-10-15" || stats[1].Sessions != 2 || stats[1].WordsWritten != 120 {
		t.Errorf("stats[1] = %+v", stats[1])
	}
}

func TestProfileLongestStreakNeverShrinks(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	ps.RecordSession(Session{UserID: "u1", Date: "2026-10-10", CurrentStreak: 5, LongestStreak: 5})
	ps.RecordSession(Session{UserID: "u1", Date: "2026-10-15", CurrentStreak: 1, LongestStreak: 1})

	p, _ := ps.Get("u1")
	if p.CurrentStreak != 1 || p.LongestStreak != 5 {
		t.Errorf("streaks = %d/%d, want 1/5", p.CurrentStreak, p.LongestStreak)
	}
}

func TestProfileListStreakAtRisk(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	ps.RecordSession(Session{UserID: "opted", Date: "2026-10-14", CurrentStreak: 3, LongestStreak: 3})
	ps.SetPreferences("opted", true, true)
	ps.RecordSession(Session{UserID: "quiet", Date: "2026-10-14", CurrentStreak: 3, LongestStreak: 3})
	ps.RecordSession(Session{UserID: "today", Date: "2026-10-15", CurrentStreak: 4, LongestStreak: 4})
	ps.SetPreferences("today", true, true)

	at, err := ps.ListStreakAtRisk("2026-10-14")
	if err != nil {
		t.Fatalf("list at risk: %v", err)
	}
	if len(at) != 1 || at[0].ID != "opted" {
		t.Errorf("at risk = %+v, want [opted]", at)
	}
}
