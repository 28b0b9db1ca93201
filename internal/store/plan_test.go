package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/dukerupert/writinggym/internal/database"
	"github.com/dukerupert/writinggym/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// setupFileDB opens a database file so that concurrent callers get separate
// connections and contend for the write lock.
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "gym.db"))
	if err != nil {
		t.Fatalf("open file db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPlanList(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	plans, err := ps.List()
	if err != nil {
		t.Fatalf("list plans: %v", err)
	}
	if len(plans) != 3 {
		t.Fatalf("got %d plans, want 3", len(plans))
	}
	if plans[0].ID != model.PlanFree {
		t.Errorf("first plan = %q, want %q", plans[0].ID, model.PlanFree)
	}
	if plans[2].ID != model.PlanPremium {
		t.Errorf("last plan = %q, want %q", plans[2].ID, model.PlanPremium)
	}
	if !plans[2].Unlimited() {
		t.Error("premium should be unlimited")
	}
}

func TestPlanGetByID(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	p, err := ps.GetByID(model.PlanCore)
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if p == nil {
		t.Fatal("expected plan, got nil")
	}
	if p.WeeklyAnalysisLimit == nil || *p.WeeklyAnalysisLimit != 30 {
		t.Errorf("limit = %v, want 30", p.WeeklyAnalysisLimit)
	}
	if p.ExtractAccess != model.AccessCore {
		t.Errorf("access = %q, want %q", p.ExtractAccess, model.AccessCore)
	}
	if p.StripeLookupKey == nil || *p.StripeLookupKey != "core_monthly" {
		t.Errorf("lookup key = %v, want core_monthly", p.StripeLookupKey)
	}
}

func TestPlanGetByIDNotFound(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	p, err := ps.GetByID("gold")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil, got %+v", p)
	}
}

func TestPlanGetByLookupKey(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	p, err := ps.GetByLookupKey("premium_monthly")
	if err != nil {
		t.Fatalf("get by lookup key: %v", err)
	}
	if p == nil || p.ID != model.PlanPremium {
		t.Errorf("plan = %+v, want premium", p)
	}
}

func TestPlanResolveProduct(t *testing.T) {
	ps := NewPlanStore(setupTestDB(t))

	tests := []struct {
		product string
		want    model.PlanID
	}{
		{"Premium", model.PlanPremium},
		{"PREMIUM", model.PlanPremium},
		{"core", model.PlanCore},
		{"free", model.PlanFree},
	}
	for _, tt := range tests {
		p, err := ps.ResolveProduct(tt.product)
		if err != nil {
			t.Fatalf("resolve %q: %v", tt.product, err)
		}
		if p == nil || p.ID != tt.want {
			t.Errorf("ResolveProduct(%q) = %+v, want %q", tt.product, p, tt.want)
		}
	}

	p, err := ps.ResolveProduct("writing-course")
	if err != nil {
		t.Fatalf("resolve unknown: %v", err)
	}
	if p != nil {
		t.Errorf("expected nil for unknown product, got %+v", p)
	}
}
