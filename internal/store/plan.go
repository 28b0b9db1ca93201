package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/writinggym/internal/model"
)

type PlanStore struct {
	db *sql.DB
}

func NewPlanStore(db *sql.DB) *PlanStore {
	return &PlanStore{db: db}
}

func scanPlan(scanner interface{ Scan(...any) error }) (*model.Plan, error) {
	var p model.Plan
	var limit sql.NullInt64
	var lookupKey sql.NullString
	err := scanner.Scan(&p.ID, &p.Label, &p.PriceMonthlyCents, &limit, &p.ExtractAccess,
		&p.HasPlayground, &p.HasCustomVoice, &lookupKey)
	if err != nil {
		return nil, err
	}
	if limit.Valid {
		n := int(limit.Int64)
		p.WeeklyAnalysisLimit = &n
	}
	if lookupKey.Valid {
		p.StripeLookupKey = &lookupKey.String
	}
	return &p, nil
}

const planCols = `id, label, price_monthly_cents, weekly_analysis_limit, extract_access, has_playground, has_custom_voice, stripe_lookup_key`

// List returns every plan, cheapest first.
func (s *PlanStore) List() ([]model.Plan, error) {
	rows, err := s.db.Query(`SELECT ` + planCols + ` FROM plans ORDER BY price_monthly_cents ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

func (s *PlanStore) GetByID(id model.PlanID) (*model.Plan, error) {
	row := s.db.QueryRow(`SELECT `+planCols+` FROM plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (s *PlanStore) GetByLookupKey(key string) (*model.Plan, error) {
	row := s.db.QueryRow(`SELECT `+planCols+` FROM plans WHERE stripe_lookup_key = ?`, key)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan by lookup key: %w", err)
	}
	return p, nil
}

// ResolveProduct maps a checkout product name to a plan, matching the label
// case-insensitively first and the id second.
func (s *PlanStore) ResolveProduct(product string) (*model.Plan, error) {
	row := s.db.QueryRow(`SELECT `+planCols+` FROM plans WHERE label = ? COLLATE NOCASE LIMIT 1`, product)
	p, err := scanPlan(row)
	if err == nil {
		return p, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("resolve product by label: %w", err)
	}
	return s.GetByID(model.PlanID(product))
}
