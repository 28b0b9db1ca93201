package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/writinggym/internal/model"
)

// AnalysisStore caches extract analyses by passage and constraint.
type AnalysisStore struct {
	db *sql.DB
}

func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

func (s *AnalysisStore) Get(passageID, constraintKey string) (*model.PassageAnalysis, error) {
	var a model.PassageAnalysis
	var analysis string
	err := s.db.QueryRow(
		`SELECT id, passage_id, constraint_key, analysis, created_at
		 FROM passage_analyses WHERE passage_id = ? AND constraint_key = ?`,
		passageID, constraintKey,
	).Scan(&a.ID, &a.PassageID, &a.ConstraintKey, &analysis, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	a.Analysis = []byte(analysis)
	return &a, nil
}

// Save stores an analysis. The first analysis saved for a passage and
// constraint wins; later ones are ignored.
func (s *AnalysisStore) Save(passageID, constraintKey string, analysis []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO passage_analyses (passage_id, constraint_key, analysis) VALUES (?, ?, ?)
		 ON CONFLICT(passage_id, constraint_key) DO NOTHING`,
		passageID, constraintKey, string(analysis),
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}
