package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/writinggym/internal/model"
)

// usageTimeLayout is fixed width so that stored timestamps compare correctly
// as text. All values are UTC.
const usageTimeLayout = "2006-01-02 15:04:05.000000000+00:00"

func usageTime(t time.Time) string {
	return t.UTC().Format(usageTimeLayout)
}

// UsageStore is the append-only log of quota-consuming analysis requests.
type UsageStore struct {
	db *sql.DB
}

func NewUsageStore(db *sql.DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Record(ev model.UsageEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO analysis_requests (id, user_id, passage_id, constraint_key, requested_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.ContentID, ev.ConstraintKey, usageTime(ev.RequestedAt),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CountSince counts the user's events at or after since.
func (s *UsageStore) CountSince(userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM analysis_requests WHERE user_id = ? AND requested_at >= ?`,
		userID, usageTime(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return n, nil
}

// RecordIfUnder inserts ev only when the user has fewer than limit events
// since the given time. The count and insert share one write transaction.
// It returns the count seen before the insert.
func (s *UsageStore) RecordIfUnder(ev model.UsageEvent, since time.Time, limit int) (int, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRow(
		`SELECT COUNT(*) FROM analysis_requests WHERE user_id = ? AND requested_at >= ?`,
		ev.UserID, usageTime(since),
	).Scan(&n)
	if err != nil {
		return 0, false, fmt.Errorf("count usage: %w", err)
	}
	if n >= limit {
		return n, false, nil
	}

	_, err = tx.Exec(
		`INSERT INTO analysis_requests (id, user_id, passage_id, constraint_key, requested_at) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.ContentID, ev.ConstraintKey, usageTime(ev.RequestedAt),
	)
	if err != nil {
		return n, false, fmt.Errorf("record usage: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return n, false, fmt.Errorf("commit usage: %w", err)
	}
	return n, true, nil
}
