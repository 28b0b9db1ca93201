package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/writinggym/internal/model"
)

type CompletionStore struct {
	db *sql.DB
}

func NewCompletionStore(db *sql.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

func scanCompletion(scanner interface{ Scan(...any) error }) (*model.Completion, error) {
	var c model.Completion
	var userText, feedback sql.NullString
	var wordCount sql.NullInt64
	err := scanner.Scan(&c.ID, &c.UserID, &c.PassageID, &c.ConstraintKey, &userText, &wordCount, &feedback, &c.CompletedAt)
	if err != nil {
		return nil, err
	}
	if userText.Valid {
		c.UserText = &userText.String
	}
	if wordCount.Valid {
		n := int(wordCount.Int64)
		c.WordCount = &n
	}
	if feedback.Valid {
		c.Feedback = []byte(feedback.String)
	}
	return &c, nil
}

const completionCols = `id, user_id, passage_id, constraint_key, user_text, word_count, feedback, completed_at`

func (s *CompletionStore) Create(c model.Completion) (*model.Completion, error) {
	var feedback sql.NullString
	if len(c.Feedback) > 0 {
		feedback = sql.NullString{String: string(c.Feedback), Valid: true}
	}
	completedAt := c.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	result, err := s.db.Exec(
		`INSERT INTO passage_completions (user_id, passage_id, constraint_key, user_text, word_count, feedback, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.PassageID, c.ConstraintKey, c.UserText, c.WordCount, feedback, completedAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert completion: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CompletionStore) GetByID(id int64) (*model.Completion, error) {
	row := s.db.QueryRow(`SELECT `+completionCols+` FROM passage_completions WHERE id = ?`, id)
	c, err := scanCompletion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// ListForPassage returns the user's submissions for a passage under one
// constraint, newest first.
func (s *CompletionStore) ListForPassage(userID, passageID, constraintKey string) ([]model.Completion, error) {
	rows, err := s.db.Query(
		`SELECT `+completionCols+` FROM passage_completions
		 WHERE user_id = ? AND passage_id = ? AND constraint_key = ?
		 ORDER BY completed_at DESC, id DESC`,
		userID, passageID, constraintKey,
	)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	defer rows.Close()

	var out []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Summary counts the user's completions per passage.
func (s *CompletionStore) Summary(userID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT passage_id, COUNT(*) FROM passage_completions WHERE user_id = ? GROUP BY passage_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("completion summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var passageID string
		var n int
		if err := rows.Scan(&passageID, &n); err != nil {
			return nil, fmt.Errorf("scan completion summary: %w", err)
		}
		summary[passageID] = n
	}
	return summary, rows.Err()
}

// Delete removes a completion owned by userID. It reports whether a row was removed.
func (s *CompletionStore) Delete(id int64, userID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM passage_completions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete completion: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CompletedAt returns the completion times of all the user's submissions.
func (s *CompletionStore) CompletedAt(userID string) ([]time.Time, error) {
	rows, err := s.db.Query(`SELECT completed_at FROM passage_completions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list completion times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan completion time: %w", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}
