package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/writinggym/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func scanProfile(scanner interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var lastActive sql.NullString
	err := scanner.Scan(&p.ID, &p.Email, &p.CurrentStreak, &p.LongestStreak, &p.TotalSessions,
		&p.TotalPassagesDone, &lastActive, &p.ShowStreakBadge, &p.StreakReminders, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastActive.Valid {
		p.LastActiveDate = &lastActive.String
	}
	return &p, nil
}

const profileCols = `id, email, current_streak, longest_streak, total_sessions, total_passages_done,
	last_active_date, show_streak_badge, streak_reminders, created_at, updated_at`

// Ensure creates the profile if it does not exist and fills in the email
// once it is known.
func (s *ProfileStore) Ensure(userID, email string) (*model.Profile, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`INSERT INTO profiles (id, email, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email = excluded.email
		 WHERE excluded.email != '' AND excluded.email != profiles.email`,
		userID, email, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return s.Get(userID)
}

func (s *ProfileStore) Get(userID string) (*model.Profile, error) {
	row := s.db.QueryRow(`SELECT `+profileCols+` FROM profiles WHERE id = ?`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// Session is one finished writing session.
type Session struct {
	UserID        string
	Date          string // calendar day the session counts toward
	WordCount     int
	CurrentStreak int
	LongestStreak int
}

// RecordSession bumps the profile counters, stores the streaks and adds the
// session to the day's stats, all in one transaction.
func (s *ProfileStore) RecordSession(sess Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.Exec(
		`INSERT INTO profiles (id, created_at, updated_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		sess.UserID, now, now,
	)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE profiles SET
			total_sessions = total_sessions + 1,
			total_passages_done = total_passages_done + 1,
			current_streak = ?,
			longest_streak = MAX(longest_streak, ?),
			last_active_date = ?,
			updated_at = ?
		 WHERE id = ?`,
		sess.CurrentStreak, sess.LongestStreak, sess.Date, now, sess.UserID,
	)
	if err != nil {
		return fmt.Errorf("update profile counters: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO daily_stats (user_id, stat_date, sessions, passages_practiced, words_written)
		 VALUES (?, ?, 1, 1, ?)
		 ON CONFLICT(user_id, stat_date) DO UPDATE SET
			sessions = sessions + 1,
			passages_practiced = passages_practiced + 1,
			words_written = words_written + excluded.words_written`,
		sess.UserID, sess.Date, sess.WordCount,
	)
	if err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// SetStreak overwrites the stored streaks, for example after a completion is deleted.
func (s *ProfileStore) SetStreak(userID string, current, longest int) error {
	_, err := s.db.Exec(
		`UPDATE profiles SET current_streak = ?, longest_streak = ?, updated_at = ? WHERE id = ?`,
		current, longest, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set streak: %w", err)
	}
	return nil
}

func (s *ProfileStore) SetPreferences(userID string, showStreakBadge, streakReminders bool) error {
	_, err := s.db.Exec(
		`UPDATE profiles SET show_streak_badge = ?, streak_reminders = ?, updated_at = ? WHERE id = ?`,
		showStreakBadge, streakReminders, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("set profile preferences: %w", err)
	}
	return nil
}

// ListDailyStats returns the user's stats from the given day onward, oldest first.
func (s *ProfileStore) ListDailyStats(userID, fromDate string) ([]model.DailyStat, error) {
	rows, err := s.db.Query(
		`SELECT user_id, stat_date, sessions, passages_practiced, words_written
		 FROM daily_stats WHERE user_id = ? AND stat_date >= ? ORDER BY stat_date ASC`,
		userID, fromDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list daily stats: %w", err)
	}
	defer rows.Close()

	var stats []model.DailyStat
	for rows.Next() {
		var d model.DailyStat
		if err := rows.Scan(&d.UserID, &d.StatDate, &d.Sessions, &d.PassagesPracticed, &d.WordsWritten); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		stats = append(stats, d)
	}
	return stats, rows.Err()
}

// ListStreakAtRisk returns users who opted into reminders, were last active
// on the given day and have a streak to lose.
func (s *ProfileStore) ListStreakAtRisk(lastActiveDate string) ([]model.Profile, error) {
	rows, err := s.db.Query(
		`SELECT `+profileCols+` FROM profiles
		 WHERE streak_reminders = 1 AND last_active_date = ? AND current_streak > 0`,
		lastActiveDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list streaks at risk: %w", err)
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
