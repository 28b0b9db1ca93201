package model

import (
	"encoding/json"
	"time"
)

type Completion struct {
	ID            int64           `json:"id"`
	UserID        string          `json:"user_id"`
	PassageID     string          `json:"passage_id"`
	ConstraintKey string          `json:"constraint_key"`
	UserText      *string         `json:"user_text"`
	WordCount     *int            `json:"word_count"`
	Feedback      json.RawMessage `json:"feedback"`
	CompletedAt   time.Time       `json:"completed_at"`
}

type Profile struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	CurrentStreak     int       `json:"current_streak"`
	LongestStreak     int       `json:"longest_streak"`
	TotalSessions     int       `json:"total_sessions"`
	TotalPassagesDone int       `json:"total_passages_done"`
	LastActiveDate    *string   `json:"last_active_date"`
	ShowStreakBadge   bool      `json:"show_streak_badge"`
	StreakReminders   bool      `json:"streak_reminders"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type DailyStat struct {
	UserID            string `json:"user_id"`
	StatDate          string `json:"stat_date"`
	Sessions          int    `json:"sessions"`
	PassagesPracticed int    `json:"passages_practiced"`
	WordsWritten      int    `json:"words_written"`
}
