package model

import "time"

// UsageEvent is one quota-consuming action. Rows are append-only.
type UsageEvent struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ContentID     string    `json:"content_id"`
	ConstraintKey string    `json:"constraint_key"`
	RequestedAt   time.Time `json:"requested_at"`
}

// PassageAnalysis caches the AI analysis for a passage under one constraint.
type PassageAnalysis struct {
	ID            int64     `json:"id"`
	PassageID     string    `json:"passage_id"`
	ConstraintKey string    `json:"constraint_key"`
	Analysis      []byte    `json:"analysis"`
	CreatedAt     time.Time `json:"created_at"`
}
