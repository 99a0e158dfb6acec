package models

import "time"

const (
	GradedByServer = "server"
	GradedLocally  = "local"

	SubmitManual  = "manual"
	SubmitTimeout = "timeout"
)

// Attempt records one submitted test session.
type Attempt struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	CreatedAt   time.Time `json:"-"`
	UserID      uint      `json:"user_id" gorm:"index;not null"`
	Email       string    `json:"email"`
	Path        string    `json:"path" gorm:"index;not null"`
	TestName    string    `json:"test_name"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	Status      string    `json:"status"`
	Source      string    `json:"source"`
	Reason      string    `json:"reason"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type LeaderboardEntry struct {
	Email string `json:"email"`
	Score int    `json:"score"`
}
