package models

import "time"

// Transcript is the archived record of a closed session.
type Transcript struct {
	SessionID   string        `json:"session_id"`
	Query       string        `json:"query"`
	Messages    []ChatMessage `json:"messages"`
	ResultCount int           `json:"result_count"`
	Pages       int           `json:"pages"`
	CreatedAt   time.Time     `json:"created_at"`
	ClosedAt    time.Time     `json:"closed_at"`
}
