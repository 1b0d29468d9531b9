// Package models defines the data structures shared by the generators, the session controller and the API.
package models

import "time"

// SearchResult is one synthesized result card.
type SearchResult struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
}
