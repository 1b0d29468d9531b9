package models

// SessionState is a point-in-time copy of a session's state.
// Results and Messages are owned by the caller once returned.
type SessionState struct {
	SessionID string         `json:"session_id"`
	Query     string         `json:"query"`
	Results   []SearchResult `json:"results"`
	Messages  []ChatMessage  `json:"messages"`
	Loading   bool           `json:"loading"`
	Page      int            `json:"page"`
	HasMore   bool           `json:"has_more"`
	PageSize  int            `json:"page_size"`
	MaxPages  int            `json:"max_pages"`
}

// LastMessage returns the most recent chat message, or false when the transcript is empty.
func (s *SessionState) LastMessage() (ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}
