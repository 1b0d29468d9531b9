package chat

import (
	"fmt"
	"sync/atomic"
	"time"
)

// IDSource hands out chat message ids of the form chat-<unixMillis>-<seq>.
// The sequence number keeps ids unique when two messages share a millisecond.
type IDSource struct {
	now func() time.Time
	seq atomic.Uint64
}

// NewIDSource returns an id source using now for the time component (time.Now when nil).
func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{now: now}
}

// Next returns a new id.
func (s *IDSource) Next() string {
	n := s.seq.Add(1)
	return fmt.Sprintf("chat-%d-%d", s.now().UnixMilli(), n)
}
