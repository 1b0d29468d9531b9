// Package chat produces canned system replies for the chat panel.
package chat

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hyperjump/findify/internal/content"
	"github.com/hyperjump/findify/internal/models"
)

// Responder instantiates a randomly chosen reply template. It is safe for concurrent use.
type Responder struct {
	source content.Source
	ids    *IDSource
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithRand sets the random source used to pick templates.
func WithRand(r *rand.Rand) ResponderOption {
	return func(c *Responder) { c.rng = r }
}

// WithClock sets the time source for message timestamps.
func WithClock(now func() time.Time) ResponderOption {
	return func(c *Responder) { c.now = now }
}

// WithIDSource shares an id source, so user and system messages of one session draw from the same sequence.
func WithIDSource(ids *IDSource) ResponderOption {
	return func(c *Responder) { c.ids = ids }
}

// NewResponder creates a responder drawing templates from source.
func NewResponder(source content.Source, opts ...ResponderOption) *Responder {
	c := &Responder{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = NewIDSource(c.now)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// Respond returns a system message embedding message verbatim.
func (c *Responder) Respond(message string) models.ChatMessage {
	b := c.source.Current()
	c.mu.Lock()
	i := c.rng.IntN(len(b.Replies))
	c.mu.Unlock()
	return models.ChatMessage{
		ID:        c.ids.Next(),
		Content:   b.RenderReply(i, message),
		Role:      models.RoleSystem,
		Timestamp: c.now(),
	}
}

// UserMessage returns a user message with the given content, numbered from the same id source.
func (c *Responder) UserMessage(text string) models.ChatMessage {
	return models.ChatMessage{
		ID:        c.ids.Next(),
		Content:   text,
		Role:      models.RoleUser,
		Timestamp: c.now(),
	}
}
