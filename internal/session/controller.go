// Package session implements the search-and-chat session state machine and the registry of live sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/findify/internal/config"
	"github.com/hyperjump/findify/internal/models"
	"go.uber.org/zap"
)

// SearchPrefix is prepended to the query in the user message recorded by Search.
const SearchPrefix = "Searching for: "

var (
	ErrEmptyQuery   = errors.New("query cannot be empty")
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrSuperseded is returned when a newer search or chat message replaced the
	// request before its results landed. The stale results are discarded.
	ErrSuperseded    = errors.New("request superseded by a newer one")
	ErrSessionClosed = errors.New("session closed")
)

// ResultGenerator produces pages of results.
type ResultGenerator interface {
	Generate(query string, page, pageSize int) ([]models.SearchResult, error)
}

// ChatResponder produces chat messages.
type ChatResponder interface {
	Respond(message string) models.ChatMessage
	UserMessage(text string) models.ChatMessage
}

// Controller owns the state of one session and sequences the three user actions.
// Operations block until their effect is applied or abandoned. State is only
// mutated at transition boundaries; the simulated latency runs without the lock held.
type Controller struct {
	id        string
	cfg       *config.SessionConfig
	latency   time.Duration
	generator ResultGenerator
	responder ChatResponder
	delay     DelayFunc
	logger    *zap.Logger
	metrics   *Metrics
	events    *eventBus
	createdAt time.Time

	mu       sync.Mutex
	query    string
	results  []models.SearchResult
	messages []models.ChatMessage
	loading  bool
	page     int
	hasMore  bool
	gen      uint64
	closed   bool
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithDelay replaces the simulated latency wait. Tests use it to control timing.
func WithDelay(d DelayFunc) ControllerOption {
	return func(c *Controller) { c.delay = d }
}

// WithLogger sets a logger for transition debug output.
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics records operation outcomes.
func WithMetrics(m *Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// NewController creates an idle session with no query.
func NewController(id string, cfg *config.SessionConfig, generator ResultGenerator, responder ChatResponder, opts ...ControllerOption) *Controller {
	c := &Controller{
		id:        id,
		cfg:       cfg,
		latency:   cfg.LatencyOrDefault(),
		generator: generator,
		responder: responder,
		delay:     Sleep,
		logger:    zap.NewNop(),
		events:    newEventBus(),
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Completion finishes an operation whose loading transition was already applied.
// It waits out the simulated latency and lands the results unless superseded.
type Completion func(ctx context.Context) error

// Search starts a new query: the result list is reset and replaced by page 1,
// and the chat log gains the user's query and a system reply.
func (c *Controller) Search(ctx context.Context, query string) error {
	complete, err := c.StartSearch(query)
	if err != nil {
		return err
	}
	return complete(ctx)
}

// StartSearch applies the loading transition of Search and returns its completion.
func (c *Controller) StartSearch(query string) (Completion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		c.metrics.observe(opSearch, outcomeRejected, time.Time{})
		return nil, ErrEmptyQuery
	}
	return c.startReset(opSearch, query, SearchPrefix+query, func(string) string { return query }, query)
}

// SendChatMessage records text as a user message and replaces the results with page 1
// of the current query extended by text. The current query itself is left unchanged.
func (c *Controller) SendChatMessage(ctx context.Context, text string) error {
	complete, err := c.StartChatMessage(text)
	if err != nil {
		return err
	}
	return complete(ctx)
}

// StartChatMessage applies the loading transition of SendChatMessage and returns its completion.
func (c *Controller) StartChatMessage(text string) (Completion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		c.metrics.observe(opChat, outcomeRejected, time.Time{})
		return nil, ErrEmptyMessage
	}
	feedQuery := func(current string) string {
		return strings.TrimSpace(current + " " + text)
	}
	return c.startReset(opChat, "", text, feedQuery, text)
}

// startReset implements the shared shape of Search and SendChatMessage. newQuery, when
// non-empty, becomes the current query; feedQuery derives the generator query from
// the current query; replyTo is the text the system reply refers to.
func (c *Controller) startReset(op, newQuery, userText string, feedQuery func(string) string, replyTo string) (Completion, error) {
	start := time.Now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}
	c.gen++
	gen := c.gen
	if newQuery != "" {
		c.query = newQuery
	}
	fq := feedQuery(c.query)
	c.loading = true
	c.page = 1
	c.hasMore = c.cfg.MaxPages > 1 && c.query != ""
	c.results = nil
	c.messages = append(c.messages, c.responder.UserMessage(userText))
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Debug("session operation started",
		zap.String("session_id", c.id),
		zap.String("operation", op),
		zap.String("feed_query", fq),
		zap.Uint64("generation", gen),
	)

	return func(ctx context.Context) error {
		if err := c.delay(ctx, c.latency); err != nil {
			c.abandon(gen, true)
			c.metrics.observe(op, outcomeCancelled, start)
			return err
		}
		results, err := c.generator.Generate(fq, 1, c.cfg.PageSize)
		if err != nil {
			c.abandon(gen, true)
			c.metrics.observe(op, outcomeFailed, start)
			return fmt.Errorf("generate results: %w", err)
		}
		reply := c.responder.Respond(replyTo)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			c.metrics.observe(op, outcomeCancelled, start)
			return ErrSessionClosed
		}
		if gen != c.gen {
			c.metrics.observe(op, outcomeSuperseded, start)
			c.logger.Debug("discarding superseded results",
				zap.String("session_id", c.id),
				zap.String("operation", op),
				zap.Uint64("generation", gen),
				zap.Uint64("current_generation", c.gen),
			)
			return ErrSuperseded
		}
		c.results = results
		c.messages = append(c.messages, reply)
		c.loading = false
		c.publishLocked()
		c.metrics.observe(op, outcomeApplied, start)
		return nil
	}, nil
}

// LoadMore appends the next page of the current query. It reports false without
// error when there is nothing to do: a request is in flight, the page ceiling was
// reached, or there is no current query yet.
func (c *Controller) LoadMore(ctx context.Context) (bool, error) {
	complete, ok, err := c.StartLoadMore()
	if err != nil || !ok {
		return false, err
	}
	if err := complete(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// StartLoadMore applies the loading transition of LoadMore. ok is false when
// LoadMore would be a no-op; the completion is nil in that case.
func (c *Controller) StartLoadMore() (complete Completion, ok bool, err error) {
	start := time.Now()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false, ErrSessionClosed
	}
	if c.loading || !c.hasMore || c.query == "" {
		c.mu.Unlock()
		c.metrics.observe(opLoadMore, outcomeIgnored, time.Time{})
		return nil, false, nil
	}
	gen := c.gen
	next := c.page + 1
	query := c.query
	c.loading = true
	c.publishLocked()
	c.mu.Unlock()

	return func(ctx context.Context) error {
		if err := c.delay(ctx, c.latency); err != nil {
			c.abandon(gen, false)
			c.metrics.observe(opLoadMore, outcomeCancelled, start)
			return err
		}
		results, err := c.generator.Generate(query, next, c.cfg.PageSize)
		if err != nil {
			c.abandon(gen, false)
			c.metrics.observe(opLoadMore, outcomeFailed, start)
			return fmt.Errorf("generate page %d: %w", next, err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			c.metrics.observe(opLoadMore, outcomeCancelled, start)
			return ErrSessionClosed
		}
		if gen != c.gen {
			c.metrics.observe(opLoadMore, outcomeSuperseded, start)
			return ErrSuperseded
		}
		c.results = append(c.results, results...)
		c.page = next
		c.hasMore = next < c.cfg.MaxPages
		c.loading = false
		c.publishLocked()
		c.metrics.observe(opLoadMore, outcomeApplied, start)
		return nil
	}, true, nil
}

// abandon ends the loading state of request gen if no newer request replaced it.
// An abandoned reset leaves no page loaded, so the cursor returns to 0 and
// LoadMore stays a no-op until a new reset lands.
func (c *Controller) abandon(gen uint64, reset bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.closed {
		return
	}
	c.loading = false
	if reset {
		c.page = 0
		c.hasMore = false
	}
	c.publishLocked()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() models.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() models.SessionState {
	results := make([]models.SearchResult, len(c.results))
	copy(results, c.results)
	messages := make([]models.ChatMessage, len(c.messages))
	copy(messages, c.messages)
	return models.SessionState{
		SessionID: c.id,
		Query:     c.query,
		Results:   results,
		Messages:  messages,
		Loading:   c.loading,
		Page:      c.page,
		HasMore:   c.hasMore,
		PageSize:  c.cfg.PageSize,
		MaxPages:  c.cfg.MaxPages,
	}
}

func (c *Controller) publishLocked() {
	c.events.publish(EventState, c.snapshotLocked())
}

// Subscribe returns a channel receiving a state event at every transition boundary,
// starting with the current state. The channel is closed by Unsubscribe or Close.
func (c *Controller) Subscribe() (uint64, <-chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.subscribe(c.snapshotLocked())
}

// Unsubscribe stops delivery to the subscription id.
func (c *Controller) Unsubscribe(id uint64) {
	c.events.unsubscribe(id)
}

// Transcript returns the archive record of this session, stamped with closedAt.
func (c *Controller) Transcript(closedAt time.Time) *models.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]models.ChatMessage, len(c.messages))
	copy(messages, c.messages)
	return &models.Transcript{
		SessionID:   c.id,
		Query:       c.query,
		Messages:    messages,
		ResultCount: len(c.results),
		Pages:       c.page,
		CreatedAt:   c.createdAt,
		ClosedAt:    closedAt,
	}
}

// Close marks the session closed and ends all subscriptions. Requests in flight
// are discarded when they complete. Close reports whether this call closed it.
func (c *Controller) Close() bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.closed = true
	c.gen++
	c.loading = false
	c.mu.Unlock()
	c.events.close()
	return true
}
