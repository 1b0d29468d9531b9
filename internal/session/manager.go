package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hyperjump/findify/internal/chat"
	"github.com/hyperjump/findify/internal/config"
	"github.com/hyperjump/findify/internal/content"
	"github.com/hyperjump/findify/internal/feed"
	"github.com/hyperjump/findify/internal/models"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or already closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Archiver stores the transcript of a closed session.
type Archiver interface {
	SaveTranscript(ctx context.Context, t *models.Transcript) error
}

// Manager holds live sessions, bounded by an LRU. The least recently used session
// is closed and archived when a new one would exceed the limit.
type Manager struct {
	cfg      *config.SessionConfig
	source   content.Source
	archive  Archiver
	logger   *zap.Logger
	metrics  *Metrics
	delay    DelayFunc
	newID    func() string
	sessions *lru.Cache[string, *Controller]
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithArchive archives transcripts of closed sessions.
func WithArchive(a Archiver) ManagerOption {
	return func(m *Manager) { m.archive = a }
}

// WithManagerLogger sets the logger passed to the manager and its controllers.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithManagerMetrics records session and operation metrics.
func WithManagerMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithControllerDelay sets the latency wait used by every new controller.
func WithControllerDelay(d DelayFunc) ManagerOption {
	return func(m *Manager) { m.delay = d }
}

// WithIDGenerator overrides the session id generator (uuid by default).
func WithIDGenerator(f func() string) ManagerOption {
	return func(m *Manager) { m.newID = f }
}

// NewManager creates a manager whose sessions draw content from source.
func NewManager(cfg *config.SessionConfig, source content.Source, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		source: source,
		logger: zap.NewNop(),
		delay:  Sleep,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	cache, err := lru.NewWithEvict[string, *Controller](cfg.MaxSessions, func(_ string, c *Controller) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.retire(ctx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	m.sessions = cache
	return m, nil
}

// Create starts a new idle session with its own generator, responder and id sequence.
func (m *Manager) Create() *Controller {
	ids := chat.NewIDSource(nil)
	c := NewController(
		m.newID(),
		m.cfg,
		feed.NewGenerator(m.source),
		chat.NewResponder(m.source, chat.WithIDSource(ids)),
		WithDelay(m.delay),
		WithLogger(m.logger),
		WithMetrics(m.metrics),
	)
	if evicted := m.sessions.Add(c.ID(), c); evicted {
		m.logger.Info("session limit reached, evicted least recently used session",
			zap.Int("max_sessions", m.cfg.MaxSessions))
	}
	m.metrics.setSessions(m.sessions.Len())
	m.logger.Debug("session created", zap.String("session_id", c.ID()))
	return c
}

// Get returns the live session id and marks it recently used.
func (m *Manager) Get(id string) (*Controller, bool) {
	return m.sessions.Get(id)
}

// Close closes and archives session id.
func (m *Manager) Close(ctx context.Context, id string) error {
	c, ok := m.sessions.Peek(id)
	if !ok {
		return ErrSessionNotFound
	}
	err := m.retire(ctx, c)
	m.sessions.Remove(id)
	m.metrics.setSessions(m.sessions.Len())
	return err
}

// CloseAll closes and archives every live session. Used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.sessions.Keys() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// retire closes c once and archives its transcript. Later calls are no-ops.
func (m *Manager) retire(ctx context.Context, c *Controller) error {
	if !c.Close() {
		return nil
	}
	m.logger.Debug("session closed", zap.String("session_id", c.ID()))
	if m.archive == nil {
		return nil
	}
	t := c.Transcript(time.Now())
	if len(t.Messages) == 0 {
		m.metrics.archiveResult("skipped")
		return nil
	}
	if err := m.archive.SaveTranscript(ctx, t); err != nil {
		m.metrics.archiveResult("failed")
		m.logger.Warn("archive transcript failed", zap.String("session_id", c.ID()), zap.Error(err))
		return fmt.Errorf("archive session %s: %w", c.ID(), err)
	}
	m.metrics.archiveResult("saved")
	return nil
}
