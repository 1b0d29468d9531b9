package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/findify/internal/config"
	"github.com/hyperjump/findify/internal/content"
	"github.com/hyperjump/findify/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryArchive struct {
	mu    sync.Mutex
	saved map[string]*models.Transcript
	err   error
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{saved: make(map[string]*models.Transcript)}
}

func (a *memoryArchive) SaveTranscript(_ context.Context, t *models.Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.saved[t.SessionID] = t
	return nil
}

func (a *memoryArchive) get(id string) (*models.Transcript, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.saved[id]
	return t, ok
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func newTestManager(t *testing.T, maxSessions int, opts ...ManagerOption) *Manager {
	t.Helper()
	latency := time.Duration(0)
	cfg := &config.SessionConfig{PageSize: 6, MaxPages: 5, Latency: &latency, MaxSessions: maxSessions}
	opts = append([]ManagerOption{WithControllerDelay(noDelay), WithIDGenerator(sequentialIDs())}, opts...)
	m, err := NewManager(cfg, content.NewStatic(content.Default()), opts...)
	require.NoError(t, err)
	return m
}

func TestManager_CreateAndGet(t *testing.T) {
	m := newTestManager(t, 10)
	c := m.Create()
	assert.Equal(t, "s1", c.ID())

	got, ok := m.Get("s1")
	require.True(t, ok)
	assert.Same(t, c, got)
	assert.Equal(t, 1, m.Len())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestManager_DefaultIDsAreUUIDs(t *testing.T) {
	latency := time.Duration(0)
	cfg := &config.SessionConfig{PageSize: 6, MaxPages: 5, Latency: &latency, MaxSessions: 10}
	m, err := NewManager(cfg, content.NewStatic(content.Default()))
	require.NoError(t, err)
	a, b := m.Create(), m.Create()
	assert.Len(t, a.ID(), 36)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := newTestManager(t, 10)
	ctx := context.Background()
	a, b := m.Create(), m.Create()
	require.NoError(t, a.Search(ctx, "alpha"))
	_, err := a.LoadMore(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Search(ctx, "beta"))

	assert.Len(t, a.Snapshot().Results, 12)
	assert.Len(t, b.Snapshot().Results, 6)
	assert.Equal(t, "alpha", a.Snapshot().Query)
	assert.Equal(t, "beta", b.Snapshot().Query)
}

func TestManager_CloseArchives(t *testing.T) {
	archive := newMemoryArchive()
	m := newTestManager(t, 10, WithArchive(archive))
	c := m.Create()
	require.NoError(t, c.Search(context.Background(), "golang"))

	require.NoError(t, m.Close(context.Background(), c.ID()))
	assert.Equal(t, 0, m.Len())

	tr, ok := archive.get(c.ID())
	require.True(t, ok)
	assert.Equal(t, "golang", tr.Query)
	assert.Len(t, tr.Messages, 2)
	assert.Equal(t, 6, tr.ResultCount)
	assert.Equal(t, 1, tr.Pages)
	assert.False(t, tr.ClosedAt.Before(tr.CreatedAt))

	assert.ErrorIs(t, m.Close(context.Background(), c.ID()), ErrSessionNotFound)
}

func TestManager_EmptySessionsAreNotArchived(t *testing.T) {
	archive := newMemoryArchive()
	m := newTestManager(t, 10, WithArchive(archive))
	c := m.Create()
	require.NoError(t, m.Close(context.Background(), c.ID()))
	_, ok := archive.get(c.ID())
	assert.False(t, ok)
}

func TestManager_ArchiveFailureIsReported(t *testing.T) {
	archive := newMemoryArchive()
	archive.err = errors.New("disk full")
	m := newTestManager(t, 10, WithArchive(archive))
	c := m.Create()
	require.NoError(t, c.Search(context.Background(), "x"))

	err := m.Close(context.Background(), c.ID())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 0, m.Len(), "session is removed even when archiving fails")
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	archive := newMemoryArchive()
	m := newTestManager(t, 2, WithArchive(archive))
	ctx := context.Background()

	first := m.Create()
	require.NoError(t, first.Search(ctx, "first"))
	second := m.Create()
	require.NoError(t, second.Search(ctx, "second"))

	_, ok := m.Get(first.ID())
	require.True(t, ok)

	third := m.Create()
	assert.Equal(t, 2, m.Len())

	_, ok = m.Get(second.ID())
	assert.False(t, ok, "second was least recently used")
	_, ok = archive.get(second.ID())
	assert.True(t, ok, "evicted session is archived")
	assert.ErrorIs(t, second.Search(ctx, "again"), ErrSessionClosed)

	_, ok = m.Get(first.ID())
	assert.True(t, ok)
	_, ok = m.Get(third.ID())
	assert.True(t, ok)
}

func TestManager_CloseAll(t *testing.T) {
	archive := newMemoryArchive()
	m := newTestManager(t, 10, WithArchive(archive))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c := m.Create()
		require.NoError(t, c.Search(ctx, fmt.Sprintf("q%d", i)))
	}
	require.NoError(t, m.CloseAll(ctx))
	assert.Equal(t, 0, m.Len())
	for _, id := range []string{"s1", "s2", "s3"} {
		_, ok := archive.get(id)
		assert.True(t, ok, "session %s archived", id)
	}
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	m := newTestManager(t, 10, WithManagerMetrics(metrics), WithArchive(newMemoryArchive()))
	ctx := context.Background()

	c := m.Create()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.sessions))

	require.NoError(t, c.Search(ctx, "q"))
	assert.ErrorIs(t, c.Search(ctx, " "), ErrEmptyQuery)
	for i := 0; i < 5; i++ {
		_, err := c.LoadMore(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(opSearch, outcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(opSearch, outcomeRejected)))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.operations.WithLabelValues(opLoadMore, outcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.operations.WithLabelValues(opLoadMore, outcomeIgnored)))

	require.NoError(t, m.Close(ctx, c.ID()))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.archived.WithLabelValues("saved")))
}
