package feed

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/findify/internal/content"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestGenerator(seed uint64) *Generator {
	return NewGenerator(
		content.NewStatic(content.Default()),
		WithRand(rand.New(rand.NewPCG(seed, seed+1))),
		WithClock(func() time.Time { return fixedNow }),
	)
}

func TestGenerate_SizeAndIDs(t *testing.T) {
	g := newTestGenerator(1)
	tests := []struct {
		page, pageSize int
	}{
		{1, 1}, {1, 6}, {2, 6}, {5, 6}, {3, 10}, {7, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page=%d size=%d", tt.page, tt.pageSize), func(t *testing.T) {
			results, err := g.Generate("rust", tt.page, tt.pageSize)
			require.NoError(t, err)
			require.Len(t, results, tt.pageSize)
			for k, r := range results {
				want := fmt.Sprintf("result-%d", (tt.page-1)*tt.pageSize+k+1)
				assert.Equal(t, want, r.ID)
			}
		})
	}
}

func TestGenerate_ConsecutivePagesDisjoint(t *testing.T) {
	g := newTestGenerator(2)
	first, err := g.Generate("golang", 1, 6)
	require.NoError(t, err)
	second, err := g.Generate("golang", 2, 6)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, r := range first {
		seen[r.ID] = true
	}
	for _, r := range second {
		assert.False(t, seen[r.ID], "id %s appears on both pages", r.ID)
	}
}

func TestGenerate_ContentFields(t *testing.T) {
	g := newTestGenerator(3)
	b := content.Default()
	query := `search "with" quotes & symbols`
	results, err := g.Generate(query, 1, 50)
	require.NoError(t, err)

	for _, r := range results {
		assert.Contains(t, r.Title, query)
		topic := strings.TrimSuffix(r.Title, ": "+query)
		assert.Contains(t, b.Topics, topic)
		assert.Contains(t, r.Description, query)
		assert.Contains(t, r.Description, topic)
		assert.Contains(t, b.Categories, r.Category)
		assert.False(t, r.Timestamp.After(fixedNow), "timestamp in the future: %v", r.Timestamp)
		assert.True(t, fixedNow.Sub(r.Timestamp) < MaxAge, "timestamp too old: %v", r.Timestamp)
	}
}

func TestGenerate_SameSeedSameOutput(t *testing.T) {
	a, err := newTestGenerator(42).Generate("x", 1, 6)
	require.NoError(t, err)
	b, err := newTestGenerator(42).Generate("x", 1, 6)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerate_InvalidArguments(t *testing.T) {
	g := newTestGenerator(4)
	tests := []struct {
		name           string
		page, pageSize int
		want           error
	}{
		{"zero page", 0, 6, ErrInvalidPage},
		{"negative page", -1, 6, ErrInvalidPage},
		{"zero page size", 1, 0, ErrInvalidPageSize},
		{"negative page size", 1, -3, ErrInvalidPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := g.Generate("q", tt.page, tt.pageSize)
			assert.Nil(t, results)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestGenerate_UsesCurrentBundle(t *testing.T) {
	store := content.NewStore(content.Default())
	g := NewGenerator(store, WithRand(rand.New(rand.NewPCG(5, 6))))

	custom := content.Default()
	custom.Categories = []string{"Only"}
	custom.Topics = []string{"Single Topic"}
	require.NoError(t, store.Set(custom))

	results, err := g.Generate("q", 1, 4)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "Only", r.Category)
		assert.Equal(t, "Single Topic: q", r.Title)
	}
}

func TestResultID(t *testing.T) {
	assert.Equal(t, "result-1", ResultID(0))
	assert.Equal(t, "result-13", ResultID(12))
}
