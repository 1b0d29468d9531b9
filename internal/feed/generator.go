// Package feed synthesizes pages of search results from the content vocabularies.
package feed

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hyperjump/findify/internal/content"
	"github.com/hyperjump/findify/internal/models"
)

// MaxAge bounds how far back a generated result timestamp may be.
const MaxAge = 7 * 24 * time.Hour

var (
	ErrInvalidPage     = errors.New("page must be >= 1")
	ErrInvalidPageSize = errors.New("page size must be >= 1")
)

// Generator produces result pages. It is safe for concurrent use.
type Generator struct {
	source content.Source
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithRand sets the random source. Tests pass a seeded source.
func WithRand(r *rand.Rand) GeneratorOption {
	return func(g *Generator) { g.rng = r }
}

// WithClock sets the time source used for timestamps.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator drawing vocabulary from source.
func NewGenerator(source content.Source, opts ...GeneratorOption) *Generator {
	g := &Generator{
		source: source,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return g
}

// Generate returns exactly pageSize results for the given page of query.
// Item k on page p has id result-<(p-1)*pageSize+k+1>.
func (g *Generator) Generate(query string, page, pageSize int) ([]models.SearchResult, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPageSize, pageSize)
	}
	b := g.source.Current()
	now := g.now()
	start := (page - 1) * pageSize

	g.mu.Lock()
	defer g.mu.Unlock()
	results := make([]models.SearchResult, pageSize)
	for k := range results {
		topic := b.Topics[g.rng.IntN(len(b.Topics))]
		results[k] = models.SearchResult{
			ID:          ResultID(start + k),
			Title:       topic + ": " + query,
			Description: b.RenderDescription(query, topic),
			Category:    b.Categories[g.rng.IntN(len(b.Categories))],
			Timestamp:   now.Add(-time.Duration(g.rng.Int64N(int64(MaxAge)))),
		}
	}
	return results, nil
}

// ResultID returns the id of the result at the 0-based global index.
func ResultID(globalIndex int) string {
	return fmt.Sprintf("result-%d", globalIndex+1)
}
