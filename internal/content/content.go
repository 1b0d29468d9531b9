// Package content holds the vocabularies and templates the result and chat generators draw from.
package content

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Template placeholders.
const (
	PlaceholderQuery   = "{query}"
	PlaceholderTopic   = "{topic}"
	PlaceholderMessage = "{message}"
)

// Bundle is one complete, validated set of generator content.
type Bundle struct {
	Categories  []string `yaml:"categories"`
	Topics      []string `yaml:"topics"`
	Description string   `yaml:"description"`
	Replies     []string `yaml:"replies"`
}

// Default returns the built-in bundle.
func Default() *Bundle {
	return &Bundle{
		Categories: []string{"Technology", "Science", "Arts", "Business", "Health"},
		Topics: []string{
			"Artificial Intelligence",
			"Climate Change",
			"Space Exploration",
			"Digital Marketing",
			"Healthcare Innovation",
			"Renewable Energy",
			"Cybersecurity",
			"E-commerce Trends",
			"Mental Health",
			"Sustainable Living",
		},
		Description: `Discover the latest insights about {topic} in relation to "{query}". ` +
			`This comprehensive analysis provides valuable information and practical applications in today's rapidly evolving landscape. ` +
			`Learn about key trends, challenges, and opportunities in this dynamic field.`,
		Replies: []string{
			`I've refined the search based on your question about "{message}". Here are the updated results that should better match your interests.`,
			`Based on your follow-up question, I've adjusted the search parameters to focus more specifically on "{message}".`,
			`I understand you're looking for more detailed information about "{message}". I've updated the results to include more relevant content.`,
			`Let me help you explore that aspect of "{message}" with these refined search results.`,
			`I've modified the search to better address your question about "{message}". Here are the most relevant results.`,
		},
	}
}

// Load reads a YAML bundle from path. Sections left out of the file keep their default values.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	b := Default()
	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("failed to parse content: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content %s: %w", path, err)
	}
	return b, nil
}

// Validate checks that every list is non-empty and every template carries its placeholders.
func (b *Bundle) Validate() error {
	if len(b.Categories) == 0 {
		return fmt.Errorf("categories cannot be empty")
	}
	if len(b.Topics) == 0 {
		return fmt.Errorf("topics cannot be empty")
	}
	if !strings.Contains(b.Description, PlaceholderQuery) || !strings.Contains(b.Description, PlaceholderTopic) {
		return fmt.Errorf("description must contain %s and %s", PlaceholderQuery, PlaceholderTopic)
	}
	if len(b.Replies) == 0 {
		return fmt.Errorf("replies cannot be empty")
	}
	for i, r := range b.Replies {
		if n := strings.Count(r, PlaceholderMessage); n != 1 {
			return fmt.Errorf("reply %d must contain %s exactly once, found %d", i, PlaceholderMessage, n)
		}
	}
	return nil
}

// RenderDescription substitutes query and topic into the description template.
func (b *Bundle) RenderDescription(query, topic string) string {
	return strings.NewReplacer(PlaceholderQuery, query, PlaceholderTopic, topic).Replace(b.Description)
}

// RenderReply substitutes message into reply template i.
func (b *Bundle) RenderReply(i int, message string) string {
	return strings.Replace(b.Replies[i], PlaceholderMessage, message, 1)
}

// Source yields the bundle generators should use for their next call.
type Source interface {
	Current() *Bundle
}

// Static is a Source that never changes.
type Static struct {
	b *Bundle
}

// NewStatic wraps b as a Source.
func NewStatic(b *Bundle) Static {
	return Static{b: b}
}

// Current returns the wrapped bundle.
func (s Static) Current() *Bundle {
	return s.b
}

// Store is a Source whose bundle can be swapped at runtime (content reload).
type Store struct {
	current atomic.Pointer[Bundle]
}

// NewStore returns a store holding b.
func NewStore(b *Bundle) *Store {
	s := &Store{}
	s.current.Store(b)
	return s
}

// Current returns the active bundle.
func (s *Store) Current() *Bundle {
	return s.current.Load()
}

// Set validates b and makes it the active bundle.
func (s *Store) Set(b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.current.Store(b)
	return nil
}

// Reload loads path and, if valid, makes it the active bundle. On error the previous bundle stays.
func (s *Store) Reload(path string) error {
	b, err := Load(path)
	if err != nil {
		return err
	}
	s.current.Store(b)
	return nil
}
