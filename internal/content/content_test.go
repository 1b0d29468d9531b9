package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_Valid(t *testing.T) {
	b := Default()
	if err := b.Validate(); err != nil {
		t.Fatalf("default bundle invalid: %v", err)
	}
	if len(b.Categories) != 5 {
		t.Errorf("categories: got %d, want 5", len(b.Categories))
	}
	if len(b.Topics) != 10 {
		t.Errorf("topics: got %d, want 10", len(b.Topics))
	}
	if len(b.Replies) != 5 {
		t.Errorf("replies: got %d, want 5", len(b.Replies))
	}
}

func TestBundle_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *Bundle)
		wantErr bool
	}{
		{"default", func(b *Bundle) {}, false},
		{"no categories", func(b *Bundle) { b.Categories = nil }, true},
		{"no topics", func(b *Bundle) { b.Topics = []string{} }, true},
		{"description without query", func(b *Bundle) { b.Description = "about {topic}" }, true},
		{"description without topic", func(b *Bundle) { b.Description = "about {query}" }, true},
		{"no replies", func(b *Bundle) { b.Replies = nil }, true},
		{"reply without message", func(b *Bundle) { b.Replies = []string{"hello"} }, true},
		{"reply with message twice", func(b *Bundle) { b.Replies = []string{"{message} {message}"} }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Default()
			tt.mutate(b)
			err := b.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBundle_Render(t *testing.T) {
	b := Default()
	desc := b.RenderDescription("golang $1 {x}", "Cybersecurity")
	if !strings.Contains(desc, `"golang $1 {x}"`) {
		t.Errorf("description lost query verbatim: %q", desc)
	}
	if !strings.Contains(desc, "Cybersecurity") {
		t.Errorf("description lost topic: %q", desc)
	}
	for i := range b.Replies {
		reply := b.RenderReply(i, "more detail")
		if strings.Count(reply, "more detail") != 1 {
			t.Errorf("reply %d: %q", i, reply)
		}
		if strings.Contains(reply, PlaceholderMessage) {
			t.Errorf("reply %d kept placeholder: %q", i, reply)
		}
	}
}

func TestLoad_PartialOverridesKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.yaml")
	data := `
categories: ["Go", "Rust"]
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Categories) != 2 || b.Categories[0] != "Go" {
		t.Errorf("categories: got %v", b.Categories)
	}
	if len(b.Topics) != 10 {
		t.Errorf("topics should keep defaults, got %d", len(b.Topics))
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("replies: [\"no placeholder\"]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected validation error")
	}
	garbage := filepath.Join(dir, "garbage.yaml")
	if err := os.WriteFile(garbage, []byte("categories: [unclosed\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(garbage); err == nil {
		t.Error("expected parse error")
	}
}

func TestStore_ReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.yaml")
	s := NewStore(Default())

	if err := os.WriteFile(path, []byte("topics: [\"Only Topic\"]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(path); err != nil {
		t.Fatal(err)
	}
	if got := s.Current().Topics; len(got) != 1 || got[0] != "Only Topic" {
		t.Fatalf("topics after reload: %v", got)
	}

	if err := os.WriteFile(path, []byte("topics: []\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(path); err == nil {
		t.Fatal("expected reload error")
	}
	if got := s.Current().Topics; len(got) != 1 || got[0] != "Only Topic" {
		t.Errorf("previous bundle should stay active, got %v", got)
	}
}

func TestStore_SetRejectsInvalid(t *testing.T) {
	s := NewStore(Default())
	if err := s.Set(&Bundle{}); err == nil {
		t.Error("expected error for empty bundle")
	}
	if s.Current() == nil || len(s.Current().Categories) != 5 {
		t.Error("store should keep default bundle")
	}
}
