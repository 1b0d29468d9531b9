package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/findify/internal/config"
	"go.uber.org/zap"
)

func TestSearchArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"machine learning", "-pages", "3"},
			expected: []string{"-pages", "3", "machine learning"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-pages", "3", "machine learning"},
			expected: []string{"-pages", "3", "machine learning"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"machine learning"},
			expected: []string{"machine learning"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"one", "two", "--output", "json"},
			expected: []string{"--output", "json", "one", "two"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchArgsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("searchArgsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"golang"}, "golang"},
		{"multiple words", []string{"machine", "learning"}, "machine learning"},
		{"single quoted phrase", []string{"machine learning"}, "machine learning"},
		{"three words", []string{"machine", "learning", "algorithms"}, "machine learning algorithms"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
		{"one space", []string{" "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while configPath from t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_missingDefaultUsesBuiltins(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists at the default path")
	}
	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != "" {
		t.Errorf("resolved path = %q, want empty", resolved)
	}
	if cfg.Session.PageSize != config.DefaultPageSize || cfg.Session.MaxPages != config.DefaultMaxPages {
		t.Errorf("unexpected session defaults: %+v", cfg.Session)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
}

func TestLoadConfig_explicitMissingPathFails(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Session.MaxPages != config.DefaultMaxPages {
		t.Errorf("max_pages = %d", cfg.Session.MaxPages)
	}
	if err := writeDefaultConfig(path, false); err == nil {
		t.Error("expected refusal to overwrite without force")
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "data", "transcripts.db")
	latency := time.Duration(0)
	cfg.Session.Latency = &latency
	return cfg
}

func TestInitializeComponents_archivesClosedSessions(t *testing.T) {
	cfg := testConfig(t)
	components, err := initializeComponents(cfg, zap.NewNop(), true)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer components.Close()

	ctx := context.Background()
	c := components.Sessions.Create()
	if err := c.Search(ctx, "golang"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := components.Sessions.CloseAll(ctx); err != nil {
		t.Fatalf("close all: %v", err)
	}
	n, err := components.Storage.CountTranscripts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("archived transcripts = %d, want 1", n)
	}

	families, err := components.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "findify_session_operations_total" {
			found = true
		}
	}
	if !found {
		t.Error("session metrics not registered")
	}
}

func TestInitializeComponents_contentFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Content.Path = filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(cfg.Content.Path, []byte("topics: [\"Gardening\"]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	components, err := initializeComponents(cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	defer components.Close()
	if components.Storage != nil {
		t.Error("storage should be nil when archive is off")
	}
	c := components.Sessions.Create()
	if err := c.Search(context.Background(), "roses"); err != nil {
		t.Fatal(err)
	}
	for _, r := range c.Snapshot().Results {
		if r.Title != "Gardening: roses" {
			t.Errorf("title = %q, want content file topic", r.Title)
		}
	}
}

func TestInitializeComponents_invalidContent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Content.Path = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := initializeComponents(cfg, zap.NewNop(), false); err == nil {
		t.Error("expected error for missing content file")
	}
}

func TestDirectStatus(t *testing.T) {
	cfg := testConfig(t)
	status, err := directStatus(context.Background(), cfg)
	if err != nil {
		t.Fatalf("directStatus: %v", err)
	}
	if status.Archived == nil || *status.Archived != 0 {
		t.Errorf("archived = %v, want 0", status.Archived)
	}
	if status.Config == nil || status.Config.Latency != "0s" {
		t.Errorf("config = %+v", status.Config)
	}

	var buf bytes.Buffer
	writeStatusText(&buf, status)
	for _, sub := range []string{"archived:", "page_size:          6", "max_pages:          5", "archive:            true"} {
		if !strings.Contains(buf.String(), sub) {
			t.Errorf("status text missing %q:\n%s", sub, buf.String())
		}
	}
}
