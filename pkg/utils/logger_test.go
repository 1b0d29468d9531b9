package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		_ = logger.Sync()
	})
}

func TestNewFileLogger(t *testing.T) {
	t.Run("empty path logs to stderr only", func(t *testing.T) {
		logger, err := NewFileLogger(false, FileOptions{})
		if err != nil {
			t.Fatalf("NewFileLogger error: %v", err)
		}
		if logger == nil {
			t.Fatal("nil logger")
		}
	})

	t.Run("writes JSON lines to the rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "findify.log")
		logger, err := NewFileLogger(false, FileOptions{Path: path, MaxSizeMB: 1, MaxBackups: 1})
		if err != nil {
			t.Fatalf("NewFileLogger error: %v", err)
		}
		logger.Info("session created")
		logger.Debug("filtered at info level")
		_ = logger.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		out := string(data)
		if !strings.Contains(out, `"msg":"session created"`) {
			t.Errorf("log file missing entry: %q", out)
		}
		if strings.Contains(out, "filtered at info level") {
			t.Errorf("debug entry written at info level: %q", out)
		}
	})
}
