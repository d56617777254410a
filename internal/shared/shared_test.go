package shared

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestLogger(t *testing.T) {
	t.Run("NewLogger writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		logger.Info("hello", "key", "value")

		if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "key=value") {
			t.Errorf("unexpected log output: %q", buf.String())
		}
	})

	t.Run("NewFileLogger appends to a nested file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "tui.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("failed to create file logger: %v", err)
		}
		logger.Info("started")

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read log: %v", err)
		}
		if !strings.Contains(string(data), "started") {
			t.Errorf("unexpected log file contents: %q", data)
		}
	})

	t.Run("ComponentLogger tags entries", func(t *testing.T) {
		var buf bytes.Buffer
		logger := ComponentLogger(NewLogger(&buf), "membership")
		logger.Warn("rollback")

		if !strings.Contains(buf.String(), "component=membership") {
			t.Errorf("expected component key in %q", buf.String())
		}
	})

	t.Run("ComponentLogger tolerates nil", func(t *testing.T) {
		logger := ComponentLogger(nil, "x")
		logger.Error("discarded")
	})

	t.Run("ParseLogLevel", func(t *testing.T) {
		tc := []struct {
			in   string
			want log.Level
		}{
			{"debug", log.DebugLevel},
			{"WARN", log.WarnLevel},
			{"", log.InfoLevel},
			{"nonsense", log.InfoLevel},
		}
		for _, tt := range tc {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		}
	})
}

func TestIDs(t *testing.T) {
	t.Run("GenerateID is unique", func(t *testing.T) {
		a, b := GenerateID(), GenerateID()
		if a == b || len(a) != 36 {
			t.Errorf("unexpected ids %q %q", a, b)
		}
	})

	t.Run("GenerateToken has no dashes", func(t *testing.T) {
		tok := GenerateToken()
		if strings.Contains(tok, "-") || len(tok) != 64 {
			t.Errorf("unexpected token %q", tok)
		}
	})
}
