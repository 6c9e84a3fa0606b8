package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		input         LogLevel
		expectValid   bool
		expectZerolog zerolog.Level
	}{
		{LevelDebug, true, zerolog.DebugLevel},
		{LevelInfo, true, zerolog.InfoLevel},
		{"WARN", true, zerolog.WarnLevel},
		{" warning ", true, zerolog.WarnLevel},
		{LevelError, true, zerolog.ErrorLevel},
		{"trace", false, zerolog.InfoLevel},
		{"", false, zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := tt.input.Valid(); got != tt.expectValid {
				t.Errorf("Valid() = %v, want %v", got, tt.expectValid)
			}
			if got := tt.input.Zerolog(); got != tt.expectZerolog {
				t.Errorf("Zerolog() = %v, want %v", got, tt.expectZerolog)
			}
		})
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected []string
	}{
		{LevelDebug, []string{"chunk done", "page fetched", "retrying", "exhausted"}},
		{LevelInfo, []string{"page fetched", "retrying", "exhausted"}},
		{LevelWarn, []string{"retrying", "exhausted"}},
		{LevelError, []string{"exhausted"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			Setup(Config{Level: tt.level, Output: buf})
			logger := NewLogger("batch")

			logger.Debug().Msg("chunk done")
			logger.Info().Msg("page fetched")
			logger.Warn().Msg("retrying")
			logger.Error().Msg("exhausted")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			if len(lines) != len(tt.expected) {
				t.Fatalf("lines = %d, want %d: %q", len(lines), len(tt.expected), buf.String())
			}
			for i, want := range tt.expected {
				if !strings.Contains(lines[i], want) {
					t.Errorf("line %d = %q, want %q", i, lines[i], want)
				}
			}
		})
	}
}

func TestNewLogger_Fields(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Project: "publicdata", Output: buf})

	NewLogger("dm-client").Info().Str("endpoint", "models/instances").Msg("sent")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	expected := map[string]string{
		"project":   "publicdata",
		"component": "dm-client",
		"endpoint":  "models/instances",
		"message":   "sent",
	}
	for key, want := range expected {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestSetup_NoProjectField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	NewLogger("dmctl").Info().Msg("done")

	if strings.Contains(buf.String(), `"project"`) {
		t.Errorf("unexpected project field in %q", buf.String())
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger.Info().Str("endpoint", "models/instances").Msg("pretty message")

	output := buf.String()
	if !strings.Contains(output, "pretty message") {
		t.Errorf("output = %q, want it to contain the message", output)
	}
	if strings.HasPrefix(output, "{") {
		t.Errorf("pretty output should not be JSON, got %q", output)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo || cfg.Pretty {
		t.Errorf("DefaultConfig() = %+v, want info level JSON", cfg)
	}
}
