package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input  string
		want   slog.Level
		wantOK bool
	}{
		{input: "DEBUG", want: slog.LevelDebug, wantOK: true},
		{input: "info", want: slog.LevelInfo, wantOK: true},
		{input: " Warn ", want: slog.LevelWarn, wantOK: true},
		{input: "warning", want: slog.LevelWarn, wantOK: true},
		{input: "ERROR", want: slog.LevelError, wantOK: true},
		{input: "", want: slog.LevelInfo, wantOK: false},
		{input: "verbose", want: slog.LevelInfo, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTrimPathDepth(t *testing.T) {
	if got := trimPathDepth("a/b/c/d.go", 3); got != "b/c/d.go" {
		t.Errorf("trimPathDepth() = %q", got)
	}
	if got := trimPathDepth("d.go", 3); got != "d.go" {
		t.Errorf("trimPathDepth() = %q", got)
	}
}

func TestNewLogger_Development(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, false, "")

	log.Debug("debug message", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "debug message") || !strings.Contains(out, "key=value") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "pkg/logger/logger_test.go:") {
		t.Errorf("missing caller in %q", out)
	}
}

func TestNewLogger_Production(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, true, "")

	log.Debug("hidden")
	log.With("request_id", "r-1").Info("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "shown" || record["request_id"] != "r-1" {
		t.Errorf("record = %v", record)
	}
	if _, ok := record["caller"]; !ok {
		t.Errorf("missing caller in %v", record)
	}
}

func TestNewLogger_ExplicitLevel(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, false, "ERROR")

	log.Warn("dropped")
	log.Error("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("unexpected output %q", out)
	}
}
