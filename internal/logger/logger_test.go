package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_TextRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("warn", "text", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	log.Info("hidden")
	log.Warn("shown", "identity", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "identity=abc") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "json", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	log.Debug("cache miss", "collection", "c1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "cache miss" || rec["collection"] != "c1" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("loud", "text", nil); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
