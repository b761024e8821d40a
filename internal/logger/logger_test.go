package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf)

	log.Debug("hidden %d", 1)
	log.Info("shown %d", 2)
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("debug line written at normal level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown 2") {
		t.Fatalf("info line missing: %q", buf.String())
	}

	buf.Reset()
	log.SetLevel(LevelVerbose)
	log.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("debug line missing at verbose level: %q", buf.String())
	}
	if log.GetLevel() != LevelVerbose {
		t.Fatalf("expected verbose, got %d", log.GetLevel())
	}

	buf.Reset()
	log.SetLevel(LevelOff)
	log.Error("silenced")
	if buf.Len() != 0 {
		t.Fatalf("expected no output when off, got %q", buf.String())
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelNormal, &buf, WithJSON())
	log.Warn("wait skipped on %s", "vitamin_c")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "wait skipped on vitamin_c" {
		t.Fatalf("unexpected msg: %v", rec["msg"])
	}
	if rec["level"] != "WARN" {
		t.Fatalf("unexpected level: %v", rec["level"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelVerbose,
		"VERBOSE": LevelVerbose,
		"off":     LevelOff,
		"info":    LevelNormal,
		"":        LevelNormal,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
