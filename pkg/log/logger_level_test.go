package log

import (
	"bytes"
	stdlog "log"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":      LevelDebug,
		"Info":       LevelInfo,
		"WARN":       LevelWarn,
		"error":      LevelError,
		"fatal":      LevelFatal,
		" warn\t":    LevelWarn,
		"trace":      LevelInfo,
		"":           LevelInfo,
		"LevelDebug": LevelInfo,
	}

	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestLogger_SuppressesBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelWarn)
	l.logger = stdlog.New(&buf, "", 0)

	l.Debug("chunk %d sliced", 3)
	l.Info("transcript cached")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	l.Warn("translation cache miss for %s", "es")
	out := buf.String()
	if !strings.Contains(out, "[WARN]") {
		t.Errorf("missing level tag in %q", out)
	}
	if !strings.Contains(out, "translation cache miss for es") {
		t.Errorf("missing formatted message in %q", out)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LevelError)
	l.logger = stdlog.New(&buf, "", 0)

	l.Info("scan finished")
	if buf.Len() != 0 {
		t.Fatalf("info should be suppressed at error level, got %q", buf.String())
	}

	l.SetLevel(LevelDebug)
	l.Info("scan finished")
	if !strings.Contains(buf.String(), "scan finished") {
		t.Errorf("info should pass after SetLevel(LevelDebug), got %q", buf.String())
	}
}
