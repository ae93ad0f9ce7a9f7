package logger

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return New(Config{Level: level, Output: buf})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{"INFO", INFO, true},
		{"warning", WARN, true},
		{" error ", ERROR, true},
		{"fatal", FATAL, true},
		{"loud", INFO, false},
		{"", INFO, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, WARN)

	l.Debugf("hidden %d", 1)
	l.Infof("hidden %d", 2)
	l.Warnf("shown %d", 3)
	l.Errorf("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below WARN were written: %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 3") || !strings.Contains(out, "[ERROR] shown 4") {
		t.Errorf("missing expected lines: %q", out)
	}
}

func TestWithPrefixSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, INFO)
	child := l.With("extract").With("blues")

	child.Infof("processing")
	if got := buf.String(); !strings.Contains(got, "[INFO] extract blues processing") {
		t.Errorf("unexpected line %q", got)
	}

	l.SetLevel(ERROR)
	buf.Reset()
	child.Infof("dropped")
	if buf.Len() != 0 {
		t.Errorf("child should follow parent level, got %q", buf.String())
	}
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, INFO)
	code := -1
	l.core.exit = func(c int) { code = c }

	l.Fatalf("boom")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Enabled(FATAL) {
		t.Error("discard logger should not be enabled at any level")
	}
	l.Errorf("nothing")
}
