package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer, opts ...LoggerOption) Logger {
	base := []LoggerOption{
		WithLevel(DebugLevel),
		WithFormatter(&TextFormatter{DisableTimestamp: true}),
		WithOutput(NewWriterOutput(buf)),
	}
	return NewLogger(append(base, opts...)...)
}

func TestTextOutputIncludesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).With(Component("logical_log"))
	l.Info("flushed", Uint64("op", 3), Int64("asn", 128))

	got := buf.String()
	for _, want := range []string{"INFO", "flushed", "component=logical_log", "op=3", "asn=128"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	l.SetLevel(WarnLevel)
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should pass: %q", buf.String())
	}
	if l.GetLevel() != WarnLevel {
		t.Fatalf("level: %v", l.GetLevel())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(InfoLevel), WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.WithError(errors.New("boom")).Error("failed", Str("container", "c1"))

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["msg"] != "failed" || m["error"] != "boom" || m["container"] != "c1" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithRedactions("path"))
	l.Info("opened", Str("path", "/secret"))
	if strings.Contains(buf.String(), "/secret") {
		t.Fatalf("value not redacted: %q", buf.String())
	}
}

func TestSampling(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithSampling(1, 3))
	for i := 0; i < 7; i++ {
		l.Info("tick")
	}
	// first one, then every third of the remainder: 1 + (0,3) -> indexes 0,1,4
	if n := strings.Count(buf.String(), "tick"); n != 3 {
		t.Fatalf("sampled lines: got %d want 3", n)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", DebugLevel, false},
		{"", InfoLevel, false},
		{"WARNING", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Fatalf("ParseLevel(%q) err=%v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q)=%v want %v", tt.in, got, tt.want)
		}
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ApplyConfig(&Config{Level: "error", Format: "json", Output: "null"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
}
