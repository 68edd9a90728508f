package logging

import (
	"strings"
	"testing"
)

func TestLoggerRespectsMinimumLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	output := &strings.Builder{}
	logger := NewLoggerWithOutput(buffer, LevelWarning, output)

	logger.Debug("hidden", nil)
	logger.Info("hidden", nil)
	logger.Warn("visible", nil)
	logger.Error("visible", nil)

	if buffer.Len() != 2 {
		t.Fatalf("expected 2 buffered entries, got %d", buffer.Len())
	}
	entries := buffer.List()
	if entries[0].Level != LevelWarning || entries[1].Level != LevelError {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if strings.Contains(output.String(), "hidden") {
		t.Fatal("suppressed entries leaked to output")
	}
}

func TestLoggerWithMergesFields(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelDebug, nil)
	scoped := logger.With(map[string]string{"filecron.category": "watch", "path": "/a"})

	scoped.Info("registered", map[string]string{"path": "/b"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	context := entries[0].Context
	if context["filecron.category"] != "watch" {
		t.Fatalf("base field lost: %v", context)
	}
	if context["path"] != "/b" {
		t.Fatalf("call fields must override base fields, got %q", context["path"])
	}
}

func TestFormatEntrySortsFields(t *testing.T) {
	entry := LogEntry{
		Level:   LevelInfo,
		Message: "command started",
		Context: map[string]string{"pid": "42", "command": "true"},
	}
	formatted := formatEntry(entry)
	want := `level=info msg="command started" command="true" pid="42"`
	if formatted != want {
		t.Fatalf("got %q, want %q", formatted, want)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
		ok    bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warn ", LevelWarning, true},
		{"warning", LevelWarning, true},
		{"error", LevelError, true},
		{"trace", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseLevel(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("ignored", nil)
	logger.With(map[string]string{"k": "v"}).Error("ignored", nil)
	if logger.Enabled(LevelError) {
		t.Fatal("nil logger must report disabled")
	}
	if logger.Buffer() != nil {
		t.Fatal("nil logger must have no buffer")
	}
}

func TestLogBufferWrapsAround(t *testing.T) {
	buffer := NewLogBuffer(3)
	for _, message := range []string{"a", "b", "c", "d", "e"} {
		buffer.Add(LogEntry{Level: LevelInfo, Message: message})
	}
	if buffer.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", buffer.Len())
	}
	entries := buffer.List()
	got := []string{entries[0].Message, entries[1].Message, entries[2].Message}
	want := []string{"c", "d", "e"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("oldest entries must be evicted first: got %v, want %v", got, want)
		}
	}
}
