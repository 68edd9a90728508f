package logging

import "time"

// Level is a log severity. Values are the lowercase names the -log-level
// flag and FILECRON_LOG_LEVEL accept; ParseLevel maps the aliases.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEntry is one recorded line. Context holds the structured fields the
// entry was emitted with, merged over the logger's base fields.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}
