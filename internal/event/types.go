package event

import "time"

const (
	TypeCommandStarted   = "command_started"
	TypeCommandFinished  = "command_finished"
	TypeCommandFailed    = "command_failed"
	TypeWatchError       = "watch_error"
	TypeTrackerStarted   = "tracker_started"
	TypeTrackerFired     = "tracker_fired"
	TypeTrackerAbandoned = "tracker_abandoned"
)

// Event is a typed engine event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

// CommandEvent reports executor activity for one spawned command.
type CommandEvent struct {
	EventType   string
	RulePath    string
	Command     string
	TriggeredBy string
	PID         int
	ExitCode    int
	Message     string
	OccurredAt  time.Time
}

func NewCommandEvent(eventType, rulePath, command, triggeredBy string) CommandEvent {
	return CommandEvent{
		EventType:   eventType,
		RulePath:    rulePath,
		Command:     command,
		TriggeredBy: triggeredBy,
		ExitCode:    -1,
		OccurredAt:  time.Now().UTC(),
	}
}

func (e CommandEvent) Type() string {
	return e.EventType
}

func (e CommandEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// WatchEvent reports a watch registration problem.
type WatchEvent struct {
	EventType  string
	Path       string
	Message    string
	OccurredAt time.Time
}

func NewWatchEvent(eventType, path, message string) WatchEvent {
	return WatchEvent{
		EventType:  eventType,
		Path:       path,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
}

func (e WatchEvent) Type() string {
	return e.EventType
}

func (e WatchEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// TrackerEvent reports a debounce state machine outcome for one path.
type TrackerEvent struct {
	EventType  string
	RulePath   string
	Path       string
	OccurredAt time.Time
}

func NewTrackerEvent(eventType, rulePath, path string) TrackerEvent {
	return TrackerEvent{
		EventType:  eventType,
		RulePath:   rulePath,
		Path:       path,
		OccurredAt: time.Now().UTC(),
	}
}

func (e TrackerEvent) Type() string {
	return e.EventType
}

func (e TrackerEvent) Timestamp() time.Time {
	return e.OccurredAt
}
