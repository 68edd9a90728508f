package engine

import (
	"errors"
	"fmt"
)

// ErrNoWatches reports that not a single rule could be registered. Individual
// registration failures are non-fatal; losing every watch is a startup error.
var ErrNoWatches = errors.New("no watches could be registered")

// WatchError reports a failed watch registration for one path. Fatal only to
// the rules on that path.
type WatchError struct {
	Path string
	Err  error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("watch registration failed for %s: %v", e.Path, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

// PollError reports a transient stat failure while a tracked file is being
// polled. The entry stays alive and is retried on the next tick.
type PollError struct {
	Path string
	Err  error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll failed for %s: %v", e.Path, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}
