// Package rule holds the immutable watch-and-act directives the engine
// enforces: which path to watch, which event kinds matter, what command to
// run, and optionally a filename glob and a size-stability check interval.
package rule

import (
	"fmt"
	"path"
	"path/filepath"
	"time"
)

// Rule is constructed once at load time and shared read-only by reference.
type Rule struct {
	// Path is the watched file or directory exactly as configured.
	Path string

	// Mask is the union of event kinds the rule reacts to. Never empty.
	Mask EventKind

	// Command is the shell command template. $@ expands to Path, $# to the
	// basename of the triggering path, $$ to a literal dollar sign.
	Command string

	// FileMatch optionally restricts directory events to entries whose
	// basename matches this glob (case-sensitive, * and ? semantics).
	FileMatch string

	// CheckInterval, when positive, defers execution until the triggering
	// file's size is unchanged across one full interval.
	CheckInterval time.Duration
}

// Wants reports whether the rule's mask covers any kind in the notification.
func (r *Rule) Wants(kind EventKind) bool {
	if r == nil {
		return false
	}
	return r.Mask.Contains(kind)
}

// MatchesName applies the FileMatch glob to the basename of the triggering
// name. An empty glob matches everything. Events on the watched path itself
// carry no name; those match only globs that accept the empty string.
func (r *Rule) MatchesName(name string) bool {
	if r == nil {
		return false
	}
	if r.FileMatch == "" {
		return true
	}
	target := ""
	if name != "" {
		target = filepath.Base(name)
	}
	matched, err := path.Match(r.FileMatch, target)
	if err != nil {
		return false
	}
	return matched
}

// Equal reports field equality. Reload uses it to recognize rules that
// survived a config change so their identity (and any in-flight tracking)
// carries over.
func (r *Rule) Equal(other *Rule) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Path == other.Path &&
		r.Mask == other.Mask &&
		r.Command == other.Command &&
		r.FileMatch == other.FileMatch &&
		r.CheckInterval == other.CheckInterval
}

// Debounced reports whether executions are deferred to the stability tracker.
func (r *Rule) Debounced() bool {
	return r != nil && r.CheckInterval > 0
}

// Validate checks the invariants the engine relies on. The glob pattern is
// probed so a malformed pattern surfaces at load time, not per event.
func (r *Rule) Validate() error {
	if r == nil {
		return fmt.Errorf("rule is nil")
	}
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}
	if r.Mask == 0 {
		return fmt.Errorf("event mask is empty")
	}
	if r.Command == "" {
		return fmt.Errorf("command is required")
	}
	if r.CheckInterval < 0 {
		return fmt.Errorf("check interval must not be negative")
	}
	if r.FileMatch != "" {
		if _, err := path.Match(r.FileMatch, "probe"); err != nil {
			return fmt.Errorf("invalid file match pattern %q: %w", r.FileMatch, err)
		}
	}
	return nil
}
