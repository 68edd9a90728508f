// Package config discovers and parses rule files. A rule file is a JSON or
// YAML array of objects with path, events, command and the optional
// file_match and check_interval keys. Bad files and bad rules are skipped,
// never fatal: one broken entry must not take the daemon down.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filecron/internal/logging"
	"filecron/internal/rule"

	"gopkg.in/yaml.v3"
)

// RuleSpec is the on-disk shape of one rule.
type RuleSpec struct {
	Path          string   `json:"path" yaml:"path"`
	Dir           string   `json:"dir" yaml:"dir"`
	Events        []string `json:"events" yaml:"events"`
	Command       string   `json:"command" yaml:"command"`
	FileMatch     string   `json:"file_match" yaml:"file_match"`
	CheckInterval int      `json:"check_interval" yaml:"check_interval"`
}

// Error reports a rejected rule file or rule entry.
type Error struct {
	File  string
	Index int
	Err   error
}

func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: rule %d: %v", e.File, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load parses one rule file. Entries that fail validation are logged and
// skipped; the file itself only errors when it cannot be read or parsed.
func Load(path string, logger *logging.Logger) ([]*rule.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{File: path, Index: -1, Err: err}
	}

	var specs []RuleSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &specs)
	default:
		err = json.Unmarshal(raw, &specs)
	}
	if err != nil {
		return nil, &Error{File: path, Index: -1, Err: err}
	}

	rules := make([]*rule.Rule, 0, len(specs))
	for index, spec := range specs {
		parsed, err := spec.Rule()
		if err != nil {
			ruleErr := &Error{File: path, Index: index, Err: err}
			if logger != nil {
				logger.Warn("rule rejected", map[string]string{
					"filecron.category": "config",
					"file":              path,
					"error":             ruleErr.Error(),
				})
			}
			continue
		}
		if spec.Path == "" && spec.Dir != "" && logger != nil {
			logger.Warn("'dir' key is deprecated, use 'path'", map[string]string{
				"filecron.category": "config",
				"file":              path,
			})
		}
		rules = append(rules, parsed)
	}
	return rules, nil
}

// Rule validates the on-disk entry and builds the immutable engine rule.
func (spec RuleSpec) Rule() (*rule.Rule, error) {
	path := spec.Path
	if path == "" {
		path = spec.Dir
	}
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("path %q is not watchable: %w", path, err)
	}
	if spec.Command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if spec.CheckInterval < 0 {
		return nil, fmt.Errorf("check_interval must not be negative")
	}

	mask, err := rule.ParseEvents(spec.Events)
	if err != nil {
		return nil, err
	}

	built := &rule.Rule{
		Path:          path,
		Mask:          mask,
		Command:       spec.Command,
		FileMatch:     spec.FileMatch,
		CheckInterval: time.Duration(spec.CheckInterval) * time.Second,
	}
	if err := built.Validate(); err != nil {
		return nil, err
	}
	return built, nil
}
