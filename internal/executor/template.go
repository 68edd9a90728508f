package executor

import (
	"path/filepath"
	"strings"
)

// Render expands the command template in a single left-to-right pass:
// $@ becomes rulePath verbatim, $# the basename of triggeringPath, $$ a
// literal dollar sign. Anything else after a dollar sign passes through
// unchanged, and substituted text is never rescanned.
func Render(command, rulePath, triggeringPath string) string {
	base := ""
	if triggeringPath != "" {
		base = filepath.Base(triggeringPath)
	}

	var builder strings.Builder
	builder.Grow(len(command))
	for i := 0; i < len(command); {
		if command[i] != '$' || i == len(command)-1 {
			builder.WriteByte(command[i])
			i++
			continue
		}
		switch command[i+1] {
		case '@':
			builder.WriteString(rulePath)
			i += 2
		case '#':
			builder.WriteString(base)
			i += 2
		case '$':
			builder.WriteByte('$')
			i += 2
		default:
			builder.WriteByte('$')
			i++
		}
	}
	return builder.String()
}
