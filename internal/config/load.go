package config

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"filecron/internal/logging"
	"filecron/internal/rule"
)

const (
	baseName  = "filecron"
	dropInDir = "filecron.d"
)

// DefaultRoot picks the config root for the current user: /etc for root (or
// when no home directory is known), ~/.config otherwise.
func DefaultRoot() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/root" {
		return "/etc"
	}
	return filepath.Join(home, ".config")
}

// Discover lists the rule files under root in load order: the main file
// first, then the drop-in directory sorted by name.
func Discover(root string) []string {
	if root == "" {
		root = DefaultRoot()
	}

	files := make([]string, 0, 4)
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		candidate := filepath.Join(root, baseName+ext)
		if _, err := os.Stat(candidate); err == nil {
			files = append(files, candidate)
		}
	}

	var dropIns []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(root, dropInDir, pattern))
		if err != nil {
			continue
		}
		dropIns = append(dropIns, matches...)
	}
	sort.Strings(dropIns)
	return append(files, dropIns...)
}

// LoadAll loads every discovered rule file. Unreadable or malformed files are
// logged and skipped.
func LoadAll(root string, logger *logging.Logger) []*rule.Rule {
	var rules []*rule.Rule
	for _, file := range Discover(root) {
		loaded, err := Load(file, logger)
		if err != nil {
			if logger != nil {
				logger.Warn("config file skipped", map[string]string{
					"filecron.category": "config",
					"file":              file,
					"error":             err.Error(),
				})
			}
			continue
		}
		if logger != nil {
			logger.Info("config file loaded", map[string]string{
				"filecron.category": "config",
				"file":              file,
				"rules":             strconv.Itoa(len(loaded)),
			})
		}
		rules = append(rules, loaded...)
	}
	return rules
}
