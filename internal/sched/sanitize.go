package sched

import (
	"regexp"
	"strings"
)

// MaxNameLength bounds sanitized directory names.
const MaxNameLength = 64

var (
	unsafeChars = regexp.MustCompile(`[/\\:*?"'` + "`" + `<>|[:cntrl:]]`)
	squeeze     = regexp.MustCompile(`[\s_]+`)
)

// SanitizeName makes a provider/model identifier safe for filesystem use:
// unsafe characters become underscores, runs of whitespace and underscores
// collapse, and the result is length-bounded. Prevents path traversal via
// crafted identifiers.
func SanitizeName(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}
	s = unsafeChars.ReplaceAllString(s, "_")
	// Collapse traversal dots before squeezing so the replacement
	// underscores fold into their neighbors.
	s = strings.ReplaceAll(s, "..", "_")
	s = squeeze.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "_")
	}
	return s
}
