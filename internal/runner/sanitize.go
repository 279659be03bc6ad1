package runner

import (
	"regexp"
	"strings"
	"time"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// sanitizeName produces a filesystem/object-key-safe identifier from a job
// or source name (spec §4.5 "{sanitized-job-name}_{ISO-timestamp}").
func sanitizeName(name string) string {
	s := unsafeNameChars.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "job"
	}
	return s
}

func isoTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
