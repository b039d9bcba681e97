package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerateExperimentID generates an experiment ID with a readable prefix and
// a timestamp, e.g. "redis-20260102-150405-1a2b3c4d".
func GenerateExperimentID(prefix string) string {
	if prefix == "" {
		prefix = "exp"
	}
	prefix = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(prefix), " ", "-"))
	id := uuid.New()
	return fmt.Sprintf("%s-%s-%x", prefix, time.Now().Format("20060102-150405"), id[:4])
}

// IsValidID reports whether s is usable as an experiment or environment ID.
func IsValidID(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
