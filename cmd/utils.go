package main

import (
	"strings"
	"time"
)

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func firstPositive(values ...time.Duration) time.Duration {
	for _, val := range values {
		if val > 0 {
			return val
		}
	}
	return 0
}
