package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration fields in the config are Go duration strings ("30s", "24h").
// An empty or whitespace-only value means "not set" and parses to zero,
// which lets callers fall back to their own default.

func ParseDurationField(field, raw string) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(trimmed)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: cannot parse %q as a duration: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative durations are not allowed", field)
	}
	return d, nil
}

// ParseDurationOrDefault resolves unset (zero) values to fallback; parse
// errors are still reported so a typo does not silently become the default.
func ParseDurationOrDefault(field, raw string, fallback time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return fallback, nil
	}
	return d, nil
}
