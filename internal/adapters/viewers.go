package adapters

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseViewerCount converts human-formatted viewer text ("1.2k", "3M",
// "1,234") into a count. Any parse failure yields 0.
func ParseViewerCount(text string) int {
	s := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(text, ",", "")))
	if s == "" {
		return 0
	}
	switch {
	case strings.HasSuffix(s, "k"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "k"), 64)
		if err != nil {
			return 0
		}
		return int(f * 1_000)
	case strings.HasSuffix(s, "m"):
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "m"), 64)
		if err != nil {
			return 0
		}
		return int(f * 1_000_000)
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
}

var relativeTimeRe = regexp.MustCompile(`(\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago`)

var relativeUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseRelativeTime turns scrape text like "5 minutes ago" (possibly embedded
// in a longer phrase) into an absolute timestamp relative to now.
func ParseRelativeTime(text string, now time.Time) (time.Time, bool) {
	m := relativeTimeRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * relativeUnits[m[2]]), true
}
