// backend/normalizer/convert.go
package normalizer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Date layouts tried in order; first match wins. The month-day layouts
// without a year are resolved against the reference (ingestion) year.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-1-2",
	"2006/1/2",
	"2006年1月2日",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"1月2日",
}

// normalizeDate coerces a raw date string to YYYY-MM-DD. Empty input and
// unparseable input both return "".
func normalizeDate(raw string, refYear int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if t.Year() == 0 {
			t = t.AddDate(refYear, 0, 0)
		}
		return t.Format("2006-01-02")
	}
	return ""
}

var (
	clockPattern    = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	jpClockPattern  = regexp.MustCompile(`^(\d{1,2})時(\d{1,2})分?$`)
	nonDigitPattern = regexp.MustCompile(`[^0-9]`)
)

// normalizeTime coerces an H:MM[:SS]-shaped value (or the portal's H時MM分
// form) to HH:MM:SS. Returns "" when the value does not look like a time.
func normalizeTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	var h, m, s int
	if match := clockPattern.FindStringSubmatch(raw); match != nil {
		h, _ = strconv.Atoi(match[1])
		m, _ = strconv.Atoi(match[2])
		if match[3] != "" {
			s, _ = strconv.Atoi(match[3])
		}
	} else if match := jpClockPattern.FindStringSubmatch(raw); match != nil {
		h, _ = strconv.Atoi(match[1])
		m, _ = strconv.Atoi(match[2])
	} else {
		return ""
	}
	if h > 23 || m > 59 || s > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// normalizeHeadcount strips non-digit characters ("4名" -> 4) and parses a
// non-negative integer. Returns -1 when nothing parseable remains.
func normalizeHeadcount(raw string) int {
	cleaned := nonDigitPattern.ReplaceAllString(raw, "")
	if cleaned == "" {
		return -1
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return -1
	}
	return n
}

// normalizeString trims and returns "" for effectively empty values.
func normalizeString(raw string) string {
	return strings.TrimSpace(raw)
}

var whitespacePattern = regexp.MustCompile(`\s+`)

// canonicalize looks a value up in a fixed vocabulary; values outside it
// pass through lower-cased with whitespace collapsed to underscores.
// Unknown vocabulary is tolerated, never fatal.
func canonicalize(raw string, vocabulary map[string]string) string {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if cleaned == "" {
		return ""
	}
	if canonical, ok := vocabulary[cleaned]; ok {
		return canonical
	}
	if canonical, ok := vocabulary[strings.TrimSpace(raw)]; ok {
		return canonical
	}
	return whitespacePattern.ReplaceAllString(cleaned, "_")
}
