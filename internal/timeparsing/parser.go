// Package timeparsing provides layered parsing of date and time input.
//
// The editors accept, in order of precedence:
//  1. Compact duration (+6h, -1d, +2w) relative to now
//  2. Absolute timestamp (RFC3339, "2006-01-02 15:04", date-only)
//  3. Natural language ("tomorrow", "next monday")
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([hdwmy])
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// absoluteLayouts are tried in order for absolute timestamps. Layouts
// without a zone are interpreted in the given location.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// nlParser is the shared natural-language parser. when.Parser is stateless
// after rule registration, so one instance serves all calls.
var nlParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseCompactDuration parses compact duration syntax relative to now.
//
// Units: h=hours, d=days, w=weeks, m=months, y=years. No sign means
// positive: "3m" is now + 3 months.
func ParseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	return applyDuration(now, amount, matches[3]), nil
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// ParseTimestamp parses user input into a time in loc, trying the layers in
// precedence order.
func ParseTimestamp(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if loc == nil {
		loc = time.UTC
	}

	if IsCompactDuration(s) {
		return ParseCompactDuration(s, now)
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	r, err := nlParser.Parse(s, now)
	if err == nil && r != nil {
		return r.Time, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}

// ParseDate parses user input into an ISO date string (YYYY-MM-DD). It
// accepts everything ParseTimestamp does and truncates to the day.
func ParseDate(input string, now time.Time, loc *time.Location) (string, error) {
	t, err := ParseTimestamp(input, now, loc)
	if err != nil {
		return "", err
	}
	return t.Format("2006-01-02"), nil
}
