// Package timeparse converts the human timestamps shown on search result
// pages ("5 mins ago", "Yesterday", "March 2") into minute-precision times.
package timeparse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/newscrawl/newsfeed"
)

var (
	minutesAgo = regexp.MustCompile(`(?i)^(\d+)\s+mins?\s+ago$`)
	hoursAgo   = regexp.MustCompile(`(?i)^(\d+)\s+hours?\s+ago$`)
	fourDigits = regexp.MustCompile(`\b\d{4}\b`)
)

// relativeUnits are tried in order. A count too large for a Duration is a
// ParseError.
var relativeUnits = []struct {
	pattern *regexp.Regexp
	unit    time.Duration
}{
	{minutesAgo, time.Minute},
	{hoursAgo, time.Hour},
}

// Absolute dates are tried against these layouts in order. Month names are
// matched case-insensitively by the time package.
var absoluteLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
}

// Parse resolves text relative to now. It never fails: anything it cannot
// understand comes back as a ParseError carrying the string that was tried.
func Parse(text string, now time.Time) newsfeed.Timestamp {
	text = strings.TrimSpace(text)

	for _, rel := range relativeUnits {
		m := rel.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n > math.MaxInt64/int64(rel.unit) {
			return newsfeed.ParseError(text)
		}
		return newsfeed.ParsedAt(now.Add(-time.Duration(n) * rel.unit))
	}

	if strings.Contains(strings.ToLower(text), "yesterday") {
		return newsfeed.ParsedAt(now.AddDate(0, 0, -1))
	}

	return parseAbsolute(text, now)
}

// parseAbsolute handles "<Month> <Day>[, <Year>]". A missing year is taken
// from now; an explicit year is never replaced.
func parseAbsolute(text string, now time.Time) newsfeed.Timestamp {
	if text == "" {
		return newsfeed.ParseError(text)
	}

	if !fourDigits.MatchString(text) {
		text = text + ", " + strconv.Itoa(now.Year())
	}

	for _, layout := range absoluteLayouts {
		parsed, err := time.ParseInLocation(layout, text, now.Location())
		if err == nil {
			return newsfeed.ParsedAt(parsed)
		}
	}

	return newsfeed.ParseError(text)
}
