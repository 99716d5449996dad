// Package enrich derives text features from collected records once a crawl
// has finished.
package enrich

import (
	"regexp"
	"strings"

	"github.com/pevans/newscrawl/newsfeed"
)

var moneyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\d+(,\d+)*(\.\d+)*`),
	regexp.MustCompile(`\d+ dollars`),
	regexp.MustCompile(`\d+ USD`),
}

// Annotate returns a copy of records with Features set for keyword. The
// input slice and its records are left untouched.
func Annotate(records []newsfeed.NewsRecord, keyword string) []newsfeed.NewsRecord {
	phrase := phraseMatcher(keyword)

	out := make([]newsfeed.NewsRecord, len(records))
	for i, record := range records {
		text := record.Title + " " + record.Description
		record.Features = &newsfeed.TextFeatures{
			SearchPhraseMatches: countMatches(phrase, text),
			ContainsMoney:       ContainsMoney(text),
		}
		out[i] = record
	}
	return out
}

// SearchPhraseMatches counts whole-word, case-insensitive occurrences of
// keyword in text.
func SearchPhraseMatches(text, keyword string) int {
	return countMatches(phraseMatcher(keyword), text)
}

// ContainsMoney reports whether text mentions a dollar amount.
func ContainsMoney(text string) bool {
	for _, re := range moneyPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// phraseMatcher returns nil for a blank keyword.
func phraseMatcher(keyword string) *regexp.Regexp {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`)
}

func countMatches(re *regexp.Regexp, text string) int {
	if re == nil {
		return 0
	}
	return len(re.FindAllStringIndex(text, -1))
}
