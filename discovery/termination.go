package discovery

import (
	"time"

	"github.com/pevans/newscrawl/newsfeed"
)

// ShouldContinue decides from one page's batch whether the next page is
// worth visiting. The reference is the last record with a parsed timestamp,
// which on a newest-first page is the earliest. A batch without any parsed
// timestamp cannot be judged and continues.
//
// A window of 0 keeps crawling only while the reference is in the current
// calendar month; a positive window keeps crawling while the reference is
// fewer than monthsWindow calendar months old.
func ShouldContinue(batch newsfeed.PageBatch, now time.Time, monthsWindow int) bool {
	var ref *newsfeed.NewsRecord
	for i := range batch {
		if batch[i].PublishedAt.IsParsed() {
			ref = &batch[i]
		}
	}
	if ref == nil {
		return true
	}

	diff := monthsBetween(now, ref.PublishedAt.Time)
	if monthsWindow == 0 {
		return diff <= 0
	}
	return diff < monthsWindow
}

// monthsBetween counts calendar months from then to now.
func monthsBetween(now, then time.Time) int {
	return (now.Year()-then.Year())*12 + int(now.Month()) - int(then.Month())
}
