package newsfeed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ISOMinute is the layout used for every successfully parsed timestamp. No
// seconds or sub-second component is ever emitted.
const ISOMinute = "2006-01-02T15:04"

// ImageNotFound is stored in NewsRecord.ImageRef when the image element or
// its download is unavailable.
const ImageNotFound = "Image Not Found"

// TitleNotFound is used when an item carries no title attribute.
const TitleNotFound = "None"

// TimestampState tells which of the three possible outcomes a Timestamp
// holds.
type TimestampState int

const (
	// TimestampNotFound means no timestamp element could be read.
	TimestampNotFound TimestampState = iota
	// TimestampParsed means Time holds a minute-precision instant.
	TimestampParsed
	// TimestampParseError means a string was read but not understood. Raw
	// holds the string that failed.
	TimestampParseError
)

// String returns the state name used in JSON and the database.
func (s TimestampState) String() string {
	switch s {
	case TimestampParsed:
		return "parsed"
	case TimestampParseError:
		return "parse_error"
	default:
		return "not_found"
	}
}

// ParseTimestampState is the inverse of TimestampState.String.
func ParseTimestampState(s string) (TimestampState, error) {
	switch s {
	case "parsed":
		return TimestampParsed, nil
	case "parse_error":
		return TimestampParseError, nil
	case "not_found":
		return TimestampNotFound, nil
	}
	return TimestampNotFound, fmt.Errorf("unknown timestamp state %q", s)
}

// Timestamp is the published time of a record. The zero value is the
// NotFound state.
type Timestamp struct {
	State TimestampState
	Time  time.Time
	Raw   string
}

// ParsedAt returns a parsed Timestamp truncated to minute precision.
func ParsedAt(t time.Time) Timestamp {
	return Timestamp{State: TimestampParsed, Time: t.Truncate(time.Minute)}
}

// NotFound returns the sentinel for a missing timestamp element.
func NotFound() Timestamp {
	return Timestamp{State: TimestampNotFound}
}

// ParseError returns the sentinel for an unparseable timestamp string.
func ParseError(raw string) Timestamp {
	return Timestamp{State: TimestampParseError, Raw: raw}
}

// IsParsed reports whether the timestamp holds a usable time.
func (t Timestamp) IsParsed() bool {
	return t.State == TimestampParsed
}

// String renders the timestamp the way it appears in exported files.
func (t Timestamp) String() string {
	switch t.State {
	case TimestampParsed:
		return t.Time.Format(ISOMinute)
	case TimestampParseError:
		return "Error processing date"
	default:
		return "DateTime Not Found"
	}
}

type timestampJSON struct {
	State string `json:"state"`
	Value string `json:"value,omitempty"`
}

// MarshalJSON encodes the timestamp as {"state": ..., "value": ...}.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	out := timestampJSON{State: t.State.String()}
	switch t.State {
	case TimestampParsed:
		out.Value = t.Time.Format(ISOMinute)
	case TimestampParseError:
		out.Value = t.Raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var in timestampJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	state, err := ParseTimestampState(in.State)
	if err != nil {
		return err
	}

	switch state {
	case TimestampParsed:
		parsed, err := time.Parse(ISOMinute, in.Value)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp value: %w", err)
		}
		*t = ParsedAt(parsed)
	case TimestampParseError:
		*t = ParseError(in.Value)
	default:
		*t = NotFound()
	}
	return nil
}

// TextFeatures are derived from a record's title and description after
// crawling completes.
type TextFeatures struct {
	SearchPhraseMatches int  `json:"search_phrase_matches"`
	ContainsMoney       bool `json:"contains_money"`
}

// NewsRecord is a single item extracted from a search results page.
type NewsRecord struct {
	ID          uuid.UUID     `json:"id"`
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	ImageRef    string        `json:"image"`
	PublishedAt Timestamp     `json:"published_at"`
	Features    *TextFeatures `json:"features,omitempty"`
}

// PageBatch holds the records of one page visit in DOM order. The page is
// sorted newest first, so the last element is the earliest.
type PageBatch []NewsRecord

// StopReason records why the page loop ended. It is informational; none of
// these reasons is reported to the caller as an error.
type StopReason string

const (
	StopPolicy           StopReason = "policy"
	StopExtractionFailed StopReason = "extraction_failed"
	StopPaginationFailed StopReason = "pagination_failed"
	StopNoNextPage       StopReason = "no_next_page"
	StopMaxPages         StopReason = "max_pages"
)

// AggregateResult is the concatenation of every page batch in visiting
// order.
type AggregateResult struct {
	Records    []NewsRecord `json:"records"`
	Pages      int          `json:"pages"`
	StopReason StopReason   `json:"stop_reason"`
}

// Append adds a page batch to the result.
func (r *AggregateResult) Append(batch PageBatch) {
	r.Records = append(r.Records, batch...)
	r.Pages++
}
