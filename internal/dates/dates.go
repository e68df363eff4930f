// Package dates parses and validates publication dates from feeds,
// article metadata, and model output, normalizing everything to naive UTC.
package dates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	dps "github.com/markusmobius/go-dateparser"
)

// ErrInvalidDate marks values that cannot be used as a publication date:
// unparseable strings, dates in the future, and dates before the minimum year.
var ErrInvalidDate = errors.New("invalid date")

// DefaultMinYear is the oldest publication year accepted by default.
const DefaultMinYear = 2000

// isoLayouts are tried before the heavyweight parser.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

var parser = dps.Parser{}

// Parse interprets value as a timestamp using time.Now and DefaultMinYear
// as validation bounds.
func Parse(value string) (time.Time, error) {
	return ParseAt(value, time.Now().UTC(), DefaultMinYear)
}

// ParseAt interprets value as a timestamp. Naive inputs are taken as UTC;
// zone-aware inputs are converted to UTC. The result is validated against
// (now, minYear) and returned as naive UTC.
func ParseAt(value string, now time.Time, minYear int) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}

	var parsed time.Time
	var ok bool
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			parsed, ok = t, true
			break
		}
	}

	if !ok {
		cfg := &dps.Configuration{
			DefaultTimezone: time.UTC,
			CurrentTime:     now,
		}
		dt, err := parser.Parse(cfg, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
		}
		parsed = dt.Time
	}

	normalized := Normalize(parsed)
	if err := Validate(normalized, now, minYear); err != nil {
		return time.Time{}, err
	}
	return normalized, nil
}

// ParseYMD parses a strict YYYY-MM-DD date, as emitted by the extraction
// model. No now/min-year validation is applied here; the model's anchor
// date already constrains the value.
func ParseYMD(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return t, nil
}

// Normalize converts t to naive UTC, dropping sub-second precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// Validate rejects timestamps after now or before minYear-01-01.
func Validate(t time.Time, now time.Time, minYear int) error {
	if t.After(now) {
		return fmt.Errorf("%w: %s is in the future", ErrInvalidDate, t.Format(time.RFC3339))
	}
	floor := time.Date(minYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	if t.Before(floor) {
		return fmt.Errorf("%w: %s predates %d", ErrInvalidDate, t.Format(time.RFC3339), minYear)
	}
	return nil
}

// Reconcile picks the best publication date: the extractor-metadata date
// when valid, otherwise the feed-supplied date when valid, otherwise nil.
// The fetch timestamp is never a publication date.
func Reconcile(meta, feed *time.Time, now time.Time, minYear int) *time.Time {
	for _, candidate := range []*time.Time{meta, feed} {
		if candidate == nil {
			continue
		}
		n := Normalize(*candidate)
		if Validate(n, now, minYear) == nil {
			return &n
		}
	}
	return nil
}
