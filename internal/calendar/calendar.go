// Package calendar resolves the calendar token in farm URLs into a
// timeframe. A token is a four-digit year or "all".
package calendar

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// All selects every period.
const All = "all"

const (
	MinYear = 1900
	MaxYear = 2100

	// firstSelectableYear is the oldest year offered by Selection.
	firstSelectableYear = 2020
)

var (
	ErrMissingCalendar = errors.New("calendar: missing calendar")
	ErrInvalidCalendar = errors.New("calendar: invalid calendar")
)

// Timeframe is a closed interval. A nil bound is open.
type Timeframe struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Parse returns the timeframe for token. A year spans from January 1st
// 00:00 UTC up to the last nanosecond of December 31st. "all" yields an
// unbounded timeframe.
func Parse(token string) (Timeframe, error) {
	if token == "" {
		return Timeframe{}, ErrMissingCalendar
	}
	if token == All {
		return Timeframe{}, nil
	}

	if len(token) != 4 {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidCalendar, token)
	}
	year, err := strconv.Atoi(token)
	if err != nil || year < MinYear || year > MaxYear {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrInvalidCalendar, token)
	}
	return Year(year), nil
}

// Year returns the timeframe spanning year.
func Year(year int) Timeframe {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)
	return Timeframe{Start: &start, End: &end}
}

// IsAll reports whether the timeframe is unbounded on both sides.
func (tf Timeframe) IsAll() bool { return tf.Start == nil && tf.End == nil }

// Contains reports whether t lies within the timeframe.
func (tf Timeframe) Contains(t time.Time) bool {
	if tf.Start != nil && t.Before(*tf.Start) {
		return false
	}
	if tf.End != nil && t.After(*tf.End) {
		return false
	}
	return true
}

// Overlaps reports whether the period [start, end] intersects the
// timeframe. A nil end means the period is still running.
func (tf Timeframe) Overlaps(start time.Time, end *time.Time) bool {
	if tf.End != nil && start.After(*tf.End) {
		return false
	}
	if tf.Start != nil && end != nil && end.Before(*tf.Start) {
		return false
	}
	return true
}

// Token returns the token that produced tf, "all" for an unbounded one.
func (tf Timeframe) Token() string {
	if tf.Start == nil {
		return All
	}
	return strconv.Itoa(tf.Start.Year())
}

// Default is the token selected when the client has no preference: the
// current year.
func Default(now time.Time) string {
	return strconv.Itoa(now.Year())
}

// Selection lists the tokens a client may choose from: "all", then every
// year from next year down to 2020.
func Selection(now time.Time) []string {
	last := now.Year() + 1
	out := make([]string, 0, last-firstSelectableYear+2)
	out = append(out, All)
	for y := last; y >= firstSelectableYear; y-- {
		out = append(out, strconv.Itoa(y))
	}
	return out
}
