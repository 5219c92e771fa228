package docket

import (
	"fmt"
	"strings"
	"time"

	"casedesk.org/internal/auth"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Date is a calendar day in YYYY-MM-DD form. Two dates are the same day iff
// their strings are equal; no time zone is involved.
type Date string

// ParseDate validates raw as a calendar date.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	if _, err := time.Parse(DateLayout, raw); err != nil {
		return "", fmt.Errorf("%w: invalid date %q", auth.ErrInvalidInput, raw)
	}
	return Date(raw), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(DateLayout))
}

// Valid reports whether d is a real calendar date.
func (d Date) Valid() bool {
	_, err := time.Parse(DateLayout, string(d))
	return err == nil
}

// Time returns midnight UTC of d, or the zero time when d is invalid.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays moves d by n calendar days.
func (d Date) AddDays(n int) Date {
	t := d.Time()
	if t.IsZero() {
		return d
	}
	return DateOf(t.AddDate(0, 0, n))
}

// Weekday of d; Sunday for an invalid date.
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) String() string { return string(d) }

// ParseClock validates an HH:MM 24-hour time. Seconds, as returned by SQL
// time columns, are dropped. Empty input is allowed and stays empty.
func ParseClock(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if len(raw) > 5 && raw[5] == ':' {
		raw = raw[:5]
	}
	t, err := time.Parse(ClockLayout, raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid time %q", auth.ErrInvalidInput, raw)
	}
	return t.Format(ClockLayout), nil
}
